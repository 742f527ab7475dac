package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"media-digest-go/internal/processor"
	"media-digest-go/internal/types"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	tasks   Tasks
	presets PresetLister
	log     *logrus.Entry
}

type processResponse struct {
	TaskID string           `json:"task_id"`
	Status types.TaskStatus `json:"status"`
}

// Process accepts a source and starts a background run.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req types.ProcessRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		jsonError(w, "source is required", http.StatusBadRequest)
		return
	}

	task, err := h.tasks.Submit(req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, processor.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		jsonError(w, err.Error(), status)
		return
	}
	h.log.WithFields(logrus.Fields{
		"task_id":       task.ID,
		"source":        req.Source,
		"skip_download": req.SkipDownload,
		"preset":        req.PresetName,
	}).Info("task accepted")
	jsonResponse(w, processResponse{TaskID: task.ID, Status: task.Status}, http.StatusOK)
}

// Status returns the task record.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	task, err := h.tasks.Get(id)
	if err != nil {
		if errors.Is(err, processor.ErrNotFound) {
			jsonError(w, "task not found", http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, task, http.StatusOK)
}

func (h *Handler) Presets(w http.ResponseWriter, r *http.Request) {
	list := h.presets.List()
	if list == nil {
		list = []types.PresetInfo{}
	}
	jsonResponse(w, list, http.StatusOK)
}

func jsonResponse(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	jsonResponse(w, map[string]string{"error": msg}, status)
}
