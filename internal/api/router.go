package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"media-digest-go/internal/logger"
	"media-digest-go/internal/types"
)

// Tasks is the background task registry behind the API.
type Tasks interface {
	Submit(req types.ProcessRequest) (types.Task, error)
	Get(id string) (types.Task, error)
}

type PresetLister interface {
	List() []types.PresetInfo
}

func NewRouter(tasks Tasks, presets PresetLister, allowedOrigins []string, log *logger.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(log))
	r.Use(cors.Handler(CORSOptions(allowedOrigins)))

	h := &Handler{tasks: tasks, presets: presets, log: log.Module("api")}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Post("/process", h.Process)
	r.Get("/status/{task_id}", h.Status)
	r.Get("/presets", h.Presets)
	return r
}

// CORSOptions allows the browser userscript to call the API from the video
// site origin.
func CORSOptions(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// credentials cannot be combined with a wildcard origin
	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}
