package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"media-digest-go/internal/pipeline"
	"media-digest-go/internal/types"
)

// ErrNotFound is returned for unknown task ids.
var ErrNotFound = errors.New("task not found")

// ErrClosed is returned by Submit after shutdown has begun.
var ErrClosed = errors.New("processor is shutting down")

// Runner executes one pipeline request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (types.Result, error)
}

// Processor runs pipeline requests in the background and keeps their status
// in memory. Entries are lost on restart.
type Processor struct {
	runner Runner
	root   context.Context
	log    *logrus.Entry
	now    func() time.Time

	mu     sync.RWMutex
	tasks  map[string]*types.Task
	closed bool
	wg     sync.WaitGroup
}

// New binds background runs to root; cancelling root cancels every run, which
// still performs its own cleanup.
func New(root context.Context, runner Runner, log *logrus.Entry) *Processor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Processor{
		runner: runner,
		root:   root,
		log:    log.WithField("module", "processor"),
		now:    time.Now,
		tasks:  make(map[string]*types.Task),
	}
}

// Submit registers a queued task and starts it. It returns a snapshot.
func (p *Processor) Submit(req types.ProcessRequest) (types.Task, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return types.Task{}, ErrClosed
	}
	now := p.now()
	task := &types.Task{
		ID:        uuid.NewString(),
		Status:    types.TaskQueued,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.tasks[task.ID] = task
	snapshot := *task
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(task.ID, req)
	return snapshot, nil
}

func (p *Processor) run(id string, req types.ProcessRequest) {
	defer p.wg.Done()
	log := p.log.WithField("task_id", id)
	log.WithField("source", req.Source).Info("task started")

	p.update(id, func(t *types.Task) { t.Status = types.TaskRunning })
	res, err := p.runner.Run(p.root, pipeline.Request{
		Source:       req.Source,
		SkipDownload: req.SkipDownload,
		PresetName:   req.PresetName,
		CustomPrompt: req.CustomPrompt,
		OnStage: func(s types.Stage) {
			p.update(id, func(t *types.Task) { t.Stage = s })
		},
	})
	if err != nil {
		log.WithField("error", err.Error()).Warn("task failed")
		p.update(id, func(t *types.Task) {
			t.Status = types.TaskFailed
			t.Error = err.Error()
		})
		return
	}
	log.Info("task succeeded")
	p.update(id, func(t *types.Task) {
		t.Status = types.TaskSucceeded
		t.Result = &res
	})
}

func (p *Processor) update(id string, fn func(*types.Task)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	fn(t)
	t.UpdatedAt = p.now()
}

// Get returns a copy of the task.
func (p *Processor) Get(id string) (types.Task, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tasks[id]
	if !ok {
		return types.Task{}, ErrNotFound
	}
	snapshot := *t
	if t.Result != nil {
		res := *t.Result
		snapshot.Result = &res
	}
	return snapshot, nil
}

// Len returns the number of known tasks.
func (p *Processor) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tasks)
}

// Shutdown stops accepting tasks and waits for running ones to finish or for
// ctx to expire.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
