// Package worker accepts call jobs and runs each one on its own
// goroutine until it finishes or the worker shuts down.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-agent-platform/internal/job"
)

// Handler runs one job to completion.
type Handler interface {
	Handle(ctx context.Context, j job.Job) error
}

var (
	ErrNotStarted = errors.New("worker: not started")
	ErrStopped    = errors.New("worker: shutting down")
	ErrBadJob     = errors.New("worker: job requires a room")
	ErrAtCapacity = errors.New("worker: at call capacity")
)

// CapGuard limits simultaneous active calls across worker replicas.
type CapGuard interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Worker owns the lifecycle of in-flight jobs. Jobs are bound to the
// worker's root context, not the submitter's: an HTTP intake request
// returning must not kill the call it started.
type Worker struct {
	handler Handler
	log     *slog.Logger

	// Cap optionally bounds concurrent calls. A broken guard fails
	// open: capacity enforcement is a protection, not a dependency.
	Cap CapGuard

	mu      sync.Mutex
	rootCtx context.Context
	cancel  context.CancelFunc
	stopped bool
	active  int

	wg sync.WaitGroup
}

func New(handler Handler, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{handler: handler, log: log}
}

// Start establishes the root context jobs run under.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rootCtx, w.cancel = context.WithCancel(ctx)
}

// Submit accepts one job. The job runs asynchronously; the returned ID
// identifies it in logs and call records.
func (w *Worker) Submit(j job.Job) (string, error) {
	if strings.TrimSpace(j.RoomName) == "" {
		return "", ErrBadJob
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}

	w.mu.Lock()
	if w.rootCtx == nil {
		w.mu.Unlock()
		return "", ErrNotStarted
	}
	if w.stopped || w.rootCtx.Err() != nil {
		w.mu.Unlock()
		return "", ErrStopped
	}
	ctx := w.rootCtx
	w.mu.Unlock()

	// Releasing a slot we never took would free another replica's
	// slot, so a failed acquire runs uncapped instead.
	acquired := false
	if w.Cap != nil {
		ok, err := w.Cap.Acquire(ctx)
		switch {
		case err != nil:
			w.log.Warn("call cap unavailable", "err", err)
		case !ok:
			return "", ErrAtCapacity
		default:
			acquired = true
		}
	}

	w.mu.Lock()
	w.active++
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			if acquired {
				if err := w.Cap.Release(context.Background()); err != nil {
					w.log.Warn("call cap release failed", "err", err)
				}
			}
			w.mu.Lock()
			w.active--
			w.mu.Unlock()
		}()

		log := w.log.With("job_id", j.ID, "room", j.RoomName)
		log.Info("job started")
		if err := w.handler.Handle(ctx, j); err != nil {
			log.Error("job failed", "err", err)
			return
		}
		log.Info("job finished")
	}()

	return j.ID, nil
}

// Active reports the number of in-flight jobs.
func (w *Worker) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Drain stops accepting jobs and waits up to timeout for in-flight
// calls to end, then cancels whatever is left.
func (w *Worker) Drain(timeout time.Duration) {
	w.mu.Lock()
	w.stopped = true
	cancel := w.cancel
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		w.log.Warn("drain timeout, cancelling in-flight jobs")
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}
}
