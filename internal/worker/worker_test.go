package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"voice-agent-platform/internal/job"
)

type recordingHandler struct {
	mu   sync.Mutex
	jobs []job.Job

	block chan struct{} // when set, Handle waits for it (or ctx)
	err   error
}

func (h *recordingHandler) Handle(ctx context.Context, j job.Job) error {
	h.mu.Lock()
	h.jobs = append(h.jobs, j)
	h.mu.Unlock()

	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.jobs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never met")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWorker_SubmitRunsJob(t *testing.T) {
	h := &recordingHandler{}
	w := New(h, nil)
	w.Start(context.Background())
	defer w.Drain(time.Second)

	id, err := w.Submit(job.Job{RoomName: "call-1", Metadata: `{"phone_number":"+1555"}`})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated job id")
	}

	waitFor(t, func() bool { return h.count() == 1 })
	h.mu.Lock()
	got := h.jobs[0]
	h.mu.Unlock()
	if got.RoomName != "call-1" || got.ID != id {
		t.Fatalf("job = %+v", got)
	}
}

func TestWorker_SubmitRequiresRoom(t *testing.T) {
	w := New(&recordingHandler{}, nil)
	w.Start(context.Background())
	if _, err := w.Submit(job.Job{}); !errors.Is(err, ErrBadJob) {
		t.Fatalf("err = %v", err)
	}
}

func TestWorker_SubmitBeforeStart(t *testing.T) {
	w := New(&recordingHandler{}, nil)
	if _, err := w.Submit(job.Job{RoomName: "call-1"}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("err = %v", err)
	}
}

func TestWorker_DrainCancelsStuckJobs(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	w := New(h, nil)
	w.Start(context.Background())

	if _, err := w.Submit(job.Job{RoomName: "call-1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, func() bool { return h.count() == 1 })

	done := make(chan struct{})
	go func() {
		w.Drain(20 * time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drain never returned")
	}

	if _, err := w.Submit(job.Job{RoomName: "call-2"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("post-drain submit err = %v", err)
	}
}

func TestWorker_CapRejectsOverflow(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	w := New(h, nil)
	w.Cap = NewMemoryCap(1)
	w.Start(context.Background())

	if _, err := w.Submit(job.Job{RoomName: "call-1"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	waitFor(t, func() bool { return h.count() == 1 })

	if _, err := w.Submit(job.Job{RoomName: "call-2"}); !errors.Is(err, ErrAtCapacity) {
		t.Fatalf("err = %v, want ErrAtCapacity", err)
	}

	close(h.block)
	waitFor(t, func() bool { return w.Active() == 0 })

	if _, err := w.Submit(job.Job{RoomName: "call-3"}); err != nil {
		t.Fatalf("submit after release: %v", err)
	}
	w.Drain(time.Second)
}

// countingCap records acquire/release traffic and can refuse to
// acquire with an error.
type countingCap struct {
	mu         sync.Mutex
	acquireErr error
	acquires   int
	releases   int
}

func (c *countingCap) Acquire(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquireErr != nil {
		return false, c.acquireErr
	}
	c.acquires++
	return true, nil
}

func (c *countingCap) Release(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	return nil
}

func (c *countingCap) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquires, c.releases
}

func TestWorker_NoReleaseWithoutAcquire(t *testing.T) {
	h := &recordingHandler{}
	guard := &countingCap{acquireErr: errors.New("redis down")}
	w := New(h, nil)
	w.Cap = guard
	w.Start(context.Background())
	defer w.Drain(time.Second)

	// A broken guard fails open: the job still runs.
	if _, err := w.Submit(job.Job{RoomName: "call-1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, func() bool { return h.count() == 1 })
	waitFor(t, func() bool { return w.Active() == 0 })

	if _, releases := guard.counts(); releases != 0 {
		t.Fatalf("released %d slots that were never acquired", releases)
	}
}

func TestWorker_ReleasesAcquiredSlotOnce(t *testing.T) {
	h := &recordingHandler{}
	guard := &countingCap{}
	w := New(h, nil)
	w.Cap = guard
	w.Start(context.Background())
	defer w.Drain(time.Second)

	if _, err := w.Submit(job.Job{RoomName: "call-1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, func() bool {
		acquires, releases := guard.counts()
		return acquires == 1 && releases == 1
	})
}

func TestJobIntake_HTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &recordingHandler{}
	w := New(h, nil)
	w.Start(context.Background())
	defer w.Drain(time.Second)

	r := gin.New()
	RegisterRoutes(r, w)

	// Health first.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	// Valid job.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs",
		strings.NewReader(`{"room":"call-9","metadata":"{\"phone_number\":\"+1555\"}"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("jobs = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["job_id"] == "" {
		t.Fatalf("body = %s", rec.Body.String())
	}
	waitFor(t, func() bool { return h.count() == 1 })

	// Missing room.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing room = %d", rec.Code)
	}
}
