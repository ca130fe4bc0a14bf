package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrAttemptNotFound is returned when no attempt exists for a room.
var ErrAttemptNotFound = errors.New("calls: attempt not found")

// Repository stores call attempts and their audit trails.
type Repository interface {
	CreateAttempt(ctx context.Context, a Attempt) error
	SetOutcome(ctx context.Context, room, outcome string, endedAt time.Time) error
	AppendEvent(ctx context.Context, e Event) error
	GetAttempt(ctx context.Context, room string) (Attempt, error)
	ListEvents(ctx context.Context, room string) ([]Event, error)
}

// MemoryRepository keeps attempts in process memory. Default store when
// no DATABASE_URL is configured; records do not survive restarts.
type MemoryRepository struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
	events   map[string][]Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		attempts: make(map[string]Attempt),
		events:   make(map[string][]Event),
	}
}

func (r *MemoryRepository) CreateAttempt(ctx context.Context, a Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Last write wins: an attempt recorded by the worker supersedes the
	// stub recorded at dispatch time for the same room.
	if prev, ok := r.attempts[a.Room]; ok {
		if a.PhoneNumber == "" {
			a.PhoneNumber = prev.PhoneNumber
		}
		if a.StartedAt.After(prev.StartedAt) {
			a.StartedAt = prev.StartedAt
		}
	}
	r.attempts[a.Room] = a
	return nil
}

func (r *MemoryRepository) SetOutcome(ctx context.Context, room, outcome string, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[room]
	if !ok {
		return ErrAttemptNotFound
	}
	a.Outcome = outcome
	a.EndedAt = &endedAt
	r.attempts[room] = a
	return nil
}

func (r *MemoryRepository) AppendEvent(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.Room] = append(r.events[e.Room], e)
	return nil
}

func (r *MemoryRepository) GetAttempt(ctx context.Context, room string) (Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attempts[room]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (r *MemoryRepository) ListEvents(ctx context.Context, room string) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events[room]))
	copy(out, r.events[room])
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
