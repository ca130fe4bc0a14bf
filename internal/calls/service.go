package calls

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service records call lifecycle facts. Every method is best-effort:
// storage failures are logged and swallowed so a degraded store never
// interferes with live calls.
type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, now: time.Now}
}

// RecordDispatched notes that the API asked the control plane to create
// an outbound job for room. The worker has not picked it up yet.
func (s *Service) RecordDispatched(ctx context.Context, room, phoneNumber string) {
	now := s.now()
	s.record(ctx, "create attempt", s.repo.CreateAttempt(ctx, Attempt{
		ID:          uuid.NewString(),
		Room:        room,
		PhoneNumber: phoneNumber,
		Direction:   DirectionOutbound,
		StartedAt:   now,
	}))
	s.RecordEvent(ctx, room, EventDispatched, phoneNumber)
}

// RecordJobStarted notes that a worker accepted the job. For inbound
// calls this is the first record of the attempt.
func (s *Service) RecordJobStarted(ctx context.Context, room, phoneNumber string, direction Direction) {
	now := s.now()
	s.record(ctx, "create attempt", s.repo.CreateAttempt(ctx, Attempt{
		ID:          uuid.NewString(),
		Room:        room,
		PhoneNumber: phoneNumber,
		Direction:   direction,
		StartedAt:   now,
	}))
	s.RecordEvent(ctx, room, EventJobStarted, string(direction))
}

// RecordOutcome marks the attempt's terminal state.
func (s *Service) RecordOutcome(ctx context.Context, room, outcome string) {
	s.record(ctx, "set outcome", s.repo.SetOutcome(ctx, room, outcome, s.now()))
	s.RecordEvent(ctx, room, EventCallEnded, outcome)
}

// RecordEvent appends one entry to the room's audit trail.
func (s *Service) RecordEvent(ctx context.Context, room string, typ EventType, detail string) {
	s.record(ctx, "append event", s.repo.AppendEvent(ctx, Event{
		Room:   room,
		Type:   typ,
		Detail: detail,
		At:     s.now(),
	}))
}

// Attempt returns the recorded attempt for a room.
func (s *Service) Attempt(ctx context.Context, room string) (Attempt, error) {
	return s.repo.GetAttempt(ctx, room)
}

// Events returns the room's audit trail in order.
func (s *Service) Events(ctx context.Context, room string) ([]Event, error) {
	return s.repo.ListEvents(ctx, room)
}

func (s *Service) record(ctx context.Context, op string, err error) {
	if err != nil {
		s.log.Warn("call record dropped", "op", op, "err", err)
	}
}
