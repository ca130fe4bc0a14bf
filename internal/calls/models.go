// Package calls keeps a record of every call attempt and the events
// observed during it. Recording is best-effort: a broken store must
// never fail a live call.
package calls

import "time"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Attempt is one inbound or outbound call attempt, keyed by room: each
// call lives in its own room for its whole lifetime.
type Attempt struct {
	ID          string    `json:"id" db:"id"`
	Room        string    `json:"room" db:"room"`
	PhoneNumber string    `json:"phone_number,omitempty" db:"phone_number"`
	Direction   Direction `json:"direction" db:"direction"`

	// Outcome is empty until the attempt reaches a terminal state
	// (active, terminated, rejected, ring_timeout, completed, failed).
	Outcome string `json:"outcome,omitempty" db:"outcome"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Event is one observation in a call's audit trail.
type Event struct {
	Room   string    `json:"room" db:"room"`
	Type   EventType `json:"type" db:"type"`
	Detail string    `json:"detail,omitempty" db:"detail"`
	At     time.Time `json:"at" db:"at"`
}

type EventType string

const (
	EventDispatched        EventType = "dispatched"
	EventJobStarted        EventType = "job_started"
	EventParticipantJoined EventType = "participant_joined"
	EventAnswered          EventType = "answered"
	EventRingTimeout       EventType = "ring_timeout"
	EventSessionStarted    EventType = "session_started"
	EventToolInvoked       EventType = "tool_invoked"
	EventCallEnded         EventType = "call_ended"
)
