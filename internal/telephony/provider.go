package telephony

import (
	"context"
	"errors"
)

// ControlPlane is the provider-agnostic surface of the telephony/realtime
// control plane used by business logic.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - The control plane owns participant call status; this system only
//   observes it.
type ControlPlane interface {
	Name() string

	// GetParticipant returns the participant and its current attribute
	// mapping, including the call-status attribute for SIP legs.
	GetParticipant(ctx context.Context, room, identity string) (Participant, error)

	// ListParticipants returns everyone currently in the room.
	ListParticipants(ctx context.Context, room string) ([]Participant, error)

	// RemoveParticipant drops one participant from a room.
	RemoveParticipant(ctx context.Context, room, identity string) error

	// DeleteRoom tears down a room and disconnects everyone in it.
	DeleteRoom(ctx context.Context, room string) error

	// CreateSIPParticipant dials a phone number into a room over the
	// configured outbound trunk.
	CreateSIPParticipant(ctx context.Context, req CreateSIPParticipantRequest) (Participant, error)
}

// ErrParticipantNotFound is returned when the requested participant has
// not joined the room (or has already left).
var ErrParticipantNotFound = errors.New("telephony: participant not found")

// Participant is a provider-agnostic view of one room participant.
// Attributes is a snapshot; callers poll for fresh values.
type Participant struct {
	Identity   string
	Attributes map[string]string
}

// Attribute returns an attribute value or "" when absent.
func (p Participant) Attribute(key string) string {
	if p.Attributes == nil {
		return ""
	}
	return p.Attributes[key]
}

type CreateSIPParticipantRequest struct {
	RoomName string

	// TrunkID is the outbound trunk ("ST_..." convention).
	TrunkID string

	// CallTo is the dialed number, E.164 where possible.
	CallTo string

	ParticipantIdentity string
}
