package telephony

import (
	"context"
	"fmt"
	"strings"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// LiveKit adapts the LiveKit server APIs to the ControlPlane interface.
// It is the only place the server SDK's service clients are touched.
type LiveKit struct {
	rooms *lksdk.RoomServiceClient
	sip   *lksdk.SIPClient
}

func NewLiveKit(url, apiKey, apiSecret string) *LiveKit {
	return &LiveKit{
		rooms: lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
		sip:   lksdk.NewSIPClient(url, apiKey, apiSecret),
	}
}

func (c *LiveKit) Name() string { return "livekit" }

func (c *LiveKit) GetParticipant(ctx context.Context, room, identity string) (Participant, error) {
	pi, err := c.rooms.GetParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     room,
		Identity: identity,
	})
	if err != nil {
		if isNotFound(err) {
			return Participant{}, ErrParticipantNotFound
		}
		return Participant{}, fmt.Errorf("telephony: get participant: %w", err)
	}
	return fromParticipantInfo(pi), nil
}

func (c *LiveKit) ListParticipants(ctx context.Context, room string) ([]Participant, error) {
	res, err := c.rooms.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: room})
	if err != nil {
		return nil, fmt.Errorf("telephony: list participants: %w", err)
	}
	out := make([]Participant, 0, len(res.Participants))
	for _, pi := range res.Participants {
		out = append(out, fromParticipantInfo(pi))
	}
	return out, nil
}

func (c *LiveKit) RemoveParticipant(ctx context.Context, room, identity string) error {
	_, err := c.rooms.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     room,
		Identity: identity,
	})
	if err != nil {
		return fmt.Errorf("telephony: remove participant: %w", err)
	}
	return nil
}

func (c *LiveKit) DeleteRoom(ctx context.Context, room string) error {
	_, err := c.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: room})
	if err != nil {
		return fmt.Errorf("telephony: delete room: %w", err)
	}
	return nil
}

func (c *LiveKit) CreateSIPParticipant(ctx context.Context, req CreateSIPParticipantRequest) (Participant, error) {
	info, err := c.sip.CreateSIPParticipant(ctx, &livekit.CreateSIPParticipantRequest{
		RoomName:            req.RoomName,
		SipTrunkId:          req.TrunkID,
		SipCallTo:           req.CallTo,
		ParticipantIdentity: req.ParticipantIdentity,
	})
	if err != nil {
		return Participant{}, fmt.Errorf("telephony: create sip participant: %w", err)
	}
	return Participant{Identity: info.ParticipantIdentity}, nil
}

func fromParticipantInfo(pi *livekit.ParticipantInfo) Participant {
	p := Participant{Identity: pi.Identity, Attributes: map[string]string{}}
	for k, v := range pi.Attributes {
		p.Attributes[k] = v
	}
	return p
}

func isNotFound(err error) bool {
	// The service client surfaces twirp errors; string matching keeps the
	// adapter free of a direct twirp dependency.
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}
