package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voice-agent-platform/internal/callmonitor"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/job"
	"voice-agent-platform/internal/media"
	"voice-agent-platform/internal/plugins"
	"voice-agent-platform/internal/telephony"
)

var (
	// ErrParticipantWait means the SIP leg never joined the room.
	ErrParticipantWait = errors.New("agent: participant did not join")

	// ErrCallNotAnswered means call progress ended without a pickup.
	ErrCallNotAnswered = errors.New("agent: call not answered")

	// ErrSessionStart wraps failures bringing up the speech pipeline.
	ErrSessionStart = errors.New("agent: session start failed")
)

// SIPParticipantIdentity is the fixed identity given to the dialed leg.
const SIPParticipantIdentity = "phone_user"

// Entrypoint handles one job end to end: route by metadata, dial or
// await the caller, watch call progress, then run the conversation.
type Entrypoint struct {
	Control telephony.ControlPlane
	Calls   *calls.Service

	STT plugins.STT
	LLM plugins.LLM
	TTS plugins.TTS

	// Connect joins the job's room for audio I/O.
	Connect func(ctx context.Context, room string) (RoomTransport, error)

	Persona Persona
	Tools   *Toolbox

	TrunkID        string
	RingTimeout    time.Duration
	PollInterval   time.Duration
	VADThreshold   float64
	TurnHold       time.Duration
	StrictMetadata bool

	Log *slog.Logger

	// Sleep is injectable for tests; nil means real time.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (e *Entrypoint) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Entrypoint) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

// Handle routes and runs one job. The returned error reflects the job's
// fate, not the call's: an unanswered outbound call is an error for the
// job runner to surface, while a conversation that simply ended is nil.
func (e *Entrypoint) Handle(ctx context.Context, j job.Job) error {
	log := e.logger().With("job_id", j.ID, "room", j.RoomName)

	meta, ok, err := job.ParseMetadata(j.Metadata, e.StrictMetadata)
	if err != nil {
		log.Error("job metadata rejected", "err", err)
		return err
	}
	if !ok {
		log.Warn("job metadata unreadable, treating call as inbound")
	}

	path := job.Route(meta)
	log.Info("job routed", "path", string(path))

	switch path {
	case job.PathOutbound:
		e.recordStart(ctx, j.RoomName, meta[job.MetadataPhoneNumber], calls.DirectionOutbound)
		return e.outbound(ctx, log, j, meta[job.MetadataPhoneNumber])
	default:
		e.recordStart(ctx, j.RoomName, "", calls.DirectionInbound)
		return e.inbound(ctx, log, j)
	}
}

func (e *Entrypoint) outbound(ctx context.Context, log *slog.Logger, j job.Job, phoneNumber string) error {
	log.Info("dialing", "phone_number", phoneNumber)

	_, err := e.Control.CreateSIPParticipant(ctx, telephony.CreateSIPParticipantRequest{
		RoomName:            j.RoomName,
		TrunkID:             e.TrunkID,
		CallTo:              phoneNumber,
		ParticipantIdentity: SIPParticipantIdentity,
	})
	if err != nil {
		e.recordOutcome(ctx, j.RoomName, "failed")
		return fmt.Errorf("agent: create sip participant: %w", err)
	}

	if err := e.waitForParticipant(ctx, j.RoomName, SIPParticipantIdentity); err != nil {
		e.recordOutcome(ctx, j.RoomName, "failed")
		return err
	}
	e.recordEvent(ctx, j.RoomName, calls.EventParticipantJoined, SIPParticipantIdentity)

	monitor := callmonitor.New(
		func(ctx context.Context) (callmonitor.Status, error) {
			p, err := e.Control.GetParticipant(ctx, j.RoomName, SIPParticipantIdentity)
			if err != nil {
				return callmonitor.StatusUnknown, err
			}
			return callmonitor.Status(p.Attribute(callmonitor.AttributeCallStatus)), nil
		},
		func(ctx context.Context) error {
			return e.Control.DeleteRoom(ctx, j.RoomName)
		},
		log,
	)
	monitor.Interval = e.PollInterval
	monitor.RingTimeout = e.RingTimeout
	if e.Sleep != nil {
		monitor.Sleep = e.Sleep
	}

	outcome, err := monitor.Wait(ctx)
	if err != nil {
		return err
	}
	if !outcome.Answered() {
		if outcome == callmonitor.OutcomeRingTimeout {
			e.recordEvent(ctx, j.RoomName, calls.EventRingTimeout, "")
		}
		e.recordOutcome(ctx, j.RoomName, string(outcome))
		return fmt.Errorf("%w: %s", ErrCallNotAnswered, outcome)
	}
	e.recordEvent(ctx, j.RoomName, calls.EventAnswered, "")

	if err := e.runSession(ctx, log, j.RoomName, SIPParticipantIdentity, e.Persona.OutboundGreeting); err != nil {
		e.recordOutcome(ctx, j.RoomName, "failed")
		return err
	}
	e.recordOutcome(ctx, j.RoomName, "completed")
	return nil
}

func (e *Entrypoint) inbound(ctx context.Context, log *slog.Logger, j job.Job) error {
	identity, err := e.waitForAnyParticipant(ctx, j.RoomName)
	if err != nil {
		e.recordOutcome(ctx, j.RoomName, "failed")
		return err
	}
	log.Info("inbound caller joined", "identity", identity)
	e.recordEvent(ctx, j.RoomName, calls.EventParticipantJoined, identity)

	if err := e.runSession(ctx, log, j.RoomName, identity, e.Persona.InboundGreeting); err != nil {
		e.recordOutcome(ctx, j.RoomName, "failed")
		return err
	}
	e.recordOutcome(ctx, j.RoomName, "completed")
	return nil
}

// waitForParticipant polls until the named participant is in the room.
// Bounded by the ring timeout so a leg that never materializes cannot
// hold the job forever.
func (e *Entrypoint) waitForParticipant(ctx context.Context, room, identity string) error {
	return e.pollJoin(ctx, func(ctx context.Context) (bool, error) {
		_, err := e.Control.GetParticipant(ctx, room, identity)
		if errors.Is(err, telephony.ErrParticipantNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

// waitForAnyParticipant polls until someone other than the agent is in
// the room and returns their identity.
func (e *Entrypoint) waitForAnyParticipant(ctx context.Context, room string) (string, error) {
	var identity string
	err := e.pollJoin(ctx, func(ctx context.Context) (bool, error) {
		parts, err := e.Control.ListParticipants(ctx, room)
		if err != nil {
			return false, err
		}
		for _, p := range parts {
			if p.Identity != "" {
				identity = p.Identity
				return true, nil
			}
		}
		return false, nil
	})
	return identity, err
}

func (e *Entrypoint) pollJoin(ctx context.Context, check func(ctx context.Context) (bool, error)) error {
	interval := e.PollInterval
	if interval <= 0 {
		interval = callmonitor.DefaultInterval
	}
	timeout := e.RingTimeout
	if timeout <= 0 {
		timeout = callmonitor.DefaultRingTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		ok, err := check(waitCtx)
		if err != nil {
			e.logger().Warn("participant check failed", "err", err)
		}
		if ok {
			return nil
		}
		if err := e.sleep(waitCtx, interval); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrParticipantWait
		}
	}
}

func (e *Entrypoint) runSession(ctx context.Context, log *slog.Logger, room, identity, greeting string) error {
	transport, err := e.Connect(ctx, room)
	if err != nil {
		return fmt.Errorf("%w: connect room: %v", ErrSessionStart, err)
	}
	defer transport.Close()

	tools := e.Tools
	if tools == nil {
		tools = DefaultToolbox(e.Sleep)
	}

	session, err := NewSession(SessionConfig{
		Persona: e.Persona,
		Room:    transport,
		STT:     e.STT,
		LLM:     e.LLM,
		TTS:     e.TTS,
		VAD:     media.NewEnergyVAD(e.VADThreshold),
		Turn:    media.NewTurnDetector(e.TurnHold),
		Tools:   tools,
		ToolCtx: ToolContext{
			Room:                room,
			ParticipantIdentity: identity,
			Control:             e.Control,
			Calls:               e.Calls,
			Log:                 log,
		},
		Log: log,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStart, err)
	}

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStart, err)
	}
	e.recordEvent(ctx, room, calls.EventSessionStarted, "")

	if err := session.GenerateReply(ctx, greeting); err != nil {
		log.Error("greeting failed", "err", err)
	}

	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (e *Entrypoint) recordStart(ctx context.Context, room, phone string, dir calls.Direction) {
	if e.Calls != nil {
		e.Calls.RecordJobStarted(ctx, room, phone, dir)
	}
}

func (e *Entrypoint) recordEvent(ctx context.Context, room string, typ calls.EventType, detail string) {
	if e.Calls != nil {
		e.Calls.RecordEvent(ctx, room, typ, detail)
	}
}

func (e *Entrypoint) recordOutcome(ctx context.Context, room, outcome string) {
	if e.Calls != nil {
		e.Calls.RecordOutcome(ctx, room, outcome)
	}
}
