package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voice-agent-platform/internal/media"
	"voice-agent-platform/internal/plugins"
)

// RoomTransport is the audio surface of a connected room.
type RoomTransport interface {
	Frames() <-chan media.Frame
	Publish(ctx context.Context, f media.Frame) error
	Close()
}

// maxToolRounds bounds the tool-call loop within a single reply.
const maxToolRounds = 5

// SessionConfig assembles one conversation pipeline.
type SessionConfig struct {
	Persona Persona
	Room    RoomTransport

	STT plugins.STT
	LLM plugins.LLM
	TTS plugins.TTS

	VAD  *media.EnergyVAD
	Turn *media.TurnDetector

	Tools   *Toolbox
	ToolCtx ToolContext

	Log *slog.Logger
}

// Session drives one live conversation: caller audio in, transcripts
// through the model, synthesized replies out. Run owns all state; no
// method is safe to call concurrently with it except Close on the
// transport.
type Session struct {
	cfg    SessionConfig
	stream plugins.SpeechStream

	history []plugins.ChatMessage
	pending []string
	log     *slog.Logger
}

// NewSession validates the pipeline and primes the model context with
// the persona instructions.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Room == nil || cfg.STT == nil || cfg.LLM == nil || cfg.TTS == nil {
		return nil, errors.New("agent: session requires room, stt, llm and tts")
	}
	if cfg.VAD == nil {
		cfg.VAD = media.NewEnergyVAD(0)
	}
	if cfg.Turn == nil {
		cfg.Turn = media.NewTurnDetector(0)
	}
	if cfg.Tools == nil {
		cfg.Tools = NewToolbox()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Session{
		cfg: cfg,
		history: []plugins.ChatMessage{
			{Role: plugins.RoleSystem, Content: cfg.Persona.Instructions},
		},
		log: log,
	}, nil
}

// Start opens the transcription stream. It must be called before Run
// or GenerateReply.
func (s *Session) Start(ctx context.Context) error {
	stream, err := s.cfg.STT.OpenStream(ctx)
	if err != nil {
		return fmt.Errorf("agent: open stt stream: %w", err)
	}
	s.stream = stream
	return nil
}

// GenerateReply has the assistant speak first, steered by a one-off
// instruction. Used for the per-flow greeting.
func (s *Session) GenerateReply(ctx context.Context, instructions string) error {
	s.history = append(s.history, plugins.ChatMessage{Role: plugins.RoleSystem, Content: instructions})
	text, err := s.complete(ctx)
	if err != nil {
		return err
	}
	return s.speak(ctx, text)
}

// Run pumps caller audio until the transport closes or ctx is
// cancelled. Each detected end of turn produces one assistant reply.
func (s *Session) Run(ctx context.Context) error {
	if s.stream == nil {
		return errors.New("agent: session not started")
	}
	defer func() {
		if err := s.stream.Close(); err != nil {
			s.log.Warn("stt stream close failed", "err", err)
		}
	}()

	frames := s.cfg.Room.Frames()
	results := s.stream.Results()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f, ok := <-frames:
			if !ok {
				s.log.Info("room audio ended")
				return nil
			}
			if err := s.stream.WriteFrame(f); err != nil {
				// Transcription is gone; the conversation cannot continue.
				return fmt.Errorf("agent: stt write: %w", err)
			}
			_, speech := s.cfg.VAD.Process(f)
			if s.cfg.Turn.Observe(speech, f.Duration()) {
				if err := s.respond(ctx); err != nil {
					return err
				}
			}

		case tr, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			if tr.Final {
				s.pending = append(s.pending, tr.Text)
			}
		}
	}
}

// respond turns the accumulated transcripts into one assistant reply.
// A turn with no final transcript (breath, line noise) is skipped.
func (s *Session) respond(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	userText := strings.TrimSpace(strings.Join(s.pending, " "))
	s.pending = s.pending[:0]
	if userText == "" {
		return nil
	}

	s.log.Debug("user turn", "text", userText)
	s.history = append(s.history, plugins.ChatMessage{Role: plugins.RoleUser, Content: userText})

	text, err := s.complete(ctx)
	if err != nil {
		return err
	}
	return s.speak(ctx, text)
}

// complete runs the model, executing requested tools until it settles
// on a text reply.
func (s *Session) complete(ctx context.Context) (string, error) {
	for round := 0; round < maxToolRounds; round++ {
		out, err := s.cfg.LLM.Complete(ctx, s.history, s.cfg.Tools.Schemas())
		if err != nil {
			return "", fmt.Errorf("agent: completion: %w", err)
		}

		if len(out.ToolCalls) == 0 {
			s.history = append(s.history, plugins.ChatMessage{Role: plugins.RoleAssistant, Content: out.Text})
			return out.Text, nil
		}

		s.history = append(s.history, plugins.ChatMessage{
			Role:      plugins.RoleAssistant,
			Content:   out.Text,
			ToolCalls: out.ToolCalls,
		})
		for _, call := range out.ToolCalls {
			result := s.cfg.Tools.Invoke(ctx, s.cfg.ToolCtx, call)
			s.history = append(s.history, plugins.ChatMessage{
				Role:       plugins.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}
	return "", errors.New("agent: tool loop did not settle")
}

func (s *Session) speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	frame, err := s.cfg.TTS.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("agent: synthesize: %w", err)
	}
	// The caller may have gone quiet while we spoke; a fresh turn starts
	// after playout.
	s.cfg.Turn.Reset()
	if err := s.cfg.Room.Publish(ctx, frame); err != nil {
		return fmt.Errorf("agent: publish reply: %w", err)
	}
	return nil
}
