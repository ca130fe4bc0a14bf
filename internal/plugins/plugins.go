// Package plugins defines the provider-agnostic speech and language
// interfaces the agent session is built on. Each vendor lives in its
// own subpackage and satisfies these interfaces.
package plugins

import (
	"context"
	"encoding/json"

	"voice-agent-platform/internal/media"
)

// Transcript is one speech-to-text result. Interim results carry
// Final=false and may be revised by later transcripts.
type Transcript struct {
	Text  string
	Final bool
}

// SpeechStream is a live transcription session. WriteFrame and Results
// operate concurrently; Close ends the stream and eventually closes
// the Results channel.
type SpeechStream interface {
	WriteFrame(f media.Frame) error
	Results() <-chan Transcript
	Close() error
}

// STT opens live transcription streams.
type STT interface {
	OpenStream(ctx context.Context) (SpeechStream, error)
}

// ChatMessage is one turn of LLM context.
type ChatMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content,omitempty"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls echoes the assistant's function calls when the message
	// is replayed back as context.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSchema describes a callable function to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Completion is the model's reply: assistant text, tool calls, or both.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// LLM produces chat completions with optional function calling.
type LLM interface {
	Complete(ctx context.Context, msgs []ChatMessage, tools []ToolSchema) (Completion, error)
}

// TTS renders text to a PCM frame.
type TTS interface {
	Synthesize(ctx context.Context, text string) (media.Frame, error)
}
