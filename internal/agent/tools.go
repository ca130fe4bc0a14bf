package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/plugins"
	"voice-agent-platform/internal/telephony"
)

// ToolContext carries the per-call state a tool may act on.
type ToolContext struct {
	Room                string
	ParticipantIdentity string

	Control telephony.ControlPlane
	Calls   *calls.Service
	Log     *slog.Logger
}

func (tc ToolContext) logger() *slog.Logger {
	if tc.Log != nil {
		return tc.Log
	}
	return slog.Default()
}

// Tool is one function the model may invoke mid-conversation. The
// returned string is fed back to the model as the tool result.
type Tool interface {
	Schema() plugins.ToolSchema
	Invoke(ctx context.Context, tc ToolContext, args json.RawMessage) (string, error)
}

// Toolbox holds the tools offered to the model and dispatches calls by
// name. Tool failures are reported back to the model as results, never
// propagated; a flaky lookup should not kill the call.
type Toolbox struct {
	tools map[string]Tool
	order []string
}

func NewToolbox(tools ...Tool) *Toolbox {
	tb := &Toolbox{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Schema().Name
		tb.tools[name] = t
		tb.order = append(tb.order, name)
	}
	return tb
}

// DefaultToolbox is the standard phone-assistant tool set. sleep is
// injectable so tests skip the availability lookup delay.
func DefaultToolbox(sleep func(ctx context.Context, d time.Duration) error) *Toolbox {
	if sleep == nil {
		sleep = sleepCtx
	}
	return NewToolbox(
		endCallTool{},
		availabilityTool{sleep: sleep},
		confirmAppointmentTool{},
		answeringMachineTool{},
	)
}

// Schemas returns the tool definitions in registration order.
func (tb *Toolbox) Schemas() []plugins.ToolSchema {
	out := make([]plugins.ToolSchema, 0, len(tb.order))
	for _, name := range tb.order {
		out = append(out, tb.tools[name].Schema())
	}
	return out
}

// Invoke runs one model-requested tool call.
func (tb *Toolbox) Invoke(ctx context.Context, tc ToolContext, call plugins.ToolCall) string {
	log := tc.logger()
	tool, ok := tb.tools[call.Name]
	if !ok {
		log.Warn("model requested unknown tool", "tool", call.Name)
		return fmt.Sprintf("unknown tool %q", call.Name)
	}

	if tc.Calls != nil {
		tc.Calls.RecordEvent(ctx, tc.Room, calls.EventToolInvoked, call.Name)
	}

	result, err := tool.Invoke(ctx, tc, json.RawMessage(call.Arguments))
	if err != nil {
		log.Error("tool invocation failed", "tool", call.Name, "err", err)
		return "the operation failed, apologize and continue the conversation"
	}
	return result
}

/* ===================== end_call ===================== */

type endCallTool struct{}

func (endCallTool) Schema() plugins.ToolSchema {
	return plugins.ToolSchema{
		Name:        "end_call",
		Description: "Hang up the current phone call when the conversation is finished.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

func (endCallTool) Invoke(ctx context.Context, tc ToolContext, _ json.RawMessage) (string, error) {
	tc.logger().Info("ending call", "identity", tc.ParticipantIdentity)
	if err := tc.Control.RemoveParticipant(ctx, tc.Room, tc.ParticipantIdentity); err != nil {
		return "", fmt.Errorf("agent: end call: %w", err)
	}
	return "call ended", nil
}

/* ===================== look_up_availability ===================== */

type availabilityTool struct {
	sleep func(ctx context.Context, d time.Duration) error
}

// availabilityLookupDelay imitates the latency of a real calendar
// backend until one is attached.
const availabilityLookupDelay = 3 * time.Second

func (availabilityTool) Schema() plugins.ToolSchema {
	return plugins.ToolSchema{
		Name:        "look_up_availability",
		Description: "Look up free consultation slots on a given date.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"date": {"type": "string", "description": "The requested date"}},
			"required": ["date"]
		}`),
	}
}

func (t availabilityTool) Invoke(ctx context.Context, tc ToolContext, args json.RawMessage) (string, error) {
	var in struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("agent: availability args: %w", err)
	}
	tc.logger().Info("looking up availability", "date", in.Date)

	if err := t.sleep(ctx, availabilityLookupDelay); err != nil {
		return "", err
	}
	return `{"available_times": ["1pm", "2pm", "3pm"]}`, nil
}

/* ===================== confirm_appointment ===================== */

type confirmAppointmentTool struct{}

func (confirmAppointmentTool) Schema() plugins.ToolSchema {
	return plugins.ToolSchema{
		Name:        "confirm_appointment",
		Description: "Confirm a consultation appointment at a given date and time.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"date": {"type": "string"},
				"time": {"type": "string"}
			},
			"required": ["date", "time"]
		}`),
	}
}

func (confirmAppointmentTool) Invoke(ctx context.Context, tc ToolContext, args json.RawMessage) (string, error) {
	var in struct {
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("agent: confirm args: %w", err)
	}
	tc.logger().Info("confirming appointment", "identity", tc.ParticipantIdentity, "date", in.Date, "time", in.Time)
	return "Reservation confirmed", nil
}

/* ===================== detected_answering_machine ===================== */

type answeringMachineTool struct{}

func (answeringMachineTool) Schema() plugins.ToolSchema {
	return plugins.ToolSchema{
		Name:        "detected_answering_machine",
		Description: "Report that the call was answered by voicemail or an answering machine.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

func (answeringMachineTool) Invoke(ctx context.Context, tc ToolContext, _ json.RawMessage) (string, error) {
	tc.logger().Info("detected answering machine", "room", tc.Room)
	return "noted", nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
