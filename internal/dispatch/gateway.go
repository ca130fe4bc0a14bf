// Package dispatch triggers outbound call jobs through the control
// plane's dispatch CLI and exposes the HTTP surface that fronts it.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"voice-agent-platform/internal/job"
)

// ErrInvalidRequest is returned before any external process is spawned.
var ErrInvalidRequest = errors.New("dispatch: room and phone_number are required")

// DispatchError carries the diagnostic output of a failed CLI invocation
// so the HTTP layer can surface it.
type DispatchError struct {
	Output string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("dispatch: %v: %s", e.Err, strings.TrimSpace(e.Output))
	}
	return fmt.Sprintf("dispatch: %v", e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Runner executes the external dispatch CLI. Injectable for tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs real processes via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.String(), errb.String(), err
}

// Gateway asks the control plane to create a dispatch job for the agent
// in a named room. Exactly one CLI process per call; no retries, and no
// idempotency of its own (see Guard).
type Gateway struct {
	cliPath   string
	agentName string
	runner    Runner
	log       *slog.Logger
}

func NewGateway(cliPath, agentName string, runner Runner, log *slog.Logger) *Gateway {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{cliPath: cliPath, agentName: agentName, runner: runner, log: log}
}

// StartCall dispatches one outbound call job. Returns the CLI's stdout
// on success.
func (g *Gateway) StartCall(ctx context.Context, room, phoneNumber string) (string, error) {
	room = strings.TrimSpace(room)
	phoneNumber = strings.TrimSpace(phoneNumber)
	if room == "" || phoneNumber == "" {
		return "", ErrInvalidRequest
	}

	metadata, err := job.EncodeMetadata(map[string]string{
		job.MetadataPhoneNumber: phoneNumber,
	})
	if err != nil {
		return "", err
	}

	g.log.Info("dispatching outbound call", "room", room, "agent", g.agentName)

	stdout, stderr, err := g.runner.Run(ctx, g.cliPath,
		"dispatch", "create",
		"--room", room,
		"--agent-name", g.agentName,
		"--metadata", metadata,
	)
	if err != nil {
		return "", &DispatchError{Output: stderr, Err: err}
	}
	return stdout, nil
}
