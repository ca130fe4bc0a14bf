// Package callmonitor tracks the call-progress state of an outbound SIP
// participant by polling its call-status attribute until the far end
// answers, the call fails, or ringing exceeds the configured timeout.
package callmonitor

import (
	"context"
	"log/slog"
	"time"
)

// Status values observed on the participant attribute. The set is owned
// by the telephony control plane; anything else is treated as unknown.
type Status string

const (
	StatusRinging    Status = "ringing"
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
	StatusRejected   Status = "rejected"
	StatusUnknown    Status = ""
)

// AttributeCallStatus is the participant attribute key carrying Status.
const AttributeCallStatus = "sip.callStatus"

// Outcome is the single terminal result of one monitored call attempt.
type Outcome string

const (
	// OutcomeActive means the far end picked up; the caller should
	// start a conversation session.
	OutcomeActive Outcome = "active"

	OutcomeTerminated Outcome = "terminated"
	OutcomeRejected   Outcome = "rejected"

	// OutcomeRingTimeout is synthetic: no definitive status arrived
	// before the ring deadline.
	OutcomeRingTimeout Outcome = "ring_timeout"
)

// Answered reports whether a session may be created for this outcome.
func (o Outcome) Answered() bool { return o == OutcomeActive }

// StatusFunc reads the current call status. Errors are tolerated: the
// monitor logs them and keeps polling as if the status were unknown.
type StatusFunc func(ctx context.Context) (Status, error)

// CleanupFunc tears down the call's room. Invoked best-effort on ring
// timeout; its error is logged, never propagated.
type CleanupFunc func(ctx context.Context) error

const (
	DefaultInterval    = 100 * time.Millisecond
	DefaultRingTimeout = 30 * time.Second
)

// Monitor polls one outbound call attempt. Now and Sleep are injectable
// so tests can drive the loop with a fake clock.
type Monitor struct {
	Read        StatusFunc
	Cleanup     CleanupFunc
	Interval    time.Duration
	RingTimeout time.Duration
	Log         *slog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Monitor with production defaults.
func New(read StatusFunc, cleanup CleanupFunc, log *slog.Logger) *Monitor {
	return &Monitor{
		Read:        read,
		Cleanup:     cleanup,
		Interval:    DefaultInterval,
		RingTimeout: DefaultRingTimeout,
		Log:         log,
	}
}

// Wait polls until a terminal state is reached and returns exactly one
// Outcome. Ringing (or any non-terminal status, including absent) past
// the deadline yields OutcomeRingTimeout, so polling is always bounded.
// The only error returned is the context's, when the caller is torn down
// mid-call.
func (m *Monitor) Wait(ctx context.Context) (Outcome, error) {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := m.RingTimeout
	if timeout <= 0 {
		timeout = DefaultRingTimeout
	}
	now := m.Now
	if now == nil {
		now = time.Now
	}
	sleep := m.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	log := m.Log
	if log == nil {
		log = slog.Default()
	}

	deadline := now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		status, err := m.Read(ctx)
		if err != nil {
			// Degrade to "not yet active" and keep polling; the ring
			// deadline bounds the loop even if reads never recover.
			log.Warn("call status read failed", "err", err)
			status = StatusUnknown
		} else {
			log.Debug("call status", "status", string(status))
		}

		switch status {
		case StatusActive:
			log.Info("call answered")
			return OutcomeActive, nil
		case StatusTerminated:
			log.Info("call terminated before answer")
			return OutcomeTerminated, nil
		case StatusRejected:
			log.Info("call rejected")
			return OutcomeRejected, nil
		}

		if !now().Before(deadline) {
			log.Warn("ring timeout reached", "timeout", timeout, "last_status", string(status))
			m.teardown(ctx, log)
			return OutcomeRingTimeout, nil
		}

		if err := sleep(ctx, interval); err != nil {
			return "", err
		}
	}
}

func (m *Monitor) teardown(ctx context.Context, log *slog.Logger) {
	if m.Cleanup == nil {
		return
	}
	if err := m.Cleanup(ctx); err != nil {
		log.Error("room cleanup after ring timeout failed", "err", err)
	}
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
