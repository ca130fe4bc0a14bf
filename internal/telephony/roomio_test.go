package telephony

import (
	"testing"
	"time"

	"voice-agent-platform/internal/media"
)

// drainUntilClosed consumes frames until the channel closes or the
// deadline passes.
func drainUntilClosed(t *testing.T, frames <-chan media.Frame) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("frame channel never closed")
		}
	}
}

func TestRoomIO_EndFramesClosesChannel(t *testing.T) {
	r := &RoomIO{frames: make(chan media.Frame, 4), done: make(chan struct{})}

	r.endFrames()
	drainUntilClosed(t, r.frames)

	// The disconnect callback and Close can race; the second call must
	// be a no-op, not a double close.
	r.endFrames()
}

func TestRoomIO_EndFramesWaitsForInFlightSend(t *testing.T) {
	r := &RoomIO{frames: make(chan media.Frame, 1), done: make(chan struct{})}

	// Stand-in for a pump holding a decoded frame across the shutdown
	// window: it attempts the send only once shutdown has begun.
	released := make(chan struct{})
	r.pumps.Add(1)
	go func() {
		defer r.pumps.Done()
		<-released
		select {
		case <-r.done:
		case r.frames <- media.Frame{PCM: []int16{1}, SampleRate: 48000}:
		default:
		}
	}()

	go r.endFrames()
	close(released)
	drainUntilClosed(t, r.frames)
}

func TestRoomIO_NoPumpStartsAfterEnd(t *testing.T) {
	r := &RoomIO{frames: make(chan media.Frame, 1), done: make(chan struct{})}
	r.endFrames()

	r.startPump(nil, "caller")

	// Nothing was registered, so Wait must return immediately.
	waited := make(chan struct{})
	go func() {
		r.pumps.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("a pump was started after shutdown")
	}
}
