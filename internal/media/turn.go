package media

import "time"

// TurnDetector decides when the caller has finished speaking. It is a
// silence-hold detector: once speech has been observed, a configurable
// stretch of non-speech ends the turn.
type TurnDetector struct {
	// Hold is the silence duration that closes a turn.
	Hold time.Duration

	speaking bool
	silence  time.Duration
}

const DefaultTurnHold = 700 * time.Millisecond

func NewTurnDetector(hold time.Duration) *TurnDetector {
	if hold <= 0 {
		hold = DefaultTurnHold
	}
	return &TurnDetector{Hold: hold}
}

// Observe feeds one VAD decision plus the frame duration. It returns
// true exactly once per turn, on the frame that closes it.
func (d *TurnDetector) Observe(speech bool, frameDur time.Duration) bool {
	if speech {
		d.speaking = true
		d.silence = 0
		return false
	}
	if !d.speaking {
		return false
	}
	d.silence += frameDur
	if d.silence >= d.Hold {
		d.speaking = false
		d.silence = 0
		return true
	}
	return false
}

// Reset clears turn state, used when the assistant starts speaking.
func (d *TurnDetector) Reset() {
	d.speaking = false
	d.silence = 0
}
