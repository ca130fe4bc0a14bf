package media

import (
	"math"
	"testing"
	"time"
)

func sine(freq float64, amp float64, n, sampleRate int) Frame {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(amp * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return Frame{PCM: pcm, SampleRate: sampleRate}
}

func silence(n, sampleRate int) Frame {
	return Frame{PCM: make([]int16, n), SampleRate: sampleRate}
}

func TestFrame_BytesRoundTrip(t *testing.T) {
	f := Frame{PCM: []int16{0, 1, -1, 32767, -32768}, SampleRate: 16000}
	got := FrameFromBytes(f.Bytes(), 16000)
	if len(got.PCM) != len(f.PCM) {
		t.Fatalf("len = %d, want %d", len(got.PCM), len(f.PCM))
	}
	for i := range f.PCM {
		if got.PCM[i] != f.PCM[i] {
			t.Fatalf("sample %d = %d, want %d", i, got.PCM[i], f.PCM[i])
		}
	}
}

func TestFrame_Duration(t *testing.T) {
	f := silence(1600, 16000)
	if d := f.Duration(); d != 100*time.Millisecond {
		t.Fatalf("duration = %v, want 100ms", d)
	}
}

func TestEnergyVAD_SpeechAfterSilence(t *testing.T) {
	vad := NewEnergyVAD(0.6)

	// Establish a noise floor.
	for i := 0; i < 10; i++ {
		vad.Process(sine(200, 0.005, 1600, 16000))
	}

	prob, speaking := vad.Process(sine(200, 0.5, 1600, 16000))
	if !speaking {
		t.Fatalf("loud frame not detected as speech (prob=%v)", prob)
	}

	_, speaking = vad.Process(sine(200, 0.005, 1600, 16000))
	if speaking {
		t.Fatalf("quiet frame detected as speech")
	}
}

func TestEnergyVAD_EmptyFrame(t *testing.T) {
	vad := NewEnergyVAD(0.6)
	if prob, speaking := vad.Process(Frame{}); speaking || prob != 0 {
		t.Fatalf("empty frame: prob=%v speaking=%v", prob, speaking)
	}
}

func TestTurnDetector_ClosesAfterHold(t *testing.T) {
	d := NewTurnDetector(300 * time.Millisecond)
	frame := 100 * time.Millisecond

	// Silence before any speech never closes a turn.
	for i := 0; i < 10; i++ {
		if d.Observe(false, frame) {
			t.Fatalf("turn closed before speech")
		}
	}

	d.Observe(true, frame)
	d.Observe(true, frame)

	if d.Observe(false, frame) {
		t.Fatalf("turn closed before hold elapsed")
	}
	if d.Observe(false, frame) {
		t.Fatalf("turn closed before hold elapsed")
	}
	if !d.Observe(false, frame) {
		t.Fatalf("turn not closed after hold")
	}

	// Exactly once per turn.
	if d.Observe(false, frame) {
		t.Fatalf("turn closed twice")
	}
}

func TestTurnDetector_SpeechResetsSilence(t *testing.T) {
	d := NewTurnDetector(200 * time.Millisecond)
	frame := 100 * time.Millisecond

	d.Observe(true, frame)
	d.Observe(false, frame)
	d.Observe(true, frame) // caller resumed
	if d.Observe(false, frame) {
		t.Fatalf("turn closed despite resumed speech")
	}
	if !d.Observe(false, frame) {
		t.Fatalf("turn not closed")
	}
}
