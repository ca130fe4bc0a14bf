// Package media carries PCM audio between the room transport and the
// speech services, and hosts the local voice-activity and turn-taking
// detectors.
package media

import "time"

// Frame is a chunk of mono 16-bit PCM audio.
type Frame struct {
	PCM        []int16
	SampleRate int
}

func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.PCM)) * time.Second / time.Duration(f.SampleRate)
}

// Bytes returns the samples as little-endian PCM, the shape the speech
// vendors consume.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f.PCM)*2)
	for i, s := range f.PCM {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// FrameFromBytes parses little-endian PCM back into samples. A trailing
// odd byte is dropped.
func FrameFromBytes(b []byte, sampleRate int) Frame {
	n := len(b) / 2
	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return Frame{PCM: pcm, SampleRate: sampleRate}
}
