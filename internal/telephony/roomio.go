package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	webrtcmedia "github.com/pion/webrtc/v4/pkg/media"
	opus "gopkg.in/hraban/opus.v2"

	"voice-agent-platform/internal/media"
)

// Room audio runs at the codec's native rate, mono.
const (
	roomSampleRate = 48000
	roomChannels   = 1

	// Opus packets are encoded in 20ms frames.
	opusFrameSamples = roomSampleRate / 50
)

// RoomConfig describes one media connection into a call's room.
type RoomConfig struct {
	URL       string
	APIKey    string
	APISecret string

	RoomName string
	Identity string

	// NoiseSuppression enables a noise gate on inbound call audio.
	NoiseSuppression bool
}

// RoomIO is the media leg of a call: it joins the room as the agent,
// receives the caller's audio as PCM frames and publishes synthesized
// speech back. One RoomIO per call job.
type RoomIO struct {
	cfg RoomConfig
	log *slog.Logger

	room     *lksdk.Room
	provider *sampleProvider

	// frames is closed exactly once, after every pump has exited:
	// either when the remote side leaves or when Close runs.
	frames chan media.Frame
	done   chan struct{}
	pumps  sync.WaitGroup

	mu        sync.Mutex
	published bool
	closed    bool
	ended     bool

	gate *noiseGate
}

// ConnectRoom joins the room and begins decoding remote audio.
func ConnectRoom(ctx context.Context, cfg RoomConfig, log *slog.Logger) (*RoomIO, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &RoomIO{
		cfg:    cfg,
		log:    log,
		frames: make(chan media.Frame, 64),
		done:   make(chan struct{}),
	}
	if cfg.NoiseSuppression {
		r.gate = &noiseGate{}
	}

	callback := &lksdk.RoomCallback{
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			log.Debug("participant connected", "identity", rp.Identity())
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			log.Info("participant disconnected", "identity", rp.Identity())
			// The caller left; the conversation is over. endFrames waits
			// for the pumps, so run it off the callback goroutine.
			go r.endFrames()
		},
		OnDisconnected: func() {
			go r.endFrames()
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackPublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if pub.Kind() != lksdk.TrackKindAudio {
					return
				}
				// Never subscribe to our own output.
				if rp.Identity() == cfg.Identity {
					return
				}
				if pub.Source() != livekit.TrackSource_MICROPHONE {
					return
				}
				if err := pub.SetSubscribed(true); err != nil {
					log.Warn("audio track subscribe failed", "identity", rp.Identity(), "err", err)
				}
			},
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if track.Kind() != webrtc.RTPCodecTypeAudio {
					return
				}
				r.startPump(track, rp.Identity())
			},
		},
	}

	room, err := lksdk.ConnectToRoom(cfg.URL, lksdk.ConnectInfo{
		APIKey:              cfg.APIKey,
		APISecret:           cfg.APISecret,
		RoomName:            cfg.RoomName,
		ParticipantIdentity: cfg.Identity,
		ParticipantName:     cfg.Identity,
	}, callback)
	if err != nil {
		return nil, fmt.Errorf("telephony: connect room %q: %w", cfg.RoomName, err)
	}
	r.room = room
	log.Info("connected to room", "room", room.Name())
	return r, nil
}

// Frames streams the caller's audio as 48kHz mono PCM. The channel is
// closed when the transport closes; frames are dropped, not buffered
// without bound, if the consumer falls behind.
func (r *RoomIO) Frames() <-chan media.Frame { return r.frames }

// Publish queues synthesized PCM for playout on the agent's audio track.
// The track is created lazily on first use.
func (r *RoomIO) Publish(ctx context.Context, f media.Frame) error {
	if f.SampleRate != roomSampleRate {
		f = resample(f, roomSampleRate)
	}
	if err := r.ensureTrack(); err != nil {
		return err
	}
	enc := r.provider

	// Chunk into fixed opus frame sizes; the encoder rejects others.
	pcm := f.PCM
	for len(pcm) > 0 {
		n := opusFrameSamples
		if len(pcm) < n {
			// Pad the tail chunk with silence.
			padded := make([]int16, opusFrameSamples)
			copy(padded, pcm)
			pcm = padded
			n = opusFrameSamples
		}
		if err := enc.QueuePCM(ctx, pcm[:n]); err != nil {
			return err
		}
		pcm = pcm[n:]
	}
	return nil
}

// Close disconnects from the room and stops all pumps.
func (r *RoomIO) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	provider := r.provider
	r.mu.Unlock()

	if provider != nil {
		provider.Close()
	}
	r.room.Disconnect()
	r.endFrames()
}

// startPump begins decoding one remote track, unless the frame stream
// has already ended.
func (r *RoomIO) startPump(track *webrtc.TrackRemote, identity string) {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.pumps.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.pumps.Done()
		r.pumpTrack(track, identity)
	}()
}

// endFrames ends the frame stream exactly once. It signals the pumps,
// waits for them, and only then closes the channel, so no pump can
// send on a closed channel.
func (r *RoomIO) endFrames() {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	r.mu.Unlock()

	close(r.done)
	r.pumps.Wait()
	close(r.frames)
}

func (r *RoomIO) ensureTrack() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("telephony: room transport closed")
	}
	if r.published {
		return nil
	}

	enc, err := opus.NewEncoder(roomSampleRate, roomChannels, opus.AppVoIP)
	if err != nil {
		return fmt.Errorf("telephony: opus encoder: %w", err)
	}
	provider := newSampleProvider(enc)

	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType: webrtc.MimeTypeOpus,
	})
	if err != nil {
		return fmt.Errorf("telephony: create audio track: %w", err)
	}
	if err := track.StartWrite(provider, func() {
		r.log.Debug("audio track write completed")
	}); err != nil {
		return fmt.Errorf("telephony: start track writer: %w", err)
	}

	if _, err := r.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "agent-voice",
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		return fmt.Errorf("telephony: publish audio track: %w", err)
	}

	r.provider = provider
	r.published = true
	return nil
}

// pumpTrack decodes one remote audio track into the shared frame channel.
func (r *RoomIO) pumpTrack(track *webrtc.TrackRemote, identity string) {
	dec, err := opus.NewDecoder(roomSampleRate, roomChannels)
	if err != nil {
		r.log.Error("opus decoder init failed", "identity", identity, "err", err)
		return
	}
	buf := make([]int16, 5760) // up to 120ms at 48kHz

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Debug("audio track read ended", "identity", identity, "err", err)
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, buf)
		if err != nil || n == 0 {
			continue
		}

		pcm := make([]int16, n)
		copy(pcm, buf[:n])
		frame := media.Frame{PCM: pcm, SampleRate: roomSampleRate}
		if r.gate != nil {
			frame = r.gate.apply(frame)
		}

		select {
		case <-r.done:
			return
		case r.frames <- frame:
		default:
			// Consumer is behind; drop rather than stall the RTP pump.
		}
	}
}

// sampleProvider feeds opus-encoded packets to the published track.
type sampleProvider struct {
	enc     *opus.Encoder
	samples chan webrtcmedia.Sample

	mu     sync.Mutex
	closed bool
}

func newSampleProvider(enc *opus.Encoder) *sampleProvider {
	return &sampleProvider{
		enc:     enc,
		samples: make(chan webrtcmedia.Sample, 128),
	}
}

func (p *sampleProvider) QueuePCM(ctx context.Context, pcm []int16) error {
	out := make([]byte, 1500)
	n, err := p.enc.Encode(pcm, out)
	if err != nil {
		return fmt.Errorf("telephony: opus encode: %w", err)
	}
	sample := webrtcmedia.Sample{
		Data:     out[:n],
		Duration: 20 * time.Millisecond,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("telephony: sample provider closed")
	}
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.samples <- sample:
		return nil
	}
}

func (p *sampleProvider) NextSample(ctx context.Context) (webrtcmedia.Sample, error) {
	select {
	case <-ctx.Done():
		return webrtcmedia.Sample{}, ctx.Err()
	case s, ok := <-p.samples:
		if !ok {
			return webrtcmedia.Sample{}, io.EOF
		}
		return s, nil
	}
}

func (p *sampleProvider) OnBind() error   { return nil }
func (p *sampleProvider) OnUnbind() error { return nil }

func (p *sampleProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.samples)
	}
}

// noiseGate zeroes frames whose energy sits at the adaptive noise floor.
type noiseGate struct {
	floor float64
}

func (g *noiseGate) apply(f media.Frame) media.Frame {
	if len(f.PCM) == 0 {
		return f
	}
	var sum float64
	for _, s := range f.PCM {
		fs := float64(s) / math.MaxInt16
		sum += fs * fs
	}
	rms := math.Sqrt(sum / float64(len(f.PCM)))

	if g.floor == 0 || rms < g.floor {
		g.floor = g.floor*0.95 + rms*0.05
		if g.floor == 0 {
			g.floor = rms
		}
	}
	if rms < g.floor*2 {
		// Below twice the floor: treat as line noise.
		silent := make([]int16, len(f.PCM))
		return media.Frame{PCM: silent, SampleRate: f.SampleRate}
	}
	return f
}

// resample performs nearest-sample rate conversion, sufficient for
// bridging vendor output rates onto the room rate.
func resample(f media.Frame, rate int) media.Frame {
	if f.SampleRate == rate || f.SampleRate <= 0 {
		return media.Frame{PCM: f.PCM, SampleRate: rate}
	}
	ratio := float64(rate) / float64(f.SampleRate)
	n := int(float64(len(f.PCM)) * ratio)
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		src := int(float64(i) / ratio)
		if src >= len(f.PCM) {
			src = len(f.PCM) - 1
		}
		out[i] = f.PCM[src]
	}
	return media.Frame{PCM: out, SampleRate: rate}
}
