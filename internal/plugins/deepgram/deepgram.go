// Package deepgram implements live speech-to-text over the Deepgram
// streaming websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voice-agent-platform/internal/media"
	"voice-agent-platform/internal/plugins"
)

const defaultHost = "wss://api.deepgram.com"

var ErrAPIKeyRequired = errors.New("deepgram: DEEPGRAM_API_KEY is required")

type Config struct {
	APIKey string
	Host   string

	// Model defaults to the phone-call tuned variant.
	Model    string
	Language string

	// SampleRate of the PCM frames that will be written. Linear16 only.
	SampleRate int
}

func (c Config) withDefaults() Config {
	out := c
	if out.Host == "" {
		out.Host = defaultHost
	}
	if out.Model == "" {
		out.Model = "nova-2-phonecall"
	}
	if out.Language == "" {
		out.Language = "en"
	}
	if out.SampleRate <= 0 {
		out.SampleRate = 48000
	}
	return out
}

// STT opens live transcription streams against one Deepgram project.
type STT struct {
	cfg    Config
	dialer *websocket.Dialer
}

func New(cfg Config) (*STT, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	return &STT{
		cfg:    cfg.withDefaults(),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (s *STT) listenURL() string {
	q := url.Values{}
	q.Set("model", s.cfg.Model)
	q.Set("language", s.cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(s.cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("endpointing", "300")
	return s.cfg.Host + "/v1/listen?" + q.Encode()
}

// OpenStream dials the live API and starts the reader loop.
func (s *STT) OpenStream(ctx context.Context) (plugins.SpeechStream, error) {
	header := http.Header{"Authorization": {"Token " + s.cfg.APIKey}}
	conn, resp, err := s.dialer.DialContext(ctx, s.listenURL(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram: dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	st := &stream{
		conn:    conn,
		results: make(chan plugins.Transcript, 16),
		done:    make(chan struct{}),
	}
	go st.readLoop()
	return st, nil
}

type stream struct {
	conn    *websocket.Conn
	results chan plugins.Transcript

	// done releases the reader once the consumer is gone; without it a
	// full results buffer would pin the read loop forever.
	done chan struct{}

	writeMu sync.Mutex
	closed  bool
}

// liveResult is the subset of Deepgram's live response we consume.
type liveResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *stream) WriteFrame(f media.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return errors.New("deepgram: stream closed")
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, f.Bytes()); err != nil {
		return fmt.Errorf("deepgram: write frame: %w", err)
	}
	return nil
}

func (s *stream) Results() <-chan plugins.Transcript { return s.results }

// Close tells the server the audio is finished and tears the socket
// down. The reader loop closes the results channel when the server
// hangs up.
func (s *stream) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	return s.conn.Close()
}

func (s *stream) readLoop() {
	defer close(s.results)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var res liveResult
		if err := json.Unmarshal(payload, &res); err != nil {
			continue
		}
		if res.Type != "" && res.Type != "Results" {
			continue
		}
		if len(res.Channel.Alternatives) == 0 {
			continue
		}
		text := res.Channel.Alternatives[0].Transcript
		if text == "" {
			continue
		}
		select {
		case s.results <- plugins.Transcript{Text: text, Final: res.IsFinal}:
		case <-s.done:
			// Nobody is listening anymore; drop the transcript and exit.
			return
		}
	}
}
