// Package cartesia implements text-to-speech via Cartesia's bytes API,
// returning raw PCM suitable for direct room publishing.
package cartesia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voice-agent-platform/internal/media"
)

const (
	defaultBaseURL = "https://api.cartesia.ai"
	apiVersion     = "2024-06-10"
)

var ErrAPIKeyRequired = errors.New("cartesia: CARTESIA_API_KEY is required")

type Config struct {
	APIKey  string
	BaseURL string

	Model   string
	VoiceID string

	// SampleRate of the returned PCM. Defaults to 24000, the model's
	// native rate.
	SampleRate int
}

func (c Config) withDefaults() Config {
	out := c
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}
	if out.Model == "" {
		out.Model = "sonic"
	}
	if out.SampleRate <= 0 {
		out.SampleRate = 24000
	}
	return out
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	return &Client{
		cfg:  cfg.withDefaults(),
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type ttsRequest struct {
	ModelID    string     `json:"model_id"`
	Transcript string     `json:"transcript"`
	Voice      voiceSpec  `json:"voice"`
	Output     outputSpec `json:"output_format"`
	Language   string     `json:"language"`
}

type voiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputSpec struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// Synthesize renders text to one PCM frame.
func (c *Client) Synthesize(ctx context.Context, text string) (media.Frame, error) {
	if strings.TrimSpace(text) == "" {
		return media.Frame{SampleRate: c.cfg.SampleRate}, nil
	}

	body, err := json.Marshal(ttsRequest{
		ModelID:    c.cfg.Model,
		Transcript: text,
		Voice:      voiceSpec{Mode: "id", ID: c.cfg.VoiceID},
		Output:     outputSpec{Container: "raw", Encoding: "pcm_s16le", SampleRate: c.cfg.SampleRate},
		Language:   "en",
	})
	if err != nil {
		return media.Frame{}, fmt.Errorf("cartesia: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return media.Frame{}, fmt.Errorf("cartesia: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	req.Header.Set("Cartesia-Version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return media.Frame{}, fmt.Errorf("cartesia: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return media.Frame{}, fmt.Errorf("cartesia: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return media.Frame{}, fmt.Errorf("cartesia: read audio: %w", err)
	}
	return media.FrameFromBytes(pcm, c.cfg.SampleRate), nil
}
