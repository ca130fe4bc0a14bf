package cartesia

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesize_ReturnsPCMFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/bytes" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "ck-test" {
			t.Errorf("missing api key header")
		}

		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["transcript"] != "hello" {
			t.Errorf("transcript = %v", req["transcript"])
		}
		out, _ := req["output_format"].(map[string]any)
		if out["encoding"] != "pcm_s16le" {
			t.Errorf("encoding = %v", out["encoding"])
		}

		// Two samples: 0x0001, 0x0002 little-endian.
		_, _ = w.Write([]byte{0x01, 0x00, 0x02, 0x00})
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "ck-test", BaseURL: srv.URL, VoiceID: "v1"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	f, err := c.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if f.SampleRate != 24000 {
		t.Fatalf("rate = %d", f.SampleRate)
	}
	if len(f.PCM) != 2 || f.PCM[0] != 1 || f.PCM[1] != 2 {
		t.Fatalf("pcm = %v", f.PCM)
	}
}

func TestSynthesize_EmptyTextSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty text")
	}))
	defer srv.Close()

	c, _ := New(Config{APIKey: "ck-test", BaseURL: srv.URL})
	f, err := c.Synthesize(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(f.PCM) != 0 {
		t.Fatalf("expected empty frame, got %d samples", len(f.PCM))
	}
}

func TestSynthesize_ErrorStatusSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := New(Config{APIKey: "ck-test", BaseURL: srv.URL})
	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
}
