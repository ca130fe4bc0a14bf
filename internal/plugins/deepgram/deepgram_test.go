package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voice-agent-platform/internal/media"
)

// fakeDeepgram upgrades /v1/listen, echoes one transcript per binary
// frame it receives, and closes when the client sends CloseStream.
func fakeDeepgram(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/listen") {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Token ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("encoding") != "linear16" {
			t.Errorf("encoding = %q", r.URL.Query().Get("encoding"))
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage {
				return
			}
			msg := `{"type":"Results","is_final":true,` +
				`"channel":{"alternatives":[{"transcript":"book me for two pm"}]}}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
	}))
}

func TestOpenStream_TranscribesFrames(t *testing.T) {
	srv := fakeDeepgram(t)
	defer srv.Close()

	stt, err := New(Config{
		APIKey:     "dg-test",
		Host:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		SampleRate: 48000,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	stream, err := stt.OpenStream(context.Background())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	if err := stream.WriteFrame(media.Frame{PCM: make([]int16, 480), SampleRate: 48000}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	select {
	case tr := <-stream.Results():
		if tr.Text != "book me for two pm" || !tr.Final {
			t.Fatalf("transcript = %+v", tr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript received")
	}
}

func TestOpenStream_CloseEndsResults(t *testing.T) {
	srv := fakeDeepgram(t)
	defer srv.Close()

	stt, _ := New(Config{APIKey: "dg-test", Host: "ws" + strings.TrimPrefix(srv.URL, "http")})
	stream, err := stt.OpenStream(context.Background())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := stream.WriteFrame(media.Frame{PCM: []int16{0}, SampleRate: 48000}); err == nil {
		t.Fatal("write after close should fail")
	}

	select {
	case _, open := <-stream.Results():
		if open {
			t.Fatal("expected closed results channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("results channel never closed")
	}
}

func TestClose_UnblocksUndrainedReader(t *testing.T) {
	// Server floods transcripts unprompted; the client never reads
	// them, so the results buffer fills. Close must still end the
	// stream instead of leaving the reader stuck mid-send.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := `{"type":"Results","is_final":true,` +
			`"channel":{"alternatives":[{"transcript":"filler"}]}}`
		for i := 0; i < 40; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	stt, _ := New(Config{APIKey: "dg-test", Host: "ws" + strings.TrimPrefix(srv.URL, "http")})
	stream, err := stt.OpenStream(context.Background())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	// Give the flood time to overrun the buffer.
	time.Sleep(100 * time.Millisecond)

	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-stream.Results():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("results channel never closed after Close")
		}
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}); err != ErrAPIKeyRequired {
		t.Fatalf("err = %v", err)
	}
}
