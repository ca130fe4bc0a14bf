package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-agent-platform/internal/plugins"
)

func TestComplete_TextReply(t *testing.T) {
	var gotAuth string
	var gotReq map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Hello there."}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient("sk-test", srv.URL, "gpt-4o-mini")
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	out, err := c.Complete(context.Background(), []plugins.ChatMessage{
		{Role: plugins.RoleSystem, Content: "You are Alexis."},
		{Role: plugins.RoleUser, Content: "Hi"},
	}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text != "Hello there." {
		t.Fatalf("text = %q", out.Text)
	}
	if len(out.ToolCalls) != 0 {
		t.Fatalf("unexpected tool calls: %v", out.ToolCalls)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotReq["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v", gotReq["model"])
	}
}

func TestComplete_ToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if tools, ok := req["tools"].([]any); !ok || len(tools) != 1 {
			t.Errorf("tools not forwarded: %v", req["tools"])
		}
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{
				"content":"",
				"tool_calls":[{"id":"call_1","type":"function",
					"function":{"name":"end_call","arguments":"{}"}}]
			}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient("sk-test", srv.URL, "gpt-4o-mini")
	out, err := c.Complete(context.Background(),
		[]plugins.ChatMessage{{Role: plugins.RoleUser, Content: "bye"}},
		[]plugins.ToolSchema{{Name: "end_call", Description: "hang up"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "end_call" {
		t.Fatalf("tool calls = %v", out.ToolCalls)
	}
}

func TestComplete_HTTPErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := NewClient("sk-test", srv.URL, "gpt-4o-mini")
	_, err := c.Complete(context.Background(), []plugins.ChatMessage{{Role: plugins.RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	if _, err := NewClient("", "", "gpt-4o-mini"); err != ErrAPIKeyRequired {
		t.Fatalf("err = %v", err)
	}
}
