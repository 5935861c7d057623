package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateStreamsUntilDone(t *testing.T) {
	var gotReq ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		lines := []string{
			`{"response":"Hello","done":false}`,
			``,
			`{"response":" world.","done":false}`,
			`{"response":"","done":true}`,
			`{"response":"ignored after done","done":false}`,
		}
		for _, line := range lines {
			w.Write([]byte(line + "\n"))
		}
	}))
	defer server.Close()

	g := NewOllamaGenerator(server.URL, "test-model")
	var tokens []string
	err := g.Generate(context.Background(), Request{Prompt: "hi", MaxTokens: 64, Temperature: 0.7}, func(c Chunk) error {
		if c.Content != "" {
			tokens = append(tokens, c.Content)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := strings.Join(tokens, ""); got != "Hello world." {
		t.Fatalf("unexpected streamed text: %q", got)
	}
	if !gotReq.Stream {
		t.Fatal("expected streaming request")
	}
	if gotReq.Model != "test-model" || gotReq.Options.NumPredict != 64 {
		t.Fatalf("unexpected request payload: %+v", gotReq)
	}
}

func TestGenerateErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	g := NewOllamaGenerator(server.URL, "missing")
	err := g.Generate(context.Background(), Request{Prompt: "hi"}, func(Chunk) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestCompleteNonStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Fatal("expected non-streaming request")
		}
		w.Write([]byte(`{"response":"{\"action\": \"chat\"}","done":true}`))
	}))
	defer server.Close()

	g := NewOllamaGenerator(server.URL, "test-model")
	text, err := g.Complete(context.Background(), Request{Prompt: "classify"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != `{"action": "chat"}` {
		t.Fatalf("unexpected completion: %q", text)
	}
}
