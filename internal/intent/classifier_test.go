package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/lunalabs/luna-core/internal/llm"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// cannedGenerator returns a fixed completion for classification calls.
type cannedGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (g *cannedGenerator) Generate(ctx context.Context, req llm.Request, consumer func(llm.Chunk) error) error {
	return errors.New("not used")
}

func (g *cannedGenerator) Complete(ctx context.Context, req llm.Request) (string, error) {
	g.lastPrompt = req.Prompt
	return g.response, g.err
}

func classify(t *testing.T, response string) Intent {
	t.Helper()
	gen := &cannedGenerator{response: response}
	c := NewClassifier(gen, time.Second, nil, newLogger())
	return c.Classify(context.Background(), "do the thing")
}

func TestClassifyChat(t *testing.T) {
	in := classify(t, `{"action": "chat"}`)
	if in.Action != ActionChat {
		t.Fatalf("expected chat, got %s", in.Action)
	}
}

func TestClassifyOpenURL(t *testing.T) {
	in := classify(t, `{"action": "open_url", "url": "https://www.youtube.com"}`)
	if in.Action != ActionOpenURL || in.URL != "https://www.youtube.com" {
		t.Fatalf("unexpected intent: %+v", in)
	}
}

func TestClassifyOpenURLMissingFieldFallsBack(t *testing.T) {
	in := classify(t, `{"action": "open_url"}`)
	if in.Action != ActionUnrecognized {
		t.Fatalf("expected unrecognized for missing url, got %s", in.Action)
	}
}

func TestClassifySearch(t *testing.T) {
	in := classify(t, `{"action": "search_google", "query": "weather tomorrow"}`)
	if in.Action != ActionSearchGoogle || in.Query != "weather tomorrow" {
		t.Fatalf("unexpected intent: %+v", in)
	}
}

func TestClassifyShortcutWithParams(t *testing.T) {
	in := classify(t, `{"action": "open_shortcut", "key": "search_youtube", "params": {"query": "lofi"}}`)
	if in.Action != ActionOpenShortcut || in.Key != "search_youtube" {
		t.Fatalf("unexpected intent: %+v", in)
	}
	if in.Params["query"] != "lofi" {
		t.Fatalf("expected params extracted, got %v", in.Params)
	}
}

func TestClassifyShortcutNilParamsBecomesEmptyMap(t *testing.T) {
	in := classify(t, `{"action": "open_shortcut", "key": "screenshot"}`)
	if in.Action != ActionOpenShortcut {
		t.Fatalf("unexpected intent: %+v", in)
	}
	if in.Params == nil {
		t.Fatal("expected non-nil params map")
	}
}

func TestClassifyStripsCodeFence(t *testing.T) {
	in := classify(t, "```json\n{\"action\": \"chat\"}\n```")
	if in.Action != ActionChat {
		t.Fatalf("expected fenced JSON parsed, got %s", in.Action)
	}
	in = classify(t, "```\n{\"action\": \"chat\"}\n```")
	if in.Action != ActionChat {
		t.Fatalf("expected bare-fenced JSON parsed, got %s", in.Action)
	}
}

func TestClassifyGarbageFallsBack(t *testing.T) {
	for _, raw := range []string{
		"I think the user wants to chat",
		`{"action": "fly_to_moon"}`,
		``,
	} {
		if in := classify(t, raw); in.Action != ActionUnrecognized {
			t.Fatalf("expected unrecognized for %q, got %s", raw, in.Action)
		}
	}
}

func TestClassifyCallFailureFallsBack(t *testing.T) {
	gen := &cannedGenerator{err: errors.New("model offline")}
	c := NewClassifier(gen, time.Second, nil, newLogger())
	if in := c.Classify(context.Background(), "hello"); in.Action != ActionUnrecognized {
		t.Fatalf("expected unrecognized on call failure, got %s", in.Action)
	}
}

func TestPromptListsShortcutKeys(t *testing.T) {
	gen := &cannedGenerator{response: `{"action": "chat"}`}
	c := NewClassifier(gen, time.Second, []string{"search_youtube", "screenshot"}, newLogger())
	c.Classify(context.Background(), "take a screenshot")

	if !strings.Contains(gen.lastPrompt, "'search_youtube'") || !strings.Contains(gen.lastPrompt, "'screenshot'") {
		t.Fatalf("expected shortcut keys in prompt:\n%s", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, `User request: "take a screenshot"`) {
		t.Fatalf("expected user request in prompt:\n%s", gen.lastPrompt)
	}
}
