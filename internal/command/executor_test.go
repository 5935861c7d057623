package command

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/lunalabs/luna-core/internal/intent"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type launchRecorder struct {
	name string
	args []string
	n    int
}

func (l *launchRecorder) launch(name string, args ...string) error {
	l.name = name
	l.args = args
	l.n++
	return nil
}

func newTestExecutor(shortcuts map[string]string, denylist []string) (*Executor, *launchRecorder) {
	e := NewExecutor(NewRegistry(shortcuts), denylist, newLogger())
	rec := &launchRecorder{}
	e.launch = rec.launch
	return e, rec
}

func TestOpenFullURL(t *testing.T) {
	e, rec := newTestExecutor(nil, nil)
	msg := e.Execute(intent.Intent{Action: intent.ActionOpenURL, URL: "https://www.youtube.com"})
	if msg != "Okay, I opened it." {
		t.Fatalf("unexpected confirmation: %q", msg)
	}
	if rec.name != "xdg-open" || len(rec.args) != 1 || rec.args[0] != "https://www.youtube.com" {
		t.Fatalf("unexpected launch: %s %v", rec.name, rec.args)
	}
}

func TestOpenBareApplication(t *testing.T) {
	e, rec := newTestExecutor(nil, nil)
	e.Execute(intent.Intent{Action: intent.ActionOpenURL, URL: "firefox"})
	if rec.name != "firefox" || len(rec.args) != 0 {
		t.Fatalf("expected bare launch, got %s %v", rec.name, rec.args)
	}
}

func TestSearchEscapesQuery(t *testing.T) {
	e, rec := newTestExecutor(nil, nil)
	msg := e.Execute(intent.Intent{Action: intent.ActionSearchGoogle, Query: "go 1.24 release notes"})
	if msg != "Okay, I searched for it." {
		t.Fatalf("unexpected confirmation: %q", msg)
	}
	if rec.name != "xdg-open" {
		t.Fatalf("unexpected launcher: %s", rec.name)
	}
	if want := "https://www.google.com/search?q=go+1.24+release+notes"; rec.args[0] != want {
		t.Fatalf("expected escaped query URL %q, got %q", want, rec.args[0])
	}
}

func TestDenylistRefusesCaseInsensitive(t *testing.T) {
	e, rec := newTestExecutor(nil, []string{"rm -rf", "shutdown"})
	msg := e.Execute(intent.Intent{Action: intent.ActionOpenURL, URL: "RM -RF /"})
	if msg != refusalMessage {
		t.Fatalf("expected refusal, got %q", msg)
	}
	if rec.n != 0 {
		t.Fatal("denied command must never launch")
	}
}

func TestDenylistMatchesSubstring(t *testing.T) {
	e, rec := newTestExecutor(map[string]string{"cleanup": "bash -c 'rm -rf /tmp/cache'"}, []string{"rm -rf"})
	msg := e.Execute(intent.Intent{Action: intent.ActionOpenShortcut, Key: "cleanup", Params: map[string]string{}})
	if msg != refusalMessage {
		t.Fatalf("expected refusal for resolved template, got %q", msg)
	}
	if rec.n != 0 {
		t.Fatal("denied shortcut must never launch")
	}
}

func TestShortcutResolvesParams(t *testing.T) {
	e, rec := newTestExecutor(map[string]string{
		"search_youtube": "xdg-open https://www.youtube.com/results?search_query={query}",
	}, nil)
	msg := e.Execute(intent.Intent{
		Action: intent.ActionOpenShortcut,
		Key:    "search_youtube",
		Params: map[string]string{"query": "lofi beats"},
	})
	if msg != "Okay, I opened it." {
		t.Fatalf("unexpected confirmation: %q", msg)
	}
	if want := "https://www.youtube.com/results?search_query=lofi+beats"; rec.args[0] != want {
		t.Fatalf("expected substituted URL %q, got %q", want, rec.args[0])
	}
}

func TestShortcutMissingParam(t *testing.T) {
	e, rec := newTestExecutor(map[string]string{
		"search_youtube": "xdg-open https://www.youtube.com/results?search_query={query}",
	}, nil)
	msg := e.Execute(intent.Intent{Action: intent.ActionOpenShortcut, Key: "search_youtube", Params: map[string]string{}})
	if !strings.HasPrefix(msg, "Error:") {
		t.Fatalf("expected error for missing param, got %q", msg)
	}
	if rec.n != 0 {
		t.Fatal("unresolved shortcut must never launch")
	}
}

func TestUnknownShortcutKey(t *testing.T) {
	e, _ := newTestExecutor(nil, nil)
	msg := e.Execute(intent.Intent{Action: intent.ActionOpenShortcut, Key: "nope", Params: map[string]string{}})
	if !strings.Contains(msg, "no shortcut found") {
		t.Fatalf("expected unknown-key error, got %q", msg)
	}
}

func TestChatIntentNotExecutable(t *testing.T) {
	e, rec := newTestExecutor(nil, nil)
	msg := e.Execute(intent.Chat())
	if !strings.HasPrefix(msg, "Error:") {
		t.Fatalf("expected error for chat intent, got %q", msg)
	}
	if rec.n != 0 {
		t.Fatal("chat intent must never launch")
	}
}
