package command

import (
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/lunalabs/luna-core/internal/intent"
)

const refusalMessage = "This action is restricted for security reasons."

// Executor turns a non-chat intent into a background process launch. Every
// resolved command string is tokenized and checked against the denylist
// before launch; nothing is ever concatenated into a shell. Execute always
// returns a human-readable confirmation or error, never panics or raises.
type Executor struct {
	registry *Registry
	denylist []string
	logger   *slog.Logger
	launch   func(name string, args ...string) error
}

func NewExecutor(registry *Registry, denylist []string, logger *slog.Logger) *Executor {
	lowered := make([]string, len(denylist))
	for i, entry := range denylist {
		lowered[i] = strings.ToLower(entry)
	}
	return &Executor{
		registry: registry,
		denylist: lowered,
		logger:   logger.With(slog.String("component", "command-executor")),
		launch:   launchDetached,
	}
}

func launchDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Start()
}

// Execute dispatches one resolved intent. Chat and unrecognized intents are
// not runnable and report as such.
func (e *Executor) Execute(in intent.Intent) string {
	switch in.Action {
	case intent.ActionOpenURL:
		return e.openURL(in.URL)
	case intent.ActionSearchGoogle:
		return e.searchGoogle(in.Query)
	case intent.ActionOpenShortcut:
		return e.openShortcut(in.Key, in.Params)
	default:
		return "Error: intent is not an executable command."
	}
}

func (e *Executor) openURL(target string) string {
	if target == "" {
		return "Error: no URL provided."
	}
	var commandString string
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "file:///") {
		commandString = "xdg-open " + target
	} else {
		// Bare application name ("firefox", "calculator").
		commandString = target
	}
	if msg, ok := e.run(commandString); !ok {
		return msg
	}
	return "Okay, I opened it."
}

func (e *Executor) searchGoogle(query string) string {
	if query == "" {
		return "Error: no search query provided."
	}
	commandString := "xdg-open https://www.google.com/search?q=" + url.QueryEscape(query)
	if msg, ok := e.run(commandString); !ok {
		return msg
	}
	return "Okay, I searched for it."
}

func (e *Executor) openShortcut(key string, params map[string]string) string {
	if key == "" {
		return "Error: no shortcut key provided."
	}
	commandString, err := e.registry.Resolve(key, params)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if msg, ok := e.run(commandString); !ok {
		return msg
	}
	e.logger.Info("shortcut launched", slog.String("key", key))
	return "Okay, I opened it."
}

// run applies the denylist and starts the command in the background. The
// boolean is false when the command was refused or failed to start.
func (e *Executor) run(commandString string) (string, bool) {
	if e.denied(commandString) {
		e.logger.Warn("command refused by denylist", slog.String("command", commandString))
		return refusalMessage, false
	}
	args, err := shellwords.NewParser().Parse(commandString)
	if err != nil || len(args) == 0 {
		return fmt.Sprintf("Error: could not parse command: %v", err), false
	}
	if err := e.launch(args[0], args[1:]...); err != nil {
		e.logger.Warn("command launch failed",
			slog.String("command", args[0]),
			slog.String("error", err.Error()))
		return fmt.Sprintf("Error: command %q could not be started: %v", args[0], err), false
	}
	e.logger.Info("command launched", slog.String("command", args[0]))
	return "", true
}

func (e *Executor) denied(commandString string) bool {
	lowered := strings.ToLower(commandString)
	for _, entry := range e.denylist {
		if entry != "" && strings.Contains(lowered, entry) {
			return true
		}
	}
	return false
}
