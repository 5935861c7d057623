package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lunalabs/luna-core/internal/llm"
)

// Classifier routes a transcript to an action via a structured-output call
// against the language model. It never returns an error: anything that goes
// wrong yields ActionUnrecognized.
type Classifier struct {
	generator llm.Generator
	timeout   time.Duration
	shortcuts []string
	logger    *slog.Logger
}

func NewClassifier(generator llm.Generator, timeout time.Duration, shortcutExamples []string, logger *slog.Logger) *Classifier {
	return &Classifier{
		generator: generator,
		timeout:   timeout,
		shortcuts: shortcutExamples,
		logger:    logger.With(slog.String("component", "intent-classifier")),
	}
}

type classifierOutput struct {
	Action string            `json:"action"`
	URL    string            `json:"url"`
	Query  string            `json:"query"`
	Key    string            `json:"key"`
	Params map[string]string `json:"params"`
}

// Classify runs the single-shot classification call at temperature zero.
func (c *Classifier) Classify(ctx context.Context, text string) Intent {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.generator.Complete(ctx, llm.Request{
		Prompt:      c.routerPrompt(text),
		Temperature: 0,
	})
	if err != nil {
		c.logger.Warn("intent classification call failed", slog.String("error", err.Error()))
		return Intent{Action: ActionUnrecognized}
	}
	return c.parse(raw)
}

func (c *Classifier) parse(raw string) Intent {
	var out classifierOutput
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), &out); err != nil {
		c.logger.Warn("classifier response was not valid JSON", slog.String("raw", raw))
		return Intent{Action: ActionUnrecognized}
	}

	switch Action(out.Action) {
	case ActionChat:
		return Intent{Action: ActionChat}
	case ActionOpenURL:
		if out.URL != "" {
			return Intent{Action: ActionOpenURL, URL: out.URL}
		}
	case ActionSearchGoogle:
		if out.Query != "" {
			return Intent{Action: ActionSearchGoogle, Query: out.Query}
		}
	case ActionOpenShortcut:
		if out.Key != "" {
			params := out.Params
			if params == nil {
				params = map[string]string{}
			}
			return Intent{Action: ActionOpenShortcut, Key: out.Key, Params: params}
		}
	}
	c.logger.Warn("classifier returned unknown action or missing fields", slog.String("action", out.Action))
	return Intent{Action: ActionUnrecognized}
}

// stripJSONFence removes an optional markdown code fence around the model's
// JSON output.
func stripJSONFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```json") && strings.HasSuffix(s, "```") {
		return strings.TrimSpace(s[len("```json") : len(s)-len("```")])
	}
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) > 6 {
		return strings.TrimSpace(s[3 : len(s)-3])
	}
	return s
}

func (c *Classifier) routerPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Analyze the user's request below. Classify the intent as one of: 'chat', 'open_url', 'search_google', 'open_shortcut'.\n")
	b.WriteString("Respond ONLY with a JSON object.\n\n")
	b.WriteString("If the intent is 'chat': {\"action\": \"chat\"}\n\n")
	b.WriteString("If the intent is 'open_url': {\"action\": \"open_url\", \"url\": \"[full URL, file:/// path, or local application name]\"}\n")
	b.WriteString("For common websites ALWAYS convert to a full URL (\"open youtube\" -> https://www.youtube.com). For local applications use the application name directly.\n\n")
	b.WriteString("If the intent is 'search_google': {\"action\": \"search_google\", \"query\": \"[search term]\"}\n\n")
	b.WriteString("If the intent is 'open_shortcut': {\"action\": \"open_shortcut\", \"key\": \"[most relevant shortcut key from the list below]\", \"params\": {\"[param_name]\": \"[param_value]\"}}\n")
	b.WriteString("Choose the MOST SUITABLE key even when the request is phrased naturally. Extract values for placeholders like {query}, {pkg}, {term} into params.\n")
	if len(c.shortcuts) > 0 {
		b.WriteString("\nAvailable shortcut keys:\n")
		for _, key := range c.shortcuts {
			fmt.Fprintf(&b, "- '%s'\n", key)
		}
	}
	fmt.Fprintf(&b, "\nUser request: \"%s\"\n", text)
	return b.String()
}
