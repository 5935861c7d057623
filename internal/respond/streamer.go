package respond

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/lunalabs/luna-core/internal/llm"
	"github.com/lunalabs/luna-core/internal/memory"
)

const apologyFallback = "I'm sorry, I encountered an issue with that response or it was filtered. Could you ask something else?"

// Patterns for instruction/meta text a model sometimes leaks into replies.
// Matched case-insensitively, across newlines, against the accumulated
// response before it is persisted.
var filterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)### Instruction:.+`),
	regexp.MustCompile(`(?is)---\n*.+`),
	regexp.MustCompile(`(?is)## New Constraints:.+`),
	regexp.MustCompile(`(?is)Your response should include.+`),
	regexp.MustCompile(`(?is)Respond with ONLY.+`),
	regexp.MustCompile(`(?is)Increase Diff\d+ complexity by.+`),
	regexp.MustCompile(`(?is)Format the response as JSON.+`),
	regexp.MustCompile(`(?is)Add at least \d+ more constraints.+`),
}

// FilterResponse strips leaked instruction-like content from a reply.
func FilterResponse(text string) string {
	for _, pattern := range filterPatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// TokenStream is a finite, pull-based sequence of response tokens. It is
// not restartable; Next returns false once exhausted. After exhaustion,
// Final reports the filtered full reply and whether the stream failed.
type TokenStream struct {
	ch     chan string
	final  string
	failed bool
}

// Next returns the next token; ok is false at end of stream.
func (t *TokenStream) Next() (token string, ok bool) {
	token, ok = <-t.ch
	return token, ok
}

// Final is valid only after Next has returned ok=false.
func (t *TokenStream) Final() (text string, failed bool) {
	return t.final, t.failed
}

// Streamer runs one chat generation cycle: it appends the user message to
// conversation memory, streams the model's reply token by token, and
// persists the filtered reply exactly once when the stream completes
// cleanly. A failed stream yields one error-describing token and writes
// nothing.
type Streamer struct {
	generator   llm.Generator
	conv        *memory.Conversation
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

func NewStreamer(generator llm.Generator, conv *memory.Conversation, maxTokens int, temperature float64, timeout time.Duration, logger *slog.Logger) *Streamer {
	return &Streamer{
		generator:   generator,
		conv:        conv,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger.With(slog.String("component", "response-streamer")),
	}
}

// Stream starts the generation call and returns the token sequence. The
// user message lands in memory before the call begins; the assistant
// message lands after it ends, never incrementally.
func (s *Streamer) Stream(ctx context.Context, userText string) *TokenStream {
	s.conv.Add(memory.RoleUser, userText)
	prompt := s.buildPrompt()

	stream := &TokenStream{ch: make(chan string)}
	go func() {
		defer close(stream.ch)

		genCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var raw strings.Builder
		err := s.generator.Generate(genCtx, llm.Request{
			Prompt:      prompt,
			MaxTokens:   s.maxTokens,
			Temperature: s.temperature,
		}, func(chunk llm.Chunk) error {
			raw.WriteString(chunk.Content)
			if chunk.Content != "" {
				select {
				case stream.ch <- chunk.Content:
				case <-genCtx.Done():
					return genCtx.Err()
				}
			}
			return nil
		})
		if err != nil {
			s.logger.Warn("generation stream failed", slog.String("error", err.Error()))
			stream.failed = true
			errToken := fmt.Sprintf("Error: failed to reach the language model. %v", err)
			stream.final = errToken
			select {
			case stream.ch <- errToken:
			case <-ctx.Done():
			}
			return
		}

		filtered := FilterResponse(raw.String())
		if filtered == "" {
			filtered = apologyFallback
		}
		stream.final = filtered
		s.conv.Add(memory.RoleAssistant, filtered)
	}()
	return stream
}

// buildPrompt concatenates the bounded history as role-prefixed lines. The
// just-appended user message is the newest entry, so it always survives
// eviction and closes the prompt.
func (s *Streamer) buildPrompt() string {
	history := s.conv.History()
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, msg.Role+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}
