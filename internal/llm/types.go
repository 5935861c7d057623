package llm

import (
	"context"
	"time"
)

// Request describes a language model prompt.
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
}

// Chunk represents streamed model output.
type Chunk struct {
	Content string
	Done    bool
	Latency time.Duration
}

// Generator is a pluggable LLM backend. Generate streams tokens through the
// consumer until the model reports done; Complete issues a single
// non-streaming call and returns the whole response (used for intent
// classification and warm-up).
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
	Complete(ctx context.Context, req Request) (string, error)
}
