package llm

import (
	"context"
	"log/slog"
	"time"
)

// WarmUp fires a throwaway completion in the background so the model is
// resident before the first real request. Failure is logged and never
// fatal; the first request is just slower.
func WarmUp(ctx context.Context, generator Generator, logger *slog.Logger) {
	go func() {
		log := logger.With(slog.String("component", "llm-warmup"))
		log.Info("starting model warm-up")
		warmCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
		defer cancel()
		start := time.Now()
		if _, err := generator.Complete(warmCtx, Request{Prompt: "Hello!"}); err != nil {
			log.Warn("model warm-up failed, first request may be slow",
				slog.String("error", err.Error()))
			return
		}
		log.Info("model loaded and ready", slog.Duration("latency", time.Since(start)))
	}()
}
