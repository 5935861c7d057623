package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Pipeline holds the counters that describe a running turn pipeline. All
// record methods are nil-safe so tests can pass a nil *Pipeline.
type Pipeline struct {
	framesDropped       metric.Int64Counter
	utterancesEmitted   metric.Int64Counter
	transcriptsRejected metric.Int64Counter
	turnsCompleted      metric.Int64Counter
	sentencesSpoken     metric.Int64Counter
}

func NewPipeline() (*Pipeline, error) {
	meter := otel.Meter("github.com/lunalabs/luna-core/pipeline")
	p := &Pipeline{}
	var err error
	if p.framesDropped, err = meter.Int64Counter("luna.audio.frames_dropped",
		metric.WithDescription("Capture frames dropped because the segmenter queue was full")); err != nil {
		return nil, err
	}
	if p.utterancesEmitted, err = meter.Int64Counter("luna.vad.utterances_emitted",
		metric.WithDescription("Utterances emitted by the segmenter")); err != nil {
		return nil, err
	}
	if p.transcriptsRejected, err = meter.Int64Counter("luna.stt.transcripts_rejected",
		metric.WithDescription("Transcripts rejected by the post-filter")); err != nil {
		return nil, err
	}
	if p.turnsCompleted, err = meter.Int64Counter("luna.turns_completed",
		metric.WithDescription("User turns completed, by action")); err != nil {
		return nil, err
	}
	if p.sentencesSpoken, err = meter.Int64Counter("luna.tts.sentences_spoken",
		metric.WithDescription("Sentences handed to speech synthesis")); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) FrameDropped(ctx context.Context) {
	if p == nil {
		return
	}
	p.framesDropped.Add(ctx, 1)
}

func (p *Pipeline) UtteranceEmitted(ctx context.Context, reason string) {
	if p == nil {
		return
	}
	p.utterancesEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (p *Pipeline) TranscriptRejected(ctx context.Context, reason string) {
	if p == nil {
		return
	}
	p.transcriptsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (p *Pipeline) TurnCompleted(ctx context.Context, action string) {
	if p == nil {
		return
	}
	p.turnsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (p *Pipeline) SentenceSpoken(ctx context.Context) {
	if p == nil {
		return
	}
	p.sentencesSpoken.Add(ctx, 1)
}
