package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lunalabs/luna-core/internal/bus"
	"github.com/lunalabs/luna-core/internal/config"
	"github.com/lunalabs/luna-core/internal/metrics"
	"github.com/lunalabs/luna-core/internal/protocol"
)

// Service consumes utterances from the bus, transcribes them, and publishes
// accepted transcripts. Transcription runs inline in the subscription
// callback: NATS dispatches messages to a subscription sequentially, which
// keeps utterances in strict capture order.
type Service struct {
	cfg        config.STTConfig
	bus        *bus.Client
	recognizer Recognizer
	filter     *Filter
	sampleRate int
	channels   int
	sub        *nats.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger
	metrics    *metrics.Pipeline
	ready      bool
}

func NewService(parent context.Context, cfg config.STTConfig, audioCfg config.AudioConfig, busClient *bus.Client, recognizer Recognizer, pipelineMetrics *metrics.Pipeline, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		recognizer: recognizer,
		filter:     NewFilter(cfg.MinChars, cfg.Hallucinations),
		sampleRate: audioCfg.SampleRate,
		channels:   audioCfg.Channels,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With(slog.String("component", "stt-service")),
		metrics:    pipelineMetrics,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectUtterance, s.handleUtterance)
	if err != nil {
		return fmt.Errorf("subscribe utterances: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

func (s *Service) handleUtterance(msg *nats.Msg) {
	var utt protocol.Utterance
	if err := json.Unmarshal(msg.Data, &utt); err != nil {
		s.logger.Warn("failed to decode utterance", slogError(err))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 45*time.Second)
	defer cancel()

	pcm := protocol.BytesToPCM(utt.PCM)
	start := time.Now()
	result, err := s.recognizer.Transcribe(ctx, pcm, utt.SampleRate, utt.Channels)
	if err != nil {
		s.logger.Warn("transcription failed", slogError(err))
		return
	}

	if ok, reason := s.filter.Accept(result.Text); !ok {
		s.metrics.TranscriptRejected(s.ctx, reason)
		s.logger.Info("transcript rejected",
			slog.String("reason", reason),
			slog.String("text", result.Text))
		return
	}

	s.logger.Info("transcript accepted",
		slog.String("text", result.Text),
		slog.Duration("latency", time.Since(start)))
	s.publishTranscript(utt, result)
}

func (s *Service) publishTranscript(utt protocol.Utterance, result Result) {
	transcript := protocol.Transcript{
		SessionID:  utt.SessionID,
		TurnID:     utt.TurnID,
		Text:       result.Text,
		Confidence: result.Confidence,
		Timestamp:  time.Now().UTC(),
	}
	data, err := json.Marshal(transcript)
	if err != nil {
		s.logger.Warn("failed to marshal transcript", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTranscriptFinal, data); err != nil {
		s.logger.Warn("failed to publish transcript", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
