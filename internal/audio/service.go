package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
	"github.com/nats-io/nats.go"

	"github.com/lunalabs/luna-core/internal/bus"
	"github.com/lunalabs/luna-core/internal/config"
	"github.com/lunalabs/luna-core/internal/metrics"
	"github.com/lunalabs/luna-core/internal/protocol"
	"github.com/lunalabs/luna-core/internal/vad"
)

// Service owns microphone capture and voice segmentation for one session.
// The capture read loop enqueues frames; a single worker goroutine owns all
// segmenter state, so no frame state is shared with the device context.
// Completed utterances are published on the bus.
type Service struct {
	cfg       config.AudioConfig
	vadCfg    config.VADConfig
	bus       *bus.Client
	logger    *slog.Logger
	metrics   *metrics.Pipeline
	params    vad.Params
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	muted  atomic.Bool

	mu        sync.Mutex
	capture   *Capture
	workerEnd chan struct{}
	pa        bool
}

func NewService(parent context.Context, cfg config.AudioConfig, vadCfg config.VADConfig, busClient *bus.Client, pipelineMetrics *metrics.Pipeline, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:       cfg,
		vadCfg:    vadCfg,
		bus:       busClient,
		logger:    logger.With(slog.String("component", "audio-service")),
		metrics:   pipelineMetrics,
		params:    vad.ParamsFromConfig(vadCfg, cfg.FrameDurationMS),
		sessionID: uuid.NewString(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Service) SessionID() string { return s.sessionID }

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	s.pa = true

	for subject, handler := range map[string]nats.MsgHandler{
		protocol.SubjectListenStart:   s.handleListenStart,
		protocol.SubjectListenStop:    s.handleListenStop,
		protocol.SubjectSpeakingState: s.handleSpeakingState,
	} {
		sub, err := s.bus.Conn().Subscribe(subject, handler)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.StopListening()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	if s.pa {
		_ = portaudio.Terminate()
	}
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.pa
}

// Listening reports whether a capture session is active.
func (s *Service) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture != nil
}

// StartListening opens the input device and starts the segmenter worker.
func (s *Service) StartListening() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture != nil {
		return nil
	}

	capture := NewCapture(s.cfg, &s.muted, s.metrics, s.logger)
	if err := capture.Start(); err != nil {
		return err
	}

	detector := vad.NewEnergyDetector(s.vadCfg.SpeechRMS, s.vadCfg.SilenceRMS)
	segmenter := vad.NewSegmenter(s.params, detector, s.publishUtterance)

	workerEnd := make(chan struct{})
	go func() {
		defer close(workerEnd)
		for frame := range capture.Frames() {
			segmenter.Process(frame)
		}
		// Queue closed: the stop path. Anything still buffered is a
		// manual end-of-turn and goes out regardless of thresholds.
		segmenter.Flush()
	}()

	s.capture = capture
	s.workerEnd = workerEnd
	s.logger.Info("listening started", slog.String("session_id", s.sessionID))
	return nil
}

// StopListening stops capture, waits for the segmenter to flush, and
// returns the service to idle.
func (s *Service) StopListening() {
	s.mu.Lock()
	capture := s.capture
	workerEnd := s.workerEnd
	s.capture = nil
	s.workerEnd = nil
	s.mu.Unlock()

	if capture == nil {
		return
	}
	capture.Stop()
	<-workerEnd
	s.logger.Info("listening stopped", slog.String("session_id", s.sessionID))
}

func (s *Service) publishUtterance(segment vad.Segment) {
	utt := protocol.Utterance{
		SessionID:  s.sessionID,
		TurnID:     uuid.NewString(),
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		PCM:        protocol.PCMToBytes(segment.PCM),
		Frames:     segment.Frames,
		Reason:     string(segment.Reason),
		CapturedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(utt)
	if err != nil {
		s.logger.Warn("failed to marshal utterance", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectUtterance, data); err != nil {
		s.logger.Warn("failed to publish utterance", slog.String("error", err.Error()))
		return
	}
	s.metrics.UtteranceEmitted(s.ctx, string(segment.Reason))
	s.logger.Info("utterance emitted",
		slog.Int("frames", segment.Frames),
		slog.String("reason", string(segment.Reason)))
}

func (s *Service) handleListenStart(*nats.Msg) {
	if err := s.StartListening(); err != nil {
		s.logger.Error("failed to start listening", slog.String("error", err.Error()))
	}
}

func (s *Service) handleListenStop(*nats.Msg) {
	s.StopListening()
}

func (s *Service) handleSpeakingState(msg *nats.Msg) {
	var state protocol.SpeakingState
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		s.logger.Warn("failed to decode speaking state", slog.String("error", err.Error()))
		return
	}
	s.muted.Store(state.Speaking)
}
