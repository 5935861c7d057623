package tts

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lunalabs/luna-core/internal/bus"
	"github.com/lunalabs/luna-core/internal/config"
	"github.com/lunalabs/luna-core/internal/metrics"
	"github.com/lunalabs/luna-core/internal/protocol"
)

// Service voices sentences published on the speak subject, announces
// speaking state so the capture side can mute the microphone, and cuts off
// playback on the speak-stop control subject.
type Service struct {
	cfg     config.TTSConfig
	bus     *bus.Client
	speaker *Speaker
	pipe    *metrics.Pipeline
	sub     *nats.Subscription
	subStop *nats.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
}

func NewService(parent context.Context, cfg config.TTSConfig, busClient *bus.Client, speaker *Speaker, pipe *metrics.Pipeline, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:     cfg,
		bus:     busClient,
		speaker: speaker,
		pipe:    pipe,
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.With(slog.String("component", "tts-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	s.speaker.SetCallbacks(
		func() { s.publishState(true) },
		func() { s.publishState(false) },
	)
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeak, s.handleSpeak)
	if err != nil {
		return err
	}
	s.sub = sub

	subStop, err := s.bus.Conn().Subscribe(protocol.SubjectSpeakStop, s.handleSpeakStop)
	if err != nil {
		_ = s.sub.Drain()
		return err
	}
	s.subStop = subStop
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range []*nats.Subscription{s.sub, s.subStop} {
		if sub != nil {
			_ = sub.Drain()
		}
	}
	s.speaker.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || (s.sub != nil && s.subStop != nil)
}

func (s *Service) handleSpeak(msg *nats.Msg) {
	var req protocol.SpeakRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speak request", slogError(err))
		return
	}
	if req.Text == "" {
		return
	}
	s.speaker.Speak(s.ctx, req.Text)
	s.pipe.SentenceSpoken(s.ctx)
}

func (s *Service) handleSpeakStop(*nats.Msg) {
	s.speaker.StopSpeaking()
	s.logger.Info("playback stopped by request")
}

func (s *Service) publishState(speaking bool) {
	state := protocol.SpeakingState{Speaking: speaking, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeakingState, data); err != nil {
		s.logger.Warn("failed to publish speaking state", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
