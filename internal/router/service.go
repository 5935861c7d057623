package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/lunalabs/luna-core/internal/bus"
	"github.com/lunalabs/luna-core/internal/command"
	"github.com/lunalabs/luna-core/internal/eventstore"
	"github.com/lunalabs/luna-core/internal/intent"
	"github.com/lunalabs/luna-core/internal/memory"
	"github.com/lunalabs/luna-core/internal/metrics"
	"github.com/lunalabs/luna-core/internal/protocol"
	"github.com/lunalabs/luna-core/internal/respond"
)

// Service orchestrates one conversation turn at a time: accepted transcripts
// and typed input are classified, then either streamed through the chat path
// or dispatched to the command executor. Input arriving while a turn is in
// flight is dropped, matching the single-speaker assumption of a voice UI.
type Service struct {
	bus        *bus.Client
	classifier *intent.Classifier
	streamer   *respond.Streamer
	executor   *command.Executor
	conv       *memory.Conversation
	store      *eventstore.Store
	pipe       *metrics.Pipeline
	logger     *slog.Logger

	subTranscript *nats.Subscription
	subText       *nats.Subscription
	subMemClear   *nats.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	busy   atomic.Bool
	wg     sync.WaitGroup
}

func NewService(parent context.Context, busClient *bus.Client, classifier *intent.Classifier, streamer *respond.Streamer, executor *command.Executor, conv *memory.Conversation, store *eventstore.Store, pipe *metrics.Pipeline, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:        busClient,
		classifier: classifier,
		streamer:   streamer,
		executor:   executor,
		conv:       conv,
		store:      store,
		pipe:       pipe,
		logger:     logger.With(slog.String("component", "router")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTranscriptFinal, s.handleTranscript)
	if err != nil {
		return err
	}
	s.subTranscript = sub

	subText, err := s.bus.Conn().Subscribe(protocol.SubjectTextInput, s.handleTextInput)
	if err != nil {
		s.subTranscript.Drain()
		return err
	}
	s.subText = subText

	subClear, err := s.bus.Conn().Subscribe(protocol.SubjectMemoryClear, s.handleMemoryClear)
	if err != nil {
		s.subTranscript.Drain()
		s.subText.Drain()
		return err
	}
	s.subMemClear = subClear
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range []*nats.Subscription{s.subTranscript, s.subText, s.subMemClear} {
		if sub != nil {
			_ = sub.Drain()
		}
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.subTranscript != nil && s.subText != nil
}

func (s *Service) handleTranscript(msg *nats.Msg) {
	var transcript protocol.Transcript
	if err := json.Unmarshal(msg.Data, &transcript); err != nil {
		s.logger.Warn("router failed to decode transcript", slogError(err))
		return
	}
	if transcript.Text == "" {
		return
	}
	s.startTurn(transcript.SessionID, transcript.TurnID, transcript.Text)
}

func (s *Service) handleTextInput(msg *nats.Msg) {
	var input protocol.TextInput
	if err := json.Unmarshal(msg.Data, &input); err != nil {
		s.logger.Warn("router failed to decode text input", slogError(err))
		return
	}
	if input.Text == "" {
		return
	}
	s.startTurn(input.SessionID, uuid.NewString(), input.Text)
}

func (s *Service) handleMemoryClear(msg *nats.Msg) {
	s.conv.Clear()
	s.logger.Info("conversation memory cleared")
}

func (s *Service) startTurn(sessionID, turnID, text string) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Info("turn already in flight, dropping input", slog.String("turn_id", turnID))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.runTurn(sessionID, turnID, text)
	}()
}

func (s *Service) runTurn(sessionID, turnID, text string) {
	s.logger.Info("turn started", slog.String("turn_id", turnID), slog.Int("chars", len(text)))
	s.record(sessionID, turnID, eventstore.EventTranscript, map[string]string{"text": text})

	in := s.classifier.Classify(s.ctx, text)
	if in.Action == intent.ActionUnrecognized {
		in = intent.Chat()
	}

	if in.Action == intent.ActionChat {
		s.runChat(sessionID, turnID, text)
	} else {
		s.runCommand(sessionID, turnID, in)
	}
	s.pipe.TurnCompleted(s.ctx, string(in.Action))
}

func (s *Service) runChat(sessionID, turnID, text string) {
	dispatcher := respond.NewDispatcher(func(sentence string) {
		s.publishSpeak(sessionID, turnID, sentence)
	})

	stream := s.streamer.Stream(s.ctx, text)
	for {
		token, ok := stream.Next()
		if !ok {
			break
		}
		s.publishToken(sessionID, turnID, token, false)
		dispatcher.Push(token)
	}
	dispatcher.Flush()
	s.publishToken(sessionID, turnID, "", true)

	final, failed := stream.Final()
	s.publishReply(sessionID, turnID, final, string(intent.ActionChat))
	if !failed {
		s.record(sessionID, turnID, eventstore.EventReply, map[string]string{"text": final})
	}
}

func (s *Service) runCommand(sessionID, turnID string, in intent.Intent) {
	confirmation := s.executor.Execute(in)
	s.publishReply(sessionID, turnID, confirmation, string(in.Action))
	s.publishSpeak(sessionID, turnID, confirmation)
	s.record(sessionID, turnID, eventstore.EventCommand, map[string]string{
		"action": string(in.Action),
		"reply":  confirmation,
	})
}

func (s *Service) publishToken(sessionID, turnID, content string, done bool) {
	data, err := json.Marshal(protocol.Token{SessionID: sessionID, TurnID: turnID, Content: content, Done: done})
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTurnToken, data); err != nil {
		s.logger.Warn("router failed to publish token", slogError(err))
	}
}

func (s *Service) publishReply(sessionID, turnID, text, action string) {
	reply := protocol.Reply{
		SessionID: sessionID,
		TurnID:    turnID,
		Text:      text,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTurnReply, data); err != nil {
		s.logger.Warn("router failed to publish reply", slogError(err))
	}
}

func (s *Service) publishSpeak(sessionID, turnID, sentence string) {
	data, err := json.Marshal(protocol.SpeakRequest{SessionID: sessionID, TurnID: turnID, Text: sentence})
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeak, data); err != nil {
		s.logger.Warn("router failed to publish speak request", slogError(err))
	}
}

func (s *Service) record(sessionID, turnID, eventType string, payload map[string]string) {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.store.EnsureSession(s.ctx, sessionID); err != nil {
		s.logger.Warn("event store session write failed", slogError(err))
		return
	}
	evt := eventstore.Event{SessionID: sessionID, TurnID: turnID, Type: eventType, Payload: data}
	if err := s.store.AppendEvent(s.ctx, evt); err != nil {
		s.logger.Warn("event store append failed", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
