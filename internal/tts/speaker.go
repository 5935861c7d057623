package tts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lunalabs/luna-core/internal/protocol"
)

const synthTimeout = 60 * time.Second

// Playback is the output device contract the speaker drives. Play blocks
// until the buffer has played out or Stop cut it off.
type Playback interface {
	Play(ctx context.Context, pcm []int16, sampleRate int) error
	Stop()
}

// Speaker serializes synthesis and playback. Speak returns immediately;
// queued sentences play one at a time in submission order, and the start/stop
// callbacks always fire as a matched pair around each playback.
type Speaker struct {
	synth   Synthesizer
	player  Playback
	voice   string
	log     *slog.Logger
	onStart func()
	onStop  func()

	mu sync.Mutex
	wg sync.WaitGroup
}

func NewSpeaker(synth Synthesizer, player Playback, voice string, logger *slog.Logger) *Speaker {
	return &Speaker{
		synth:  synth,
		player: player,
		voice:  voice,
		log:    logger,
	}
}

// SetCallbacks installs the speaking-state hooks. Call before the first Speak.
func (s *Speaker) SetCallbacks(onStart, onStop func()) {
	s.onStart = onStart
	s.onStop = onStop
}

// Speak queues text for playback and returns without waiting.
func (s *Speaker) Speak(ctx context.Context, text string) {
	if text == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.speakLocked(ctx, text)
	}()
}

func (s *Speaker) speakLocked(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onStart != nil {
		s.onStart()
	}
	if s.onStop != nil {
		defer s.onStop()
	}

	synthCtx, cancel := context.WithTimeout(ctx, synthTimeout)
	defer cancel()

	chunks, errs := s.synth.Synthesize(synthCtx, SynthRequest{Text: text, Voice: s.voice})

	var pcm []int16
	sampleRate := 0
	for chunk := range chunks {
		if sampleRate == 0 {
			sampleRate = chunk.SampleRate
		}
		pcm = append(pcm, protocol.BytesToPCM(chunk.PCM)...)
	}
	if err := <-errs; err != nil {
		s.log.Error("tts synthesis failed", slog.String("error", err.Error()))
		return
	}
	if len(pcm) == 0 || sampleRate == 0 {
		return
	}

	if err := s.player.Play(ctx, pcm, sampleRate); err != nil {
		s.log.Error("tts playback failed", slog.String("error", err.Error()))
	}
}

// StopSpeaking cuts off the current playback. Queued sentences still play.
func (s *Speaker) StopSpeaking() {
	s.player.Stop()
}

// Wait blocks until all queued sentences have finished.
func (s *Speaker) Wait() {
	s.wg.Wait()
}
