package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lunalabs/luna-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedSynth emits one chunk per request, or fails outright.
type scriptedSynth struct {
	sampleRate int
	err        error
}

func (s *scriptedSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		if s.err != nil {
			errs <- s.err
			return
		}
		pcm := protocol.PCMToBytes([]int16{100, 200, 300})
		chunks <- SynthChunk{SampleRate: s.sampleRate, Channels: 1, PCM: pcm, Final: true}
	}()
	return chunks, errs
}

// fakePlayback records the event order and can hold playback open until
// released.
type fakePlayback struct {
	mu      sync.Mutex
	events  []string
	playing int
	overlap bool
	stopped int
	release chan struct{}
}

func (f *fakePlayback) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	f.mu.Lock()
	f.playing++
	if f.playing > 1 {
		f.overlap = true
	}
	f.events = append(f.events, "play")
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}

	f.mu.Lock()
	f.playing--
	f.mu.Unlock()
	return nil
}

func (f *fakePlayback) Stop() {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
}

func (f *fakePlayback) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func TestSpeakSerializesAndPairsCallbacks(t *testing.T) {
	player := &fakePlayback{}
	speaker := NewSpeaker(&scriptedSynth{sampleRate: 16000}, player, "default", newLogger())
	speaker.SetCallbacks(
		func() { player.record("start") },
		func() { player.record("stop") },
	)

	ctx := context.Background()
	speaker.Speak(ctx, "First sentence.")
	speaker.Speak(ctx, "Second sentence.")
	speaker.Wait()

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.overlap {
		t.Fatal("playbacks overlapped")
	}
	if len(player.events) != 6 {
		t.Fatalf("expected 6 events, got %v", player.events)
	}
	for i := 0; i < len(player.events); i += 3 {
		if player.events[i] != "start" || player.events[i+1] != "play" || player.events[i+2] != "stop" {
			t.Fatalf("expected start/play/stop triples, got %v", player.events)
		}
	}
}

func TestSpeakDoesNotBlockCaller(t *testing.T) {
	player := &fakePlayback{release: make(chan struct{})}
	speaker := NewSpeaker(&scriptedSynth{sampleRate: 16000}, player, "default", newLogger())

	done := make(chan struct{})
	go func() {
		speaker.Speak(context.Background(), "Hold the line.")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Speak blocked on playback")
	}

	close(player.release)
	speaker.Wait()
}

func TestStopSpeakingReachesPlayer(t *testing.T) {
	player := &fakePlayback{}
	speaker := NewSpeaker(&scriptedSynth{sampleRate: 16000}, player, "default", newLogger())

	speaker.StopSpeaking()

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.stopped != 1 {
		t.Fatalf("expected 1 stop call, got %d", player.stopped)
	}
}

func TestSynthesisFailureSkipsPlayback(t *testing.T) {
	player := &fakePlayback{}
	speaker := NewSpeaker(&scriptedSynth{err: errors.New("model missing")}, player, "default", newLogger())

	calls := 0
	speaker.SetCallbacks(func() { calls++ }, func() { calls++ })
	speaker.Speak(context.Background(), "Never played.")
	speaker.Wait()

	player.mu.Lock()
	defer player.mu.Unlock()
	for _, event := range player.events {
		if event == "play" {
			t.Fatal("playback ran despite synthesis failure")
		}
	}
	if calls != 2 {
		t.Fatalf("expected paired callbacks even on failure, got %d calls", calls)
	}
}
