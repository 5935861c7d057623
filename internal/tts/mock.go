package tts

import (
	"context"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth emits a short burst of silence per request. It keeps the rest
// of the pipeline runnable on machines without a speech model installed.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		}
		// 100ms of silence, 16-bit mono.
		pcm := make([]byte, m.sampleRate/10*2*m.channels)
		select {
		case chunks <- SynthChunk{SampleRate: m.sampleRate, Channels: m.channels, PCM: pcm, Final: true}:
		case <-ctx.Done():
			errs <- ctx.Err()
		}
	}()
	return chunks, errs
}
