package stt

import "context"

// Result captures recognizer output for one utterance.
type Result struct {
	Text       string
	Confidence float64
}

// Recognizer abstracts STT backends. PCM is mono 16-bit at the given rate.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRate int, channels int) (Result, error)
}
