package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, pcm []int16, _ int, _ int) (Result, error) {
	return Result{
		Text:       fmt.Sprintf("[transcript samples=%d]", len(pcm)),
		Confidence: 0,
	}, nil
}
