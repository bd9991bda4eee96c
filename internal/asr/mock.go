package asr

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-stt/internal/audio"
)

// mockRecognizer emits one deterministic word per whole second of input.
// Because output depends only on the window, consecutive calls over a growing
// buffer agree on their shared prefix, which makes the streaming commit path
// observable without a model.
type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, samples []float32, _ string, _ string) ([]Word, error) {
	seconds := len(samples) / audio.SampleRate
	words := make([]Word, 0, seconds)
	for i := 0; i < seconds; i++ {
		words = append(words, Word{
			Start: float64(i),
			End:   float64(i + 1),
			Text:  fmt.Sprintf(" audio%d", i),
		})
	}
	return words, nil
}

func (m *mockRecognizer) Capabilities() Capabilities {
	return Capabilities{
		SampleRate:      audio.SampleRate,
		MaxAudioSeconds: 30,
		SupportsPrompt:  true,
		Sep:             "",
		ConcurrentSafe:  true,
	}
}
