package asr

import (
	"context"
	"errors"
)

// Word is a single recognized token with timings in seconds relative to the
// start of the transcribed window. Text keeps whatever leading whitespace or
// punctuation the backend emitted.
type Word struct {
	Start float64
	End   float64
	Text  string
}

// Capabilities are the static properties a backend advertises at
// construction time.
type Capabilities struct {
	SampleRate      int
	MaxAudioSeconds float64
	SupportsPrompt  bool
	// Sep joins committed words into display text. Whisper-style backends
	// emit tokens with their own leading spaces, so it is usually "".
	Sep string
	// ConcurrentSafe reports whether Transcribe may be called from several
	// sessions at once. When false the caller serializes.
	ConcurrentSafe bool
}

// Recognizer turns one bounded audio window into a word-level hypothesis.
// Implementations hold model state but no per-session state.
type Recognizer interface {
	// Transcribe recognizes 16 kHz mono float32 samples. prompt is an
	// opaque textual context hint (possibly empty); language is an ISO
	// code or empty for autodetect. Word order is non-decreasing in start
	// time.
	Transcribe(ctx context.Context, samples []float32, prompt string, language string) ([]Word, error)
	Capabilities() Capabilities
}

var (
	// ErrUnavailable means the backend cannot be reached or its model
	// cannot load. Sessions terminate on it; the server stays up.
	ErrUnavailable = errors.New("recognizer unavailable")
	// ErrTransient means a single call failed. The engine treats it as
	// "no new words this tick".
	ErrTransient = errors.New("recognizer transient failure")
)

// IsTransient reports whether err should be suppressed by the engine.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
