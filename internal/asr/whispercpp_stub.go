//go:build !whispercpp

package asr

import (
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-stt/internal/config"
)

// NewWhisperCpp without the whispercpp build tag: the cgo binding is not
// compiled in, so selecting this mode is a construction-time failure.
func NewWhisperCpp(_ config.ASRConfig, _ *slog.Logger) (Recognizer, error) {
	return nil, fmt.Errorf("binary built without whispercpp support: %w", ErrUnavailable)
}
