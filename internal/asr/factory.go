package asr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/loqalabs/loqa-stt/internal/audio"
	"github.com/loqalabs/loqa-stt/internal/config"
)

// New selects a backend from config. Variant selection is a construction-time
// choice; a mode the build or configuration cannot satisfy fails here.
func New(cfg config.ASRConfig, logger *slog.Logger) (Recognizer, error) {
	switch cfg.Mode {
	case "whispercpp":
		return NewWhisperCpp(cfg, logger)
	case "exec":
		return NewExecRecognizer(cfg, logger)
	case "openai":
		return NewOpenAIRecognizer(cfg, logger)
	case "mock":
		return NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown asr mode %q", cfg.Mode)
	}
}

// Warmup runs one transcription over a WAV file so the first client does not
// pay the model's cold-start cost. Failure is logged, not fatal.
func Warmup(ctx context.Context, rec Recognizer, cfg config.ASRConfig, logger *slog.Logger) {
	if cfg.WarmupFile == "" {
		logger.Warn("recognizer is not warmed up, the first chunk may take longer")
		return
	}
	if _, err := os.Stat(cfg.WarmupFile); err != nil {
		logger.Warn("warmup file not available", slog.String("path", cfg.WarmupFile), slog.String("error", err.Error()))
		return
	}
	samples, err := audio.ReadWav(cfg.WarmupFile)
	if err != nil {
		logger.Warn("failed to load warmup audio", slog.String("error", err.Error()))
		return
	}
	if len(samples) > audio.SampleRate {
		samples = samples[:audio.SampleRate]
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	start := time.Now()
	if _, err := rec.Transcribe(ctx, samples, "", cfg.Language); err != nil {
		logger.Warn("warmup transcription failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("recognizer warmed up", slog.Duration("took", time.Since(start)))
}
