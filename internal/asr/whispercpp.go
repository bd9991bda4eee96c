//go:build whispercpp

package asr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-stt/internal/audio"
	"github.com/loqalabs/loqa-stt/internal/config"
)

// whisperCppRecognizer runs whisper.cpp in-process. The model is loaded once
// at construction and shared; whisper contexts are not concurrency-safe, so
// calls are serialized here.
type whisperCppRecognizer struct {
	model   whisper.Model
	threads int
	log     *slog.Logger
	mu      sync.Mutex
}

func NewWhisperCpp(cfg config.ASRConfig, logger *slog.Logger) (Recognizer, error) {
	path := cfg.ModelPath
	if path == "" {
		path = cfg.Model
	}
	log := logger.With(slog.String("component", "asr.whispercpp"))
	log.Info("loading whisper model", slog.String("path", path))

	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w: %v", ErrUnavailable, err)
	}
	log.Info("whisper model loaded", slog.Bool("multilingual", model.IsMultilingual()))

	return &whisperCppRecognizer{model: model, threads: cfg.Threads, log: log}, nil
}

func (r *whisperCppRecognizer) Transcribe(ctx context.Context, samples []float32, prompt string, language string) ([]Word, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	wctx, err := r.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("%w: create whisper context: %v", ErrTransient, err)
	}

	if language != "" && language != "auto" {
		if err := wctx.SetLanguage(language); err != nil {
			r.log.Warn("failed to set language", slog.String("language", language), slog.String("error", err.Error()))
		}
	}
	if r.threads > 0 {
		wctx.SetThreads(uint(r.threads))
	}
	if prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("%w: whisper process: %v", ErrTransient, err)
	}

	var segs []Segment
	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read segment: %v", ErrTransient, err)
		}
		segs = append(segs, Segment{
			Start: segment.Start.Seconds(),
			End:   segment.End.Seconds(),
			Text:  segment.Text,
		})
	}
	return SplitSegments(segs), nil
}

func (r *whisperCppRecognizer) Capabilities() Capabilities {
	return Capabilities{
		SampleRate:      audio.SampleRate,
		MaxAudioSeconds: 30,
		SupportsPrompt:  true,
		Sep:             "",
		ConcurrentSafe:  false,
	}
}
