package asr

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/loqalabs/loqa-stt/internal/audio"
	"github.com/loqalabs/loqa-stt/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

// openaiRecognizer sends audio windows to the Whisper API with word-level
// timestamp granularity. It shares one HTTP client across sessions.
type openaiRecognizer struct {
	client      *openai.Client
	model       string
	temperature float32
	log         *slog.Logger
}

func NewOpenAIRecognizer(cfg config.ASRConfig, logger *slog.Logger) (Recognizer, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("openai api key not configured: %w", ErrUnavailable)
	}
	model := cfg.Model
	if model == "" || model == "auto" {
		model = openai.Whisper1
	}
	return &openaiRecognizer{
		client:      openai.NewClient(key),
		model:       model,
		temperature: float32(cfg.Temperature),
		log:         logger.With(slog.String("component", "asr.openai")),
	}, nil
}

func (r *openaiRecognizer) Transcribe(ctx context.Context, samples []float32, prompt string, language string) ([]Word, error) {
	path, err := audio.TempWav(samples)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer os.Remove(path)

	req := openai.AudioRequest{
		Model:       r.model,
		FilePath:    path,
		Prompt:      prompt,
		Temperature: r.temperature,
		Format:      openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
			openai.TranscriptionTimestampGranularitySegment,
		},
	}
	if language != "" && language != "auto" {
		req.Language = language
	}

	resp, err := r.client.CreateTranscription(ctx, req)
	if err != nil {
		r.log.Warn("transcription call failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	if len(resp.Words) > 0 {
		words := make([]Word, 0, len(resp.Words))
		for _, w := range resp.Words {
			// the API strips token spacing at word granularity
			words = append(words, Word{Start: w.Start, End: w.End, Text: " " + w.Word})
		}
		return words, nil
	}

	segs := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segs = append(segs, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return SplitSegments(segs), nil
}

func (r *openaiRecognizer) Capabilities() Capabilities {
	return Capabilities{
		SampleRate:      audio.SampleRate,
		MaxAudioSeconds: 30,
		SupportsPrompt:  true,
		Sep:             "",
		ConcurrentSafe:  true,
	}
}
