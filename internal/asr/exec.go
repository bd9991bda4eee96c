package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/loqalabs/loqa-stt/internal/audio"
	"github.com/loqalabs/loqa-stt/internal/config"
	"github.com/mattn/go-shellwords"
)

// execRecognizer shells out to an external transcriber (typically a
// faster-whisper wrapper script on a GPU box). The command receives a WAV
// file and prints a JSON result on stdout:
//
//	{"words":[{"start":0.0,"end":0.4,"word":" Hello"}],
//	 "segments":[{"start":0.0,"end":1.2,"text":"Hello world"}]}
//
// Word entries are preferred; when the tool only reports segments, timings
// are interpolated down to words here.
type execRecognizer struct {
	cmd []string
	cfg config.ASRConfig
	log *slog.Logger
	mu  sync.Mutex
}

type execWord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type execSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type execResult struct {
	Words    []execWord    `json:"words"`
	Segments []execSegment `json:"segments"`
}

func NewExecRecognizer(cfg config.ASRConfig, logger *slog.Logger) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse asr command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("asr command is empty: %w", ErrUnavailable)
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("asr command %q: %w", args[0], ErrUnavailable)
	}
	return &execRecognizer{cmd: args, cfg: cfg, log: logger.With(slog.String("component", "asr.exec"))}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, samples []float32, prompt string, language string) ([]Word, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := audio.TempWav(samples)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer os.Remove(path)

	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", path)
	if r.cfg.ModelPath != "" {
		args = append(args, "--model", r.cfg.ModelPath)
	}
	if language != "" && language != "auto" {
		args = append(args, "--language", language)
	}
	if prompt != "" {
		args = append(args, "--prompt", prompt)
	}

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// the binary disappeared or could not start
			return nil, fmt.Errorf("asr command failed to start: %w", ErrUnavailable)
		}
		r.log.Warn("asr command failed", slog.String("stderr", stderr.String()))
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("%w: decode asr response: %v", ErrTransient, err)
	}

	if len(resp.Words) > 0 {
		words := make([]Word, 0, len(resp.Words))
		for _, w := range resp.Words {
			words = append(words, Word{Start: w.Start, End: w.End, Text: w.Word})
		}
		return words, nil
	}

	segs := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segs = append(segs, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return SplitSegments(segs), nil
}

func (r *execRecognizer) Capabilities() Capabilities {
	return Capabilities{
		SampleRate:      audio.SampleRate,
		MaxAudioSeconds: 30,
		SupportsPrompt:  true,
		Sep:             "",
		ConcurrentSafe:  false,
	}
}
