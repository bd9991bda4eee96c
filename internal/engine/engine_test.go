package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-stt/internal/asr"
	"github.com/loqalabs/loqa-stt/internal/audio"
	"github.com/loqalabs/loqa-stt/internal/config"
	"github.com/loqalabs/loqa-stt/internal/vad"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedRecognizer returns one canned hypothesis (or error) per call, in
// window-relative time, and records the prompts it was given.
type scriptedRecognizer struct {
	script  [][]asr.Word
	errs    []error
	calls   int
	prompts []string
}

func (r *scriptedRecognizer) Transcribe(_ context.Context, _ []float32, prompt string, _ string) ([]asr.Word, error) {
	idx := r.calls
	r.calls++
	r.prompts = append(r.prompts, prompt)
	if idx < len(r.errs) && r.errs[idx] != nil {
		return nil, r.errs[idx]
	}
	if idx >= len(r.script) {
		return nil, nil
	}
	return r.script[idx], nil
}

func (r *scriptedRecognizer) Capabilities() asr.Capabilities {
	return asr.Capabilities{SampleRate: audio.SampleRate, MaxAudioSeconds: 30, SupportsPrompt: true, Sep: "", ConcurrentSafe: true}
}

func engineConfig() config.EngineConfig {
	return config.EngineConfig{
		MinChunkSec:    1.0,
		MaxWaitSec:     3.0,
		BufferTrimming: "sentence",
		HardCapSec:     30,
		PromptChars:    200,
	}
}

func vadConfig() config.VADConfig {
	return config.VADConfig{Enabled: true, MinSilenceMS: 500, Threshold: 0.01, FrameMS: 30}
}

func newProcessor(rec asr.Recognizer, gate vad.Gate, cfg config.EngineConfig) *Processor {
	return New(rec, gate, NewPool(), cfg, vadConfig(), "auto", testLogger())
}

func seconds(n float64) []float32 {
	return make([]float32, int(n*audio.SampleRate))
}

func TestCommitNeedsTwoAgreeingCalls(t *testing.T) {
	hyp := []asr.Word{w(0, 0.5, " hello"), w(0.5, 1.0, " world")}
	rec := &scriptedRecognizer{script: [][]asr.Word{hyp, hyp}}
	p := newProcessor(rec, nil, engineConfig())
	p.InsertAudio(seconds(2))

	got, err := p.ProcessIter(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("first call must not commit, got %+v", got)
	}

	got, err = p.ProcessIter(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 committed words, got %+v", got)
	}
	if got[0].Text != " hello" || got[1].Text != " world" {
		t.Fatalf("unexpected words: %+v", got)
	}
}

func TestCommittedNeverRetracted(t *testing.T) {
	rec := &scriptedRecognizer{script: [][]asr.Word{
		{w(0, 0.5, " stay")},
		{w(0, 0.5, " stay"), w(0.5, 1.0, " tail")},
		// later hypothesis disagrees about the already committed word
		{w(0, 0.5, " gone"), w(0.5, 1.0, " tail")},
	}}
	p := newProcessor(rec, nil, engineConfig())
	p.InsertAudio(seconds(2))

	for i := 0; i < 3; i++ {
		if _, err := p.ProcessIter(context.Background()); err != nil {
			t.Fatalf("iter %d: %v", i, err)
		}
	}
	committed := p.Committed()
	if len(committed) == 0 || committed[0].Text != " stay" {
		t.Fatalf("committed prefix was altered: %+v", committed)
	}
	for i := 1; i < len(committed); i++ {
		if committed[i].Start < committed[i-1].Start {
			t.Fatalf("committed words out of order: %+v", committed)
		}
	}
}

func TestTransientFailureIsSilent(t *testing.T) {
	rec := &scriptedRecognizer{
		script: [][]asr.Word{nil, {w(0, 0.5, " ok")}, {w(0, 0.5, " ok")}},
		errs:   []error{fmt.Errorf("%w: timeout", asr.ErrTransient)},
	}
	p := newProcessor(rec, nil, engineConfig())
	p.InsertAudio(seconds(1))

	got, err := p.ProcessIter(context.Background())
	if err != nil {
		t.Fatalf("transient failure must be suppressed, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no words on transient failure, got %+v", got)
	}

	p.ProcessIter(context.Background())
	got, _ = p.ProcessIter(context.Background())
	if len(got) != 1 {
		t.Fatalf("expected recovery after transient failure, got %+v", got)
	}
}

func TestUnavailablePropagates(t *testing.T) {
	rec := &scriptedRecognizer{errs: []error{fmt.Errorf("model gone: %w", asr.ErrUnavailable)}}
	p := newProcessor(rec, nil, engineConfig())
	p.InsertAudio(seconds(1))

	if _, err := p.ProcessIter(context.Background()); !errors.Is(err, asr.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestEmptyBufferSkipsRecognizer(t *testing.T) {
	rec := &scriptedRecognizer{}
	p := newProcessor(rec, nil, engineConfig())

	got, err := p.ProcessIter(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("expected quiet no-op, got %v %v", got, err)
	}
	if rec.calls != 0 {
		t.Fatalf("recognizer must not run on empty buffer, ran %d times", rec.calls)
	}
}

func TestFinishFlushesUnconfirmedTail(t *testing.T) {
	hyp := []asr.Word{w(0, 0.5, " hello"), w(0.5, 1.0, " world")}
	rec := &scriptedRecognizer{script: [][]asr.Word{hyp, hyp}}
	p := newProcessor(rec, nil, engineConfig())
	p.InsertAudio(seconds(2))

	if _, err := p.ProcessIter(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := p.Finish(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected finish to flush both words, got %+v", got)
	}

	if _, err := p.Finish(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on second finish, got %v", err)
	}
	if _, err := p.ProcessIter(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after finish, got %v", err)
	}
}

func TestFinishOnEmptySession(t *testing.T) {
	rec := &scriptedRecognizer{}
	p := newProcessor(rec, nil, engineConfig())

	got, err := p.Finish(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
	if rec.calls != 0 {
		t.Fatal("recognizer must not run for an empty session")
	}
}

func TestForcedTrimKeepsBufferBounded(t *testing.T) {
	cfg := engineConfig()
	cfg.HardCapSec = 10

	// the recognizer keeps agreeing on words spanning the first 8 seconds
	var hyp []asr.Word
	for i := 0; i < 8; i++ {
		hyp = append(hyp, w(float64(i), float64(i+1), fmt.Sprintf(" w%d", i)))
	}
	rec := &scriptedRecognizer{script: [][]asr.Word{hyp, hyp}}
	p := newProcessor(rec, nil, cfg)
	p.InsertAudio(seconds(12))

	p.ProcessIter(context.Background())
	if _, err := p.ProcessIter(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.BufferedSeconds() > cfg.HardCapSec {
		t.Fatalf("buffer still over cap: %v s", p.BufferedSeconds())
	}
	if p.BufferOffset() == 0 {
		t.Fatal("expected offset to advance on forced trim")
	}
	last := p.Committed()[len(p.Committed())-1]
	if p.BufferOffset() > last.End {
		t.Fatalf("offset %v ran ahead of committed end %v", p.BufferOffset(), last.End)
	}
}

func TestVadTrimAtSilenceBoundary(t *testing.T) {
	cfg := engineConfig()
	cfg.BufferTrimming = "segment"
	gate := vad.NewEnergyGate(vadConfig())

	// 2s of tone followed by 2s of silence
	speech := make([]float32, 2*audio.SampleRate)
	for i := range speech {
		speech[i] = 0.3
	}
	silence := make([]float32, 2*audio.SampleRate)

	hyp := []asr.Word{w(0, 0.9, " spoken"), w(0.9, 1.8, " words")}
	rec := &scriptedRecognizer{script: [][]asr.Word{hyp, hyp}}
	p := newProcessor(rec, gate, cfg)
	p.InsertAudio(speech)
	p.InsertAudio(silence)

	p.ProcessIter(context.Background())
	if _, err := p.ProcessIter(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.BufferOffset() == 0 {
		t.Fatal("expected trim at the silence boundary")
	}
	if p.BufferOffset() < 1.8 {
		t.Fatalf("expected cut inside the trailing silence, got %v", p.BufferOffset())
	}
	if p.BufferedSeconds() > 2.0 {
		t.Fatalf("buffer not trimmed: %v s", p.BufferedSeconds())
	}
}

func TestPureSilenceStaysBounded(t *testing.T) {
	cfg := engineConfig()
	cfg.BufferTrimming = "segment"
	cfg.HardCapSec = 10
	gate := vad.NewEnergyGate(vadConfig())

	rec := &scriptedRecognizer{} // hears nothing
	p := newProcessor(rec, gate, cfg)

	for i := 0; i < 60; i++ {
		p.InsertAudio(seconds(1))
		if _, err := p.ProcessIter(context.Background()); err != nil {
			t.Fatalf("iter %d: %v", i, err)
		}
	}
	if p.BufferedSeconds() > cfg.HardCapSec {
		t.Fatalf("silent buffer exceeded cap: %v s", p.BufferedSeconds())
	}
	if len(p.Committed()) != 0 {
		t.Fatalf("silence produced output: %+v", p.Committed())
	}
}

func TestPromptFedFromScrolledTail(t *testing.T) {
	cfg := engineConfig()
	cfg.BufferTrimming = "segment"
	gate := vad.NewEnergyGate(vadConfig())

	speech := make([]float32, 2*audio.SampleRate)
	for i := range speech {
		speech[i] = 0.3
	}
	hyp := []asr.Word{w(0, 0.9, " context"), w(0.9, 1.8, " words")}
	rec := &scriptedRecognizer{script: [][]asr.Word{hyp, hyp, nil}}
	p := newProcessor(rec, gate, cfg)
	p.InsertAudio(speech)
	p.InsertAudio(make([]float32, 2*audio.SampleRate)) // trailing silence

	p.ProcessIter(context.Background())
	p.ProcessIter(context.Background()) // commits and trims past the words
	p.InsertAudio(seconds(1))
	p.ProcessIter(context.Background())

	last := rec.prompts[len(rec.prompts)-1]
	if last == "" {
		t.Fatal("expected a prompt built from the scrolled committed tail")
	}
	if want := "context words"; last != want {
		t.Fatalf("unexpected prompt %q, want %q", last, want)
	}
}

func TestChunkCadenceDifferencesAgreeOnText(t *testing.T) {
	// identical hypothesis stream, different insert granularity: the
	// committed text must be identical
	hyp := []asr.Word{w(0, 0.5, " same"), w(0.5, 1.0, " text")}

	run := func(chunk float64) string {
		rec := &scriptedRecognizer{script: [][]asr.Word{hyp, hyp, hyp}}
		p := newProcessor(rec, nil, engineConfig())
		total := 0.0
		for total < 2.0 {
			p.InsertAudio(seconds(chunk))
			total += chunk
		}
		p.ProcessIter(context.Background())
		p.ProcessIter(context.Background())
		out, _ := p.Finish(context.Background())
		_ = out
		text := ""
		for _, cw := range p.Committed() {
			text += cw.Text
		}
		return text
	}

	if a, b := run(0.1), run(0.5); a != b {
		t.Fatalf("cadence changed committed text: %q vs %q", a, b)
	}
}
