package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/loqalabs/loqa-stt/internal/asr"
	"github.com/loqalabs/loqa-stt/internal/audio"
	"github.com/loqalabs/loqa-stt/internal/config"
	"github.com/loqalabs/loqa-stt/internal/vad"
)

// ErrClosed is returned when the engine is used after Finish.
var ErrClosed = errors.New("engine closed")

// headroom kept below the hard cap when a forced mid-utterance cut happens.
const forcedCutTailSec = 5.0

// Pool bounds concurrent recognizer invocations process-wide. The recognizer
// call is the only heavy step of ProcessIter and must not starve other
// sessions of CPU.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool sizes the pool to the CPU count.
func NewPool() *Pool {
	return &Pool{sem: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))}
}

// Processor is the online ASR engine of one session: it owns the sliding
// audio buffer, reconciles overlapping hypotheses into a committed prefix
// and keeps the buffer bounded.
type Processor struct {
	rec      asr.Recognizer
	gate     vad.Gate // nil when VAD is off
	pool     *Pool
	log      *slog.Logger
	language string

	trimMode    string
	hardCap     float64
	minSilence  float64
	promptChars float64

	buf       *audio.Buffer
	hyp       *hypothesisBuffer
	committed []asr.Word
	sep       string
	closed    bool
}

// New builds a Processor. gate and pool may be nil (VAD off, unbounded
// recognizer concurrency).
func New(rec asr.Recognizer, gate vad.Gate, pool *Pool, cfg config.EngineConfig, vadCfg config.VADConfig, language string, logger *slog.Logger) *Processor {
	if language == "auto" {
		language = ""
	}
	return &Processor{
		rec:         rec,
		gate:        gate,
		pool:        pool,
		log:         logger.With(slog.String("component", "engine")),
		language:    language,
		trimMode:    cfg.BufferTrimming,
		hardCap:     cfg.HardCapSec,
		minSilence:  float64(vadCfg.MinSilenceMS) / 1000.0,
		promptChars: float64(cfg.PromptChars),
		buf:         audio.NewBuffer(),
		hyp:         newHypothesisBuffer(),
		sep:         rec.Capabilities().Sep,
	}
}

// InsertAudio appends samples to the buffer. It never blocks and never
// recognizes; a buffer already past the hard cap still accepts samples and
// the next ProcessIter trims.
func (p *Processor) InsertAudio(samples []float32) {
	p.buf.Append(samples)
}

// BufferedSeconds reports the current live window length.
func (p *Processor) BufferedSeconds() float64 {
	return p.buf.Duration()
}

// BufferOffset reports the session time of the live window's first sample.
func (p *Processor) BufferOffset() float64 {
	return p.buf.Offset()
}

// Committed exposes the whole committed transcript.
func (p *Processor) Committed() []asr.Word {
	return p.committed
}

// Sep is the separator the recognizer wants between joined words.
func (p *Processor) Sep() string {
	return p.sep
}

// ProcessIter recognizes the current buffer, reconciles against the previous
// hypothesis and returns the newly committed words in session time. A
// transient recognizer failure yields no words and no error.
func (p *Processor) ProcessIter(ctx context.Context) ([]asr.Word, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.buf.Len() == 0 {
		return nil, nil
	}

	raw, err := p.transcribe(ctx)
	if err != nil {
		if asr.IsTransient(err) {
			p.log.Warn("transient recognizer failure, skipping tick", slog.String("error", err.Error()))
			return nil, nil
		}
		return nil, err
	}

	p.hyp.insert(raw, p.buf.Offset())
	committed := p.hyp.flush()
	p.committed = append(p.committed, committed...)

	p.trim()
	return committed, nil
}

// Finish flushes the engine at end-of-stream: one last reconciliation pass,
// then every remaining unconfirmed word is committed (no second opinion can
// arrive). The engine is closed afterwards.
func (p *Processor) Finish(ctx context.Context) ([]asr.Word, error) {
	if p.closed {
		return nil, ErrClosed
	}

	confirmed, err := p.ProcessIter(ctx)
	if err != nil {
		p.closed = true
		return nil, err
	}

	rest := p.hyp.flushAll()
	p.committed = append(p.committed, rest...)
	p.buf.Reset(p.buf.End())
	p.closed = true

	return append(confirmed, rest...), nil
}

func (p *Processor) transcribe(ctx context.Context) ([]asr.Word, error) {
	if p.pool != nil {
		if err := p.pool.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("%w: %v", asr.ErrTransient, err)
		}
		defer p.pool.sem.Release(1)
	}
	return p.rec.Transcribe(ctx, p.buf.Samples(), p.prompt(), p.language)
}

// prompt returns the committed tail that scrolled out of the live buffer,
// bounded to promptChars and cut at a whitespace boundary. Committed words
// still inside the buffer are re-transcribed, not prompted.
func (p *Processor) prompt() string {
	if !p.rec.Capabilities().SupportsPrompt {
		return ""
	}
	k := len(p.committed)
	for k > 0 && p.committed[k-1].End > p.buf.Offset() {
		k--
	}

	var sb strings.Builder
	start := k
	length := 0.0
	for start > 0 && length < p.promptChars {
		start--
		length += float64(len(p.committed[start].Text)) + float64(len(p.sep))
	}
	for i := start; i < k; i++ {
		if i > start {
			sb.WriteString(p.sep)
		}
		sb.WriteString(p.committed[i].Text)
	}
	return asr.TruncatePrompt(strings.TrimSpace(sb.String()), int(p.promptChars))
}

// trim keeps the live buffer bounded without ever cutting ahead of the
// committed transcript or inside speech the gate still hears.
func (p *Processor) trim() {
	safeUntil := p.hyp.lastCommittedTime

	if p.trimMode == "segment" && p.gate != nil {
		limit := safeUntil
		if len(p.hyp.buffer) == 0 {
			// no uncommitted words overlap this window, so any silence is a
			// safe cut; keep a 1 s tail for a voice onset the gate has not
			// fully seen yet
			if tail := p.buf.End() - 1.0; tail > limit {
				limit = tail
			}
		}
		if t, ok := p.silenceBoundary(limit); ok && t > p.buf.Offset() {
			p.chunkAt(t)
			return
		}
	}
	p.forcedTrim(safeUntil)
}

// silenceBoundary finds the latest VAD silence interval, at least minSilence
// long, that ends at or before limit. Gate failure means no boundary.
func (p *Processor) silenceBoundary(limit float64) (float64, bool) {
	intervals, err := p.gate.Classify(p.buf.Samples())
	if err != nil {
		p.log.Warn("vad gate failed, treating buffer as speech", slog.String("error", err.Error()))
		return 0, false
	}
	best := 0.0
	found := false
	for _, iv := range intervals {
		if iv.Speech {
			continue
		}
		beg := p.buf.Offset() + iv.Start
		end := p.buf.Offset() + iv.End
		if end-beg < p.minSilence {
			continue
		}
		// cut at the silence end, or mid-silence when the limit lands
		// inside the interval
		cand := end
		if cand > limit {
			cand = limit
		}
		if cand <= beg {
			continue
		}
		if cand > best {
			best = cand
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return best, true
}

func (p *Processor) forcedTrim(safeUntil float64) {
	if p.buf.Duration() <= p.hardCap {
		return
	}
	t := p.buf.Offset() + p.hardCap - forcedCutTailSec
	if safeUntil < t {
		t = safeUntil
	}
	if t <= p.buf.Offset() {
		return
	}
	p.log.Warn("buffer over hard cap, cutting mid-utterance",
		slog.Float64("cut_at", t), slog.Float64("buffered_sec", p.buf.Duration()))
	p.chunkAt(t)
}

func (p *Processor) chunkAt(t float64) {
	p.buf.TrimTo(t)
	p.hyp.trimTo(t)
}
