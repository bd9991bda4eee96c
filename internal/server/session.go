package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/loqa-stt/internal/asr"
	"github.com/loqalabs/loqa-stt/internal/audio"
	"github.com/loqalabs/loqa-stt/internal/bus"
	"github.com/loqalabs/loqa-stt/internal/engine"
	"github.com/loqalabs/loqa-stt/internal/protocol"
)

// frameQueueCap bounds the reader-to-engine queue; roughly two seconds of
// audio at typical 100 ms client chunking.
const frameQueueCap = 20

// keepaliveInterval is how often protocols with a ping frame get one.
const keepaliveInterval = 30 * time.Second

// Session drives one connection: a reader goroutine feeds decoded PCM into a
// bounded queue, the Run loop paces the engine and writes committed records
// back. All transport writes happen on the Run goroutine.
type Session struct {
	id      string
	tr      transport
	eng     *engine.Processor
	bus     *bus.Client
	metrics *Metrics
	log     *slog.Logger

	minChunk float64
	maxWait  time.Duration

	lastEndMS int64

	done     chan struct{}
	readErr  error
	failKind string
}

func newSession(id string, tr transport, eng *engine.Processor, busClient *bus.Client, metrics *Metrics, minChunkSec, maxWaitSec float64, log *slog.Logger) *Session {
	return &Session{
		id:       id,
		tr:       tr,
		eng:      eng,
		bus:      busClient,
		metrics:  metrics,
		log:      log.With(slog.String("session_id", id)),
		done:     make(chan struct{}),
		minChunk: minChunkSec,
		maxWait:  time.Duration(maxWaitSec * float64(time.Second)),
	}
}

// Run owns the connection until end-of-stream or a terminal error.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	if s.metrics != nil {
		s.metrics.sessionStarted(ctx, s.tr.Name())
		defer s.metrics.sessionEnded(ctx)
	}

	frames := make(chan []float32, frameQueueCap)
	go s.readLoop(ctx, frames)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	pendingSec := 0.0
	lastIter := time.Now()

	for {
		select {
		case samples, ok := <-frames:
			if !ok {
				return s.finish(ctx)
			}
			s.eng.InsertAudio(samples)
			pendingSec += float64(len(samples)) / audio.SampleRate
		case <-ticker.C:
		case <-keepalive.C:
			if err := s.tr.Ping(); err != nil {
				s.tr.Close()
				return fmt.Errorf("keepalive: %w", err)
			}
			continue
		case <-ctx.Done():
			s.tr.Close()
			return ctx.Err()
		}

		if pendingSec >= s.minChunk || (pendingSec > 0 && time.Since(lastIter) >= s.maxWait) {
			if err := s.iterate(ctx); err != nil {
				return err
			}
			pendingSec = 0
			lastIter = time.Now()
		}
	}
}

// readLoop pulls raw chunks off the wire, reassembles 16-bit frames across
// chunk boundaries and hands decoded samples to the Run loop. It closes
// frames on any exit; failKind is set before the close and therefore visible
// to the receiver.
func (s *Session) readLoop(ctx context.Context, frames chan<- []float32) {
	defer close(frames)

	var pending []byte
	for {
		data, err := s.tr.ReadAudio()
		if len(data) > 0 {
			pending = append(pending, data...)
			usable := len(pending) &^ 1
			if usable > 0 {
				samples, derr := audio.DecodePCM16(pending[:usable])
				if derr != nil {
					s.readErr = derr
					s.failKind = protocol.ErrKindDecode
					return
				}
				pending = append(pending[:0], pending[usable:]...)
				select {
				case frames <- samples:
				case <-s.done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if !isClientGone(err) {
				s.readErr = err
				s.failKind = protocol.ErrKindTransport
				return
			}
			// clean close with half a sample dangling is a truncated stream
			if len(pending) != 0 {
				s.readErr = audio.ErrOddPCM
				s.failKind = protocol.ErrKindDecode
			}
			return
		}
	}
}

// iterate runs one engine pass and emits whatever it committed.
func (s *Session) iterate(ctx context.Context) error {
	start := time.Now()
	words, err := s.eng.ProcessIter(ctx)
	if s.metrics != nil {
		s.metrics.iterDone(ctx, time.Since(start))
	}
	if err != nil {
		s.log.Error("recognizer unavailable, ending session", slog.String("error", err.Error()))
		_ = s.tr.WriteError(protocol.ErrKindRecognizerUnavailable)
		s.tr.Close()
		return err
	}
	if len(words) == 0 {
		return nil
	}
	return s.emit(ctx, words, false)
}

// finish handles end-of-stream: read failures turn into terminal error
// records, a clean close flushes the engine's unconfirmed tail.
func (s *Session) finish(ctx context.Context) error {
	switch s.failKind {
	case protocol.ErrKindDecode:
		s.log.Warn("pcm stream not decodable", slog.String("error", s.readErr.Error()))
		_ = s.tr.WriteError(protocol.ErrKindDecode)
		s.tr.Close()
		return fmt.Errorf("decode stream: %w", s.readErr)
	case protocol.ErrKindTransport:
		s.log.Warn("transport read failed", slog.String("error", s.readErr.Error()))
		s.tr.Close()
		return fmt.Errorf("read stream: %w", s.readErr)
	}

	words, err := s.eng.Finish(ctx)
	if err != nil {
		s.log.Error("recognizer unavailable during final flush", slog.String("error", err.Error()))
		_ = s.tr.WriteError(protocol.ErrKindRecognizerUnavailable)
		s.tr.Close()
		return err
	}

	rec := s.record(words)
	if err := s.tr.WriteFinal(rec); err != nil {
		s.tr.Close()
		return fmt.Errorf("write final record: %w", err)
	}
	s.publish(rec, true)
	s.log.Info("session finished",
		slog.Float64("audio_sec", s.eng.BufferOffset()),
		slog.Int("committed_words", len(s.eng.Committed())))
	return s.tr.CloseClean()
}

func (s *Session) emit(ctx context.Context, words []asr.Word, final bool) error {
	rec := s.record(words)
	if err := s.tr.WriteRecord(rec); err != nil {
		s.tr.Close()
		return fmt.Errorf("write record: %w", err)
	}
	if s.metrics != nil {
		s.metrics.wordsCommitted(ctx, len(words))
	}
	s.publish(rec, final)
	return nil
}

// record folds committed words into one wire record. Start is clamped to the
// previous record's end so emitted intervals never overlap.
func (s *Session) record(words []asr.Word) protocol.Record {
	if len(words) == 0 {
		return protocol.Record{Start: s.lastEndMS, End: s.lastEndMS}
	}
	rec := protocol.Record{
		Start: toMS(words[0].Start),
		End:   toMS(words[len(words)-1].End),
		Text:  s.joinWords(words),
	}
	if rec.Start < s.lastEndMS {
		rec.Start = s.lastEndMS
	}
	if rec.End < rec.Start {
		rec.End = rec.Start
	}
	s.lastEndMS = rec.End
	return rec
}

func (s *Session) joinWords(words []asr.Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.TrimSpace(strings.Join(parts, s.eng.Sep()))
}

func (s *Session) publish(rec protocol.Record, final bool) {
	if s.bus == nil || rec.Text == "" {
		return
	}
	err := s.bus.PublishTranscript(protocol.Transcript{
		SessionID: s.id,
		Start:     rec.Start,
		End:       rec.End,
		Text:      rec.Text,
		Final:     final,
	})
	if err != nil {
		s.log.Warn("transcript publish failed", slog.String("error", err.Error()))
	}
}

func toMS(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}

// isClientGone reports whether a read error means the peer closed the stream
// rather than the stream breaking.
func isClientGone(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure ||
			closeErr.Code == websocket.CloseGoingAway ||
			closeErr.Code == websocket.CloseNoStatusReceived
	}
	return false
}
