package engine

import (
	"math"
	"strings"
	"unicode"

	"github.com/loqalabs/loqa-stt/internal/asr"
)

// matchTolerance is how far apart two word start times may be while still
// counting as the same occurrence.
const matchTolerance = 0.5

// hypothesisBuffer reconciles successive recognizer hypotheses. buffer holds
// the previous call's unconfirmed tail, next the hypothesis just inserted;
// flush commits their longest agreeing prefix (LocalAgreement-2).
type hypothesisBuffer struct {
	committedInBuffer []asr.Word // committed words still covered by live audio
	buffer            []asr.Word
	next              []asr.Word

	lastCommittedTime float64
}

func newHypothesisBuffer() *hypothesisBuffer {
	return &hypothesisBuffer{}
}

// insert maps a raw hypothesis to absolute session time and stages it for
// the next flush. Words entirely inside the committed past are discarded;
// a hypothesis that re-transcribes the committed tail has its repeated
// 1..5-gram prefix dropped.
func (h *hypothesisBuffer) insert(words []asr.Word, offset float64) {
	staged := make([]asr.Word, 0, len(words))
	for _, w := range words {
		w.Start += offset
		w.End += offset
		if w.End <= h.lastCommittedTime {
			continue
		}
		staged = append(staged, w)
	}

	if len(staged) > 0 && len(h.committedInBuffer) > 0 &&
		math.Abs(staged[0].Start-h.lastCommittedTime) < 1 {
		staged = h.dropRepeatedPrefix(staged)
	}

	h.next = staged
}

// dropRepeatedPrefix removes the longest n-gram (n ≤ 5) at the front of
// staged that textually repeats the committed tail.
func (h *hypothesisBuffer) dropRepeatedPrefix(staged []asr.Word) []asr.Word {
	maxN := len(h.committedInBuffer)
	if len(staged) < maxN {
		maxN = len(staged)
	}
	if maxN > 5 {
		maxN = 5
	}
	for n := maxN; n > 0; n-- {
		tail := h.committedInBuffer[len(h.committedInBuffer)-n:]
		equal := true
		for i := 0; i < n; i++ {
			if normalize(tail[i].Text) != normalize(staged[i].Text) {
				equal = false
				break
			}
		}
		if equal {
			return staged[n:]
		}
	}
	return staged
}

// flush returns the newly committed words: the maximum contiguous prefix on
// which the staged hypothesis and the previous tail agree. The committed word
// keeps the newer hypothesis' casing.
func (h *hypothesisBuffer) flush() []asr.Word {
	var committed []asr.Word
	for len(h.next) > 0 && len(h.buffer) > 0 {
		if !wordsMatch(h.next[0], h.buffer[0]) {
			break
		}
		w := h.next[0]
		committed = append(committed, w)
		h.lastCommittedTime = w.End
		h.committedInBuffer = append(h.committedInBuffer, w)
		h.next = h.next[1:]
		h.buffer = h.buffer[1:]
	}
	h.buffer = h.next
	h.next = nil
	return committed
}

// completeTail returns the words still awaiting a second opinion.
func (h *hypothesisBuffer) completeTail() []asr.Word {
	return h.buffer
}

// flushAll unconditionally commits the remaining tail. End-of-stream only.
func (h *hypothesisBuffer) flushAll() []asr.Word {
	out := h.buffer
	for _, w := range out {
		h.lastCommittedTime = w.End
	}
	h.committedInBuffer = append(h.committedInBuffer, out...)
	h.buffer = nil
	return out
}

// trimTo drops state that a buffer trim at time t has scrolled past.
func (h *hypothesisBuffer) trimTo(t float64) {
	h.committedInBuffer = dropEndedBy(h.committedInBuffer, t)
	h.buffer = dropEndedBy(h.buffer, t)
}

func dropEndedBy(words []asr.Word, t float64) []asr.Word {
	i := 0
	for i < len(words) && words[i].End <= t {
		i++
	}
	return words[i:]
}

func wordsMatch(a, b asr.Word) bool {
	if math.Abs(a.Start-b.Start) > matchTolerance {
		return false
	}
	na := normalize(a.Text)
	if na == "" {
		return false
	}
	return na == normalize(b.Text)
}

// normalize lowercases and strips surrounding punctuation and whitespace so
// " Hello," and "hello" count as the same token.
func normalize(text string) string {
	trimmed := strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return strings.ToLower(trimmed)
}
