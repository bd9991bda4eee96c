package engine

import (
	"testing"

	"github.com/loqalabs/loqa-stt/internal/asr"
)

func w(start, end float64, text string) asr.Word {
	return asr.Word{Start: start, End: end, Text: text}
}

func TestFlushCommitsAgreeingPrefix(t *testing.T) {
	h := newHypothesisBuffer()

	h.insert([]asr.Word{w(0, 0.5, " hello"), w(0.5, 1.0, " world")}, 0)
	if got := h.flush(); len(got) != 0 {
		t.Fatalf("first hypothesis must not commit, got %+v", got)
	}

	h.insert([]asr.Word{w(0, 0.5, " hello"), w(0.5, 1.0, " world"), w(1.0, 1.4, " again")}, 0)
	got := h.flush()
	if len(got) != 2 {
		t.Fatalf("expected 2 committed words, got %+v", got)
	}
	if got[0].Text != " hello" || got[1].Text != " world" {
		t.Fatalf("unexpected committed words: %+v", got)
	}
	if h.lastCommittedTime != 1.0 {
		t.Fatalf("expected last committed time 1.0, got %v", h.lastCommittedTime)
	}
	if tail := h.completeTail(); len(tail) != 1 || tail[0].Text != " again" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}

func TestFlushStopsAtFirstDisagreement(t *testing.T) {
	h := newHypothesisBuffer()
	h.insert([]asr.Word{w(0, 0.5, " one"), w(0.5, 1.0, " two"), w(1.0, 1.5, " three")}, 0)
	h.flush()
	h.insert([]asr.Word{w(0, 0.5, " one"), w(0.5, 1.0, " too"), w(1.0, 1.5, " three")}, 0)
	got := h.flush()
	if len(got) != 1 || got[0].Text != " one" {
		t.Fatalf("expected only the agreeing prefix, got %+v", got)
	}
}

func TestMatchIsCaseAndPunctuationInsensitive(t *testing.T) {
	h := newHypothesisBuffer()
	h.insert([]asr.Word{w(0, 0.5, " hello,")}, 0)
	h.flush()
	h.insert([]asr.Word{w(0.1, 0.5, " Hello")}, 0)
	got := h.flush()
	if len(got) != 1 {
		t.Fatalf("expected normalized match, got %+v", got)
	}
	// the newer hypothesis' casing wins
	if got[0].Text != " Hello" {
		t.Fatalf("expected newer casing, got %q", got[0].Text)
	}
}

func TestMatchRejectsShiftedOccurrence(t *testing.T) {
	h := newHypothesisBuffer()
	h.insert([]asr.Word{w(0, 0.5, " yes")}, 0)
	h.flush()
	// same normalized text but 0.8s away: a different occurrence
	h.insert([]asr.Word{w(0.8, 1.3, " yes")}, 0)
	if got := h.flush(); len(got) != 0 {
		t.Fatalf("expected no match across >0.5s shift, got %+v", got)
	}
}

func TestInsertDiscardsCommittedPast(t *testing.T) {
	h := newHypothesisBuffer()
	h.insert([]asr.Word{w(0, 0.5, " a"), w(0.5, 1.0, " b")}, 0)
	h.flush()
	h.insert([]asr.Word{w(0, 0.5, " a"), w(0.5, 1.0, " b")}, 0)
	h.flush() // commits a, b

	// identical hypothesis again: everything ends inside the committed past
	h.insert([]asr.Word{w(0, 0.5, " a"), w(0.5, 1.0, " b")}, 0)
	if got := h.flush(); len(got) != 0 {
		t.Fatalf("expected no duplicate commits, got %+v", got)
	}
}

func TestInsertDropsRepeatedNgramPrefix(t *testing.T) {
	h := newHypothesisBuffer()
	h.insert([]asr.Word{w(0, 0.5, " good"), w(0.5, 1.0, " morning")}, 0)
	h.flush()
	h.insert([]asr.Word{w(0, 0.5, " good"), w(0.5, 1.0, " morning")}, 0)
	h.flush()

	// next window starts at the committed boundary and re-emits the tail
	h.insert([]asr.Word{w(0.55, 1.05, " morning"), w(1.05, 1.5, " everyone")}, 0)
	if tail := h.completeTail(); len(tail) != 1 || tail[0].Text != " everyone" {
		t.Fatalf("expected repeated prefix dropped, tail %+v", tail)
	}
}

func TestOffsetMapping(t *testing.T) {
	h := newHypothesisBuffer()
	h.insert([]asr.Word{w(1, 1.5, " shifted")}, 10)
	tailBefore := h.flush()
	if len(tailBefore) != 0 {
		t.Fatalf("nothing should commit on first insert")
	}
	tail := h.completeTail()
	if len(tail) != 1 || tail[0].Start != 11 || tail[0].End != 11.5 {
		t.Fatalf("expected absolute-time mapping, got %+v", tail)
	}
}

func TestFlushAll(t *testing.T) {
	h := newHypothesisBuffer()
	h.insert([]asr.Word{w(0, 0.5, " tail"), w(0.5, 0.9, " words")}, 0)
	h.flush()
	got := h.flushAll()
	if len(got) != 2 {
		t.Fatalf("expected full tail flush, got %+v", got)
	}
	if h.lastCommittedTime != 0.9 {
		t.Fatalf("expected last committed time updated, got %v", h.lastCommittedTime)
	}
	if len(h.completeTail()) != 0 {
		t.Fatal("expected empty tail after flushAll")
	}
}

func TestTrimToDropsScrolledWords(t *testing.T) {
	h := newHypothesisBuffer()
	h.insert([]asr.Word{w(0, 0.5, " a"), w(0.5, 1.0, " b"), w(1.0, 1.5, " c")}, 0)
	h.flush()
	h.trimTo(1.0)
	tail := h.completeTail()
	if len(tail) != 1 || tail[0].Text != " c" {
		t.Fatalf("expected only words past the trim point, got %+v", tail)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		" Hello,": "hello",
		"WORLD!":  "world",
		"  ...  ": "",
		" it's":   "it's",
		" naïve.": "naïve",
	}
	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Fatalf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
