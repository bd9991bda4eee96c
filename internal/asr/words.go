package asr

import "strings"

// Segment is a sentence-level backend result before word splitting.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// SplitSegment turns a segment-level result into word-level entries with
// linearly interpolated timings. Backends that only report segment timings
// go through this so the engine always sees a uniform word-level shape.
// Each word keeps a leading space, whisper-token style.
func SplitSegment(seg Segment) []Word {
	fields := strings.Fields(seg.Text)
	if len(fields) == 0 {
		return nil
	}

	total := 0
	for _, f := range fields {
		total += len([]rune(f))
	}

	duration := seg.End - seg.Start
	if duration < 0 {
		duration = 0
	}

	words := make([]Word, 0, len(fields))
	consumed := 0
	for _, f := range fields {
		beg := seg.Start + duration*float64(consumed)/float64(total)
		consumed += len([]rune(f))
		end := seg.Start + duration*float64(consumed)/float64(total)
		words = append(words, Word{Start: beg, End: end, Text: " " + f})
	}
	return words
}

// SplitSegments applies SplitSegment across a whole result.
func SplitSegments(segs []Segment) []Word {
	var words []Word
	for _, seg := range segs {
		words = append(words, SplitSegment(seg)...)
	}
	return words
}

// TruncatePrompt keeps at most max characters from the end of prompt,
// preferring to cut at a whitespace boundary so the backend never sees half
// a word.
func TruncatePrompt(prompt string, max int) string {
	if max <= 0 || len(prompt) <= max {
		return prompt
	}
	cut := prompt[len(prompt)-max:]
	if idx := strings.IndexAny(cut, " \t\n"); idx >= 0 && idx < len(cut)-1 {
		cut = cut[idx+1:]
	}
	return cut
}
