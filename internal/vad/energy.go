package vad

import (
	"math"

	"github.com/loqalabs/loqa-stt/internal/audio"
	"github.com/loqalabs/loqa-stt/internal/config"
)

// energyGate is a frame-RMS gate. It is deliberately simple: trim decisions
// only need silences long enough to be safe cut points, not phonetic accuracy.
type energyGate struct {
	frameLen   int
	threshold  float64
	minSilence float64
}

// NewEnergyGate builds a Gate from config. Frame length and threshold come
// from VADConfig; silences shorter than min_silence_ms are merged into the
// surrounding speech.
func NewEnergyGate(cfg config.VADConfig) Gate {
	frame := cfg.FrameMS * audio.SampleRate / 1000
	if frame <= 0 {
		frame = 480
	}
	return &energyGate{
		frameLen:   frame,
		threshold:  cfg.Threshold,
		minSilence: float64(cfg.MinSilenceMS) / 1000.0,
	}
}

func (g *energyGate) Classify(samples []float32) ([]Interval, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	var raw []Interval
	for pos := 0; pos < len(samples); pos += g.frameLen {
		end := pos + g.frameLen
		if end > len(samples) {
			end = len(samples)
		}
		speech := rms(samples[pos:end]) >= g.threshold
		beg := float64(pos) / audio.SampleRate
		fin := float64(end) / audio.SampleRate
		if n := len(raw); n > 0 && raw[n-1].Speech == speech {
			raw[n-1].End = fin
		} else {
			raw = append(raw, Interval{Start: beg, End: fin, Speech: speech})
		}
	}

	return mergeShortSilence(raw, g.minSilence), nil
}

// mergeShortSilence folds silences shorter than minSilence into adjacent
// speech so the engine never cuts inside a breath pause.
func mergeShortSilence(in []Interval, minSilence float64) []Interval {
	var out []Interval
	for _, iv := range in {
		if !iv.Speech && iv.End-iv.Start < minSilence && len(out) > 0 && out[len(out)-1].Speech {
			iv.Speech = true
		}
		if n := len(out); n > 0 && out[n-1].Speech == iv.Speech {
			out[n-1].End = iv.End
		} else {
			out = append(out, iv)
		}
	}
	// a leading short silence with speech after it is speech too
	if len(out) >= 2 && !out[0].Speech && out[0].End-out[0].Start < minSilence && out[1].Speech {
		out[1].Start = out[0].Start
		out = out[1:]
	}
	return out
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
