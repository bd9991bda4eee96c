package vad

import (
	"math"
	"testing"

	"github.com/loqalabs/loqa-stt/internal/audio"
	"github.com/loqalabs/loqa-stt/internal/config"
)

func newGate() Gate {
	return NewEnergyGate(config.VADConfig{
		Enabled:      true,
		MinSilenceMS: 500,
		Threshold:    0.01,
		FrameMS:      30,
	})
}

func tone(seconds float64, amplitude float64) []float32 {
	n := int(seconds * audio.SampleRate)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*440*float64(i)/audio.SampleRate))
	}
	return out
}

func TestClassifyCoversInput(t *testing.T) {
	samples := append(tone(1.0, 0.3), tone(1.0, 0.0)...)
	intervals, err := newGate().Classify(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(intervals) == 0 {
		t.Fatal("expected intervals")
	}
	if intervals[0].Start != 0 {
		t.Fatalf("expected coverage from 0, got %v", intervals[0].Start)
	}
	last := intervals[len(intervals)-1]
	want := float64(len(samples)) / audio.SampleRate
	if math.Abs(last.End-want) > 1e-9 {
		t.Fatalf("expected coverage to %v, got %v", want, last.End)
	}
	for i := 1; i < len(intervals); i++ {
		if intervals[i].Start != intervals[i-1].End {
			t.Fatalf("gap between intervals %d and %d", i-1, i)
		}
		if intervals[i].Speech == intervals[i-1].Speech {
			t.Fatalf("adjacent intervals %d and %d share kind", i-1, i)
		}
	}
}

func TestClassifySpeechThenSilence(t *testing.T) {
	samples := append(tone(1.0, 0.3), tone(1.0, 0.0)...)
	intervals, err := newGate().Classify(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %d: %+v", len(intervals), intervals)
	}
	if !intervals[0].Speech || intervals[1].Speech {
		t.Fatalf("expected speech then silence, got %+v", intervals)
	}
	if math.Abs(intervals[0].End-1.0) > 0.05 {
		t.Fatalf("boundary far from 1.0s: %v", intervals[0].End)
	}
}

func TestShortSilenceMergedIntoSpeech(t *testing.T) {
	// 300ms pause between two utterances is below min_silence and must not split them
	samples := tone(1.0, 0.3)
	samples = append(samples, tone(0.3, 0.0)...)
	samples = append(samples, tone(1.0, 0.3)...)

	intervals, err := newGate().Classify(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(intervals) != 1 || !intervals[0].Speech {
		t.Fatalf("expected one merged speech interval, got %+v", intervals)
	}
}

func TestLongSilenceKept(t *testing.T) {
	samples := tone(0.5, 0.3)
	samples = append(samples, tone(0.8, 0.0)...)
	samples = append(samples, tone(0.5, 0.3)...)

	intervals, err := newGate().Classify(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(intervals) != 3 {
		t.Fatalf("expected speech/silence/speech, got %+v", intervals)
	}
	if intervals[1].Speech {
		t.Fatalf("expected middle silence, got %+v", intervals[1])
	}
	if d := intervals[1].End - intervals[1].Start; d < 0.5 {
		t.Fatalf("expected silence >= 0.5s, got %v", d)
	}
}

func TestClassifyEmpty(t *testing.T) {
	intervals, err := newGate().Classify(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intervals != nil {
		t.Fatalf("expected nil intervals, got %+v", intervals)
	}
}
