package audio

import (
	"math"
	"testing"
)

func TestDecodePCM16(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80}
	samples, err := DecodePCM16(pcm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0] != 0 {
		t.Fatalf("expected zero sample, got %v", samples[0])
	}
	if math.Abs(float64(samples[1])-32767.0/32768.0) > 1e-6 {
		t.Fatalf("expected max positive sample, got %v", samples[1])
	}
	if samples[2] != -1 {
		t.Fatalf("expected -1 sample, got %v", samples[2])
	}
}

func TestDecodePCM16Odd(t *testing.T) {
	if _, err := DecodePCM16([]byte{0x01}); err != ErrOddPCM {
		t.Fatalf("expected ErrOddPCM, got %v", err)
	}
}

func TestPCMRoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.999}
	out, err := DecodePCM16(EncodePCM16(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1.0/32768.0 {
			t.Fatalf("sample %d drifted: %v vs %v", i, in[i], out[i])
		}
	}
}

func TestBufferTrim(t *testing.T) {
	b := NewBuffer()
	b.Append(make([]float32, 2*SampleRate))
	if b.Duration() != 2.0 {
		t.Fatalf("expected 2s duration, got %v", b.Duration())
	}

	b.TrimTo(0.5)
	if b.Offset() != 0.5 {
		t.Fatalf("expected offset 0.5, got %v", b.Offset())
	}
	if b.Len() != SampleRate+SampleRate/2 {
		t.Fatalf("expected 1.5s of samples, got %d", b.Len())
	}

	// trimming backwards is a no-op
	b.TrimTo(0.1)
	if b.Offset() != 0.5 {
		t.Fatalf("expected offset unchanged, got %v", b.Offset())
	}

	// trimming past the end empties the buffer
	b.TrimTo(10)
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d samples", b.Len())
	}
	if b.Offset() != 2.0 {
		t.Fatalf("expected offset clamped to end, got %v", b.Offset())
	}
}
