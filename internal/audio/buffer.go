package audio

// Buffer holds the live audio window of one session. Sample index 0
// corresponds to absolute session time Offset(); trimming drops leading
// samples and advances the offset atomically so the mapping
// absolute_time(i) = offset + i/SampleRate always holds.
type Buffer struct {
	samples []float32
	offset  float64 // session time of samples[0], seconds
}

// NewBuffer returns an empty buffer starting at session time zero.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds samples at the end of the buffer.
func (b *Buffer) Append(samples []float32) {
	b.samples = append(b.samples, samples...)
}

// Samples exposes the current window. Callers must not retain the slice
// across a TrimTo.
func (b *Buffer) Samples() []float32 {
	return b.samples
}

// Offset returns the session time of sample 0 in seconds.
func (b *Buffer) Offset() float64 {
	return b.offset
}

// Duration returns the buffered audio length in seconds.
func (b *Buffer) Duration() float64 {
	return float64(len(b.samples)) / SampleRate
}

// End returns the session time just past the last buffered sample.
func (b *Buffer) End() float64 {
	return b.offset + b.Duration()
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// TrimTo drops every sample with absolute time before t and advances the
// offset to t. Times before the current offset or past the buffer end are
// clamped.
func (b *Buffer) TrimTo(t float64) {
	if t <= b.offset {
		return
	}
	cut := int((t - b.offset) * SampleRate)
	if cut >= len(b.samples) {
		b.offset = b.End()
		b.samples = b.samples[:0]
		return
	}
	b.samples = b.samples[cut:]
	b.offset = t
}

// Reset discards all samples and moves the offset to t. Used when a session
// restarts its window at a voice boundary.
func (b *Buffer) Reset(t float64) {
	b.samples = b.samples[:0]
	b.offset = t
}
