package vad

// Interval labels a contiguous span of the classified input. Start and End
// are seconds relative to the input's first sample.
type Interval struct {
	Start  float64
	End    float64
	Speech bool
}

// Gate classifies audio into speech and silence intervals. The returned
// intervals are contiguous and cover the input exactly. The gate is advisory:
// the engine only uses it to pick trim points, and treats a failed or absent
// gate as all-speech.
type Gate interface {
	Classify(samples []float32) ([]Interval, error)
}
