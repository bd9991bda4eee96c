package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWav encodes float32 mono samples as a 16-bit PCM WAV file. Backends
// that hand audio to an external process or API go through this.
func WriteWav(file *os.File, samples []float32) error {
	buffer := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: SampleRate}}
	data := make([]int, len(samples))
	for i, s := range samples {
		v := int(s * 32768.0)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		data[i] = v
	}
	buffer.Data = data

	enc := wav.NewEncoder(file, SampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// ReadWav loads a 16 kHz mono WAV file into normalized float32 samples.
func ReadWav(path string) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate != SampleRate || buf.Format.NumChannels != 1 {
		return nil, fmt.Errorf("wav must be %d Hz mono", SampleRate)
	}
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// TempWav writes samples to a temporary WAV file and returns its path.
// The caller removes the file.
func TempWav(samples []float32) (string, error) {
	file, err := os.CreateTemp(os.TempDir(), "loqa_stt_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer file.Close()

	if err := WriteWav(file, samples); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}
