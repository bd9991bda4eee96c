package audio

import (
	"encoding/binary"
	"errors"
)

// SampleRate is the engine's working sample rate. All transports deliver
// 16-bit little-endian mono PCM at this rate.
const SampleRate = 16000

// ErrOddPCM is returned when a PCM payload does not align to whole samples.
var ErrOddPCM = errors.New("pcm payload not aligned to 16-bit samples")

// DecodePCM16 converts little-endian 16-bit signed PCM to normalized
// float32 samples in [-1, 1).
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddPCM
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}

// EncodePCM16 converts float32 samples back to little-endian 16-bit PCM,
// clipping out-of-range values. Used by tests and the WAV writer.
func EncodePCM16(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768.0)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return pcm
}
