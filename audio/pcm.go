package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Capture format constants.
const (
	SampleRate24kHz     = 24000
	BytesPerSample      = 2
	DefaultFrameSeconds = 0.1

	// MimeTypePCM24k is the mime type realtime providers expect for frames.
	MimeTypePCM24k = "audio/pcm;rate=24000"
)

// StereoToMono keeps the left sample of every interleaved 16-bit stereo
// pair. Trailing bytes that do not form a full pair are ignored.
func StereoToMono(stereo []byte) []byte {
	const pair = 2 * BytesPerSample
	n := len(stereo) / pair
	mono := make([]byte, n*BytesPerSample)
	for i := 0; i < n; i++ {
		copy(mono[i*BytesPerSample:], stereo[i*pair:i*pair+BytesPerSample])
	}
	return mono
}

// Float32ToPCM16 converts normalized float samples to 16-bit little-endian
// PCM, clamping to [-1, 1]. Negative values scale by 0x8000, positive by
// 0x7fff.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		var pcm int16
		if v < 0 {
			pcm = int16(v * 0x8000)
		} else {
			pcm = int16(v * 0x7fff)
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(pcm)) //nolint:gosec // PCM16 bit pattern
	}
	return out
}

// FrameBytes returns the byte length of a frame of the given duration.
func FrameBytes(sampleRate, channels int, seconds float64) int {
	return int(math.Round(float64(sampleRate*BytesPerSample*channels) * seconds))
}

func validateFormat(sampleRate, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels != 1 && channels != 2 {
		return fmt.Errorf("unsupported channel count %d", channels)
	}
	return nil
}
