// Package audio implements the client-side audio pipeline primitives for
// voicedesk: PCM16 encoding, sample-rate conversion, frame accumulation, and
// a playback queue with barge-in support.
//
// The wire format throughout is PCM16 little-endian, mono, 24 kHz. Internally
// samples are carried as float32 in [-1, 1]; conversion to and from PCM16
// happens only at the capture and playback boundaries.
package audio

import (
	"encoding/binary"
	"math"
)

// WireSampleRate is the sample rate of every up-frame and down-frame.
const WireSampleRate = 24000

// Float32ToPCM16 converts float samples in [-1, 1] to little-endian PCM16
// bytes. Samples are scaled by 32768, rounded to nearest, and clamped to the
// int16 range.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat32 converts little-endian PCM16 bytes to float samples in
// [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out
}

// StereoToMonoFloat averages interleaved stereo float samples into mono.
// A trailing unpaired sample is dropped.
func StereoToMonoFloat(samples []float32) []float32 {
	out := make([]float32, len(samples)/2)
	for i := range out {
		out[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return out
}

// RMS returns the root-mean-square amplitude of samples. Returns 0 for an
// empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
