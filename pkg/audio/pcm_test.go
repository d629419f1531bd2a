package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/voicedesk/voicedesk/pkg/audio"
)

func TestFloat32ToPCM16_Clamping(t *testing.T) {
	pcm := audio.Float32ToPCM16([]float32{1.5, -1.5, 1.0, -1.0})
	got := []int16{
		int16(binary.LittleEndian.Uint16(pcm[0:])),
		int16(binary.LittleEndian.Uint16(pcm[2:])),
		int16(binary.LittleEndian.Uint16(pcm[4:])),
		int16(binary.LittleEndian.Uint16(pcm[6:])),
	}
	want := []int16{32767, -32768, 32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFloat32ToPCM16_Rounding(t *testing.T) {
	// 0.5/32768 should round to 1, not truncate to 0.
	pcm := audio.Float32ToPCM16([]float32{0.6 / 32768})
	got := int16(binary.LittleEndian.Uint16(pcm))
	if got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}

func TestPCM16RoundTrip_Within1LSB(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.9999, -0.9999, 0.0001, -0.0001}
	once := audio.PCM16ToFloat32(audio.Float32ToPCM16(in))
	twice := audio.PCM16ToFloat32(audio.Float32ToPCM16(once))

	lsb := 1.0 / 32768
	for i := range in {
		if d := math.Abs(float64(once[i] - in[i])); d > lsb {
			t.Errorf("sample %d: first pass error %g exceeds 1 LSB", i, d)
		}
		// Once quantised, a second pass must be exact.
		if once[i] != twice[i] {
			t.Errorf("sample %d: not idempotent: %g vs %g", i, once[i], twice[i])
		}
	}
}

func TestStereoToMonoFloat(t *testing.T) {
	got := audio.StereoToMonoFloat([]float32{0.2, 0.4, -0.5, 0.5, 1, 1})
	want := []float32{0.3, 0, 1}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %g, want %g", i, got[i], want[i])
		}
	}
}
