package audio

// DefaultFrameSamples is the target up-frame size: 4800 samples at 24 kHz,
// about 200 ms.
const DefaultFrameSamples = 4800

// Framer accumulates float samples and emits fixed-size PCM16 frames. Partial
// frames stay buffered until enough samples arrive or Flush is called.
//
// Create one per capture stream; not safe for concurrent use.
type Framer struct {
	size int
	buf  []float32
}

// NewFramer creates a Framer emitting frames of the given sample count.
// A non-positive size falls back to DefaultFrameSamples.
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = DefaultFrameSamples
	}
	return &Framer{size: size}
}

// Push appends samples and returns zero or more complete PCM16 frames.
// An empty input produces no frames.
func (f *Framer) Push(samples []float32) [][]byte {
	if len(samples) == 0 {
		return nil
	}
	f.buf = append(f.buf, samples...)

	var frames [][]byte
	for len(f.buf) >= f.size {
		frames = append(frames, Float32ToPCM16(f.buf[:f.size]))
		f.buf = f.buf[f.size:]
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return frames
}

// Flush emits the buffered remainder as a final short frame, or nil when
// nothing is buffered.
func (f *Framer) Flush() []byte {
	if len(f.buf) == 0 {
		return nil
	}
	frame := Float32ToPCM16(f.buf)
	f.buf = nil
	return frame
}

// Pending reports the number of buffered samples not yet emitted.
func (f *Framer) Pending() int { return len(f.buf) }
