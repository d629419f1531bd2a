package audio

// Resampler converts a mono float stream from a source sample rate to a
// destination rate by linear interpolation. The fractional read position is
// carried across calls to Process, so consecutive buffers join without a
// discontinuity at the seam.
//
// Create one per stream; not safe for concurrent use.
type Resampler struct {
	ratio float64 // source samples consumed per output sample

	// pos is the next source read position, relative to the start of the
	// buffer passed to the current Process call. After each call it is
	// rebased against the next buffer and may be negative (inside the
	// previous buffer's final sample).
	pos    float64
	prev   float32 // last sample of the previous buffer
	primed bool
}

// NewResampler creates a Resampler from srcRate to dstRate. Rates must be
// positive.
func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{ratio: float64(srcRate) / float64(dstRate)}
}

// Process resamples one buffer and returns the output samples. The returned
// slice is freshly allocated; in may be reused by the caller afterwards.
// An empty input yields an empty output.
func (r *Resampler) Process(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}
	if !r.primed {
		r.primed = true
		r.prev = in[0]
	}

	out := make([]float32, 0, int(float64(len(in))/r.ratio)+2)
	for r.pos < float64(len(in)-1) {
		idx := int(r.pos)
		frac := r.pos - float64(idx)
		var s0, s1 float32
		if r.pos < 0 {
			// Between the previous buffer's last sample and in[0].
			idx = -1
			frac = r.pos + 1
			s0 = r.prev
			s1 = in[0]
		} else {
			s0 = in[idx]
			s1 = in[idx+1]
		}
		out = append(out, s0+(s1-s0)*float32(frac))
		r.pos += r.ratio
	}

	// Rebase the position against the next buffer. pos lands in
	// (len(in)-1, len(in)-1+ratio]; subtracting len(in) keeps the carry.
	r.pos -= float64(len(in))
	r.prev = in[len(in)-1]
	return out
}

// Reset discards the carried position and seam sample.
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = 0
	r.primed = false
}
