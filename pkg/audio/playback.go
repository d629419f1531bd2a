package audio

import (
	"context"
	"math"
	"sync"
)

// Sink consumes float samples for playback. Write blocks until the samples
// have been handed to the audio device (or its buffer).
type Sink interface {
	Write(samples []float32) error
}

// maxFadeSamples caps the per-chunk fade length used to suppress clicks at
// chunk boundaries.
const maxFadeSamples = 50

// silenceDurationMs is the flush played after a barge-in so the output
// buffer drains to silence.
const silenceDurationMs = 100

// Player drains a FIFO of PCM16 down-frames into a Sink, one chunk at a
// time. Each chunk gets a short sine fade-in and fade-out before playback.
// Interrupt implements barge-in: pending chunks are discarded; the chunk
// already handed to the sink runs to its natural end.
//
// All exported methods are safe for concurrent use.
type Player struct {
	sink Sink

	mu     sync.Mutex
	queue  [][]byte
	wake   chan struct{}
	closed bool
}

// NewPlayer creates a Player writing to sink. Call Run to start the playback
// worker.
func NewPlayer(sink Sink) *Player {
	return &Player{
		sink: sink,
		wake: make(chan struct{}, 1),
	}
}

// Enqueue appends one PCM16 down-frame to the playback queue. Frames
// enqueued after Close are dropped.
func (p *Player) Enqueue(frame []byte) {
	if len(frame) == 0 {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, frame)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Interrupt discards all pending frames and schedules a short silence flush.
// The chunk currently playing is not cut off.
func (p *Player) Interrupt() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	n := WireSampleRate * silenceDurationMs / 1000
	p.queue = [][]byte{silenceFrame(n)}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pending reports the number of frames waiting in the queue.
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops the playback worker after the current chunk. Idempotent.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.queue = nil
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run is the playback worker loop. It returns when ctx is cancelled or Close
// is called. Run must be called at most once.
func (p *Player) Run(ctx context.Context) error {
	for {
		frame, ok := p.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.wake:
				p.mu.Lock()
				closed := p.closed
				p.mu.Unlock()
				if closed {
					return nil
				}
				continue
			}
		}

		samples := PCM16ToFloat32(frame)
		applyFades(samples)
		if err := p.sink.Write(samples); err != nil {
			return err
		}
	}
}

// pop removes the head of the queue. ok is false when the queue is empty or
// the player is closed.
func (p *Player) pop() (frame []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.queue) == 0 {
		return nil, false
	}
	frame = p.queue[0]
	p.queue = p.queue[1:]
	return frame, true
}

// applyFades applies an in-place sine fade-in and fade-out of
// min(maxFadeSamples, 5% of the chunk) samples.
func applyFades(samples []float32) {
	n := len(samples) / 20
	if n > maxFadeSamples {
		n = maxFadeSamples
	}
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		gain := float32(math.Sin(math.Pi / 2 * float64(i) / float64(n)))
		samples[i] *= gain
		samples[len(samples)-1-i] *= gain
	}
}

// silenceFrame returns n samples of PCM16 silence.
func silenceFrame(n int) []byte {
	return make([]byte, n*2)
}
