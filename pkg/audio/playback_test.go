package audio_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voicedesk/voicedesk/pkg/audio"
)

// recordSink collects every chunk written to it.
type recordSink struct {
	mu     sync.Mutex
	chunks [][]float32
}

func (s *recordSink) Write(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	s.chunks = append(s.chunks, cp)
	return nil
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func (s *recordSink) chunk(i int) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks[i]
}

// constFrame builds a PCM16 frame of n samples all at the given float value.
func constFrame(n int, v float32) []byte {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = v
	}
	return audio.Float32ToPCM16(samples)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPlayer_PlaysQueuedFramesInOrder(t *testing.T) {
	sink := &recordSink{}
	p := audio.NewPlayer(sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); _ = p.Run(ctx) }()

	p.Enqueue(constFrame(2400, 0.5))
	p.Enqueue(constFrame(1200, -0.5))

	waitFor(t, func() bool { return sink.count() == 2 })
	if got := len(sink.chunk(0)); got != 2400 {
		t.Errorf("first chunk %d samples, want 2400", got)
	}
	if got := len(sink.chunk(1)); got != 1200 {
		t.Errorf("second chunk %d samples, want 1200", got)
	}

	p.Close()
	<-done
}

func TestPlayer_FadesSuppressEdges(t *testing.T) {
	sink := &recordSink{}
	p := audio.NewPlayer(sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	p.Enqueue(constFrame(2400, 1.0))
	waitFor(t, func() bool { return sink.count() == 1 })
	p.Close()

	chunk := sink.chunk(0)
	// First and last samples are fully faded; mid-chunk is untouched.
	if chunk[0] != 0 {
		t.Errorf("first sample %g, want 0", chunk[0])
	}
	if last := chunk[len(chunk)-1]; last > 0.05 {
		t.Errorf("last sample %g, want near 0", last)
	}
	if mid := chunk[len(chunk)/2]; mid < 0.99 {
		t.Errorf("mid sample %g, want ~1", mid)
	}
}

func TestPlayer_InterruptClearsPendingAndFlushesSilence(t *testing.T) {
	sink := &recordSink{}
	p := audio.NewPlayer(sink)

	// Queue ten frames before the worker starts so they are all pending.
	for i := 0; i < 10; i++ {
		p.Enqueue(constFrame(2400, 0.5))
	}
	if p.Pending() != 10 {
		t.Fatalf("pending %d, want 10", p.Pending())
	}

	p.Interrupt()
	if p.Pending() != 1 {
		t.Fatalf("pending after interrupt %d, want 1 (silence flush)", p.Pending())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	waitFor(t, func() bool { return sink.count() == 1 })
	p.Close()

	flush := sink.chunk(0)
	if len(flush) > audio.WireSampleRate/10 {
		t.Errorf("silence flush %d samples, want at most 100ms (%d)", len(flush), audio.WireSampleRate/10)
	}
	for i, s := range flush {
		if s != 0 {
			t.Fatalf("flush sample %d is %g, want silence", i, s)
		}
	}
}

func TestPlayer_EnqueueAfterInterruptIsDropped(t *testing.T) {
	// A down-frame arriving after barge-in lands in the already-cleared
	// queue behind the silence flush; a second interrupt clears it again.
	p := audio.NewPlayer(&recordSink{})
	p.Enqueue(constFrame(2400, 0.5))
	p.Interrupt()
	p.Enqueue(constFrame(2400, 0.5))
	p.Interrupt()
	if p.Pending() != 1 {
		t.Fatalf("pending %d, want 1", p.Pending())
	}
	p.Close()
}
