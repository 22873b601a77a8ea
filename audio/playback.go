package audio

import (
	"sync"
	"time"
)

// Clock provides the playback timeline. The zero point is arbitrary;
// only monotonic differences matter.
type Clock interface {
	Now() time.Duration
}

// SystemClock is the wall-clock backed Clock used in production.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock rooted at the current time.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() time.Duration { return time.Since(c.start) }

// Buffer is one decoded chunk of model speech.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Output renders buffers on an audio device. Play starts buf at the
// given clock time and must invoke done asynchronously when the buffer
// finishes on its own. The returned cancel stops the buffer early
// without invoking done.
type Output interface {
	Play(buf *Buffer, at time.Duration, done func()) (cancel func())
}

// Scheduler queues model speech chunks back to back. Chunks arrive
// faster than real time, so each is scheduled at the tail of the
// chunks already queued, never before the current clock time. The
// scheduler tracks every in-flight buffer so that an interruption can
// silence all of them at once.
type Scheduler struct {
	clock Clock
	out   Output

	mu      sync.Mutex
	next    time.Duration
	playing map[int64]func()
	seq     int64

	// onDrained fires when the last tracked buffer ends on its own,
	// meaning the model has stopped producing audible speech.
	onDrained func()
}

// NewScheduler builds a scheduler over the given output and clock.
func NewScheduler(out Output, clock Clock) *Scheduler {
	return &Scheduler{
		clock:   clock,
		out:     out,
		playing: make(map[int64]func()),
	}
}

// SetOnDrained registers the callback fired when playback runs dry.
// Must be set before the first Schedule call.
func (s *Scheduler) SetOnDrained(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrained = fn
}

// Schedule queues buf for gapless playback after everything already
// queued.
func (s *Scheduler) Schedule(buf *Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.next
	if now := s.clock.Now(); now > start {
		start = now
	}

	id := s.seq
	s.seq++

	// Placeholder so a racing done sees the id as tracked.
	s.playing[id] = func() {}
	cancel := s.out.Play(buf, start, func() { s.finish(id) })
	if _, ok := s.playing[id]; ok {
		s.playing[id] = cancel
	}

	s.next = start + buf.Duration()
}

func (s *Scheduler) finish(id int64) {
	s.mu.Lock()
	if _, ok := s.playing[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.playing, id)
	drained := len(s.playing) == 0
	fn := s.onDrained
	s.mu.Unlock()

	if drained && fn != nil {
		fn()
	}
}

// Interrupt stops every tracked buffer and resets the timeline so the
// next chunk plays immediately. With nothing queued it is a no-op.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	if len(s.playing) == 0 {
		s.mu.Unlock()
		return
	}
	cancels := make([]func(), 0, len(s.playing))
	for _, c := range s.playing {
		cancels = append(cancels, c)
	}
	s.playing = make(map[int64]func())
	s.next = 0
	s.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// Active reports whether any buffer is still queued or playing.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.playing) > 0
}

// Watermark returns the clock time at which the next chunk would
// start, relative to the scheduler's clock.
func (s *Scheduler) Watermark() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
