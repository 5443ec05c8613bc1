package voice

import "sync"

// Sink is the audio output boundary. Now reports the output clock in
// seconds; Play schedules a buffer of normalized samples to begin at an
// absolute clock time; Reset halts everything immediately.
type Sink interface {
	Now() float64
	Play(samples []float32, startAt float64)
	Reset()
}

type scheduled struct {
	startAt  float64
	duration float64
}

// Scheduler assigns gapless back-to-back start times to inbound audio
// chunks and tracks which buffers are still live so an interruption can
// silence all of them at once.
//
// Chunks are assumed to arrive in playback order; no resequencing is
// performed.
type Scheduler struct {
	sink Sink
	rate float64

	mu        sync.Mutex
	nextStart float64
	active    []scheduled
}

// NewScheduler creates a scheduler for samples at the given rate.
func NewScheduler(sink Sink, sampleRate int) *Scheduler {
	return &Scheduler{sink: sink, rate: float64(sampleRate)}
}

// Schedule queues one decoded chunk. The start time is the end of the
// previously scheduled chunk, or the current clock time if playback has
// fallen behind. Returns the assigned start time.
func (s *Scheduler) Schedule(samples []float32) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.sink.Now()
	s.pruneLocked(now)

	startAt := s.nextStart
	if now > startAt {
		startAt = now
	}
	duration := float64(len(samples)) / s.rate

	s.sink.Play(samples, startAt)
	s.active = append(s.active, scheduled{startAt: startAt, duration: duration})
	s.nextStart = startAt + duration
	return startAt
}

// Interrupt implements barge-in: every live buffer is stopped, the
// active set cleared, and the cursor reset so the next chunk starts at
// the current clock time.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sink.Reset()
	s.active = s.active[:0]
	s.nextStart = 0
}

// Reset clears the cursor and active set without touching the sink.
// Used when a fresh session run begins.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = s.active[:0]
	s.nextStart = 0
}

// NextStart returns the current cursor value in seconds.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// ActiveCount returns how many scheduled buffers have not yet finished.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.sink.Now())
	return len(s.active)
}

func (s *Scheduler) pruneLocked(now float64) {
	kept := s.active[:0]
	for _, b := range s.active {
		if b.startAt+b.duration > now {
			kept = append(kept, b)
		}
	}
	s.active = kept
}
