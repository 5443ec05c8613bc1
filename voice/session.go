package voice

import (
	"context"
	"log"
	"sync"
)

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session runs one duplex audio conversation: capture frames go out over
// the transport, model audio comes back and is scheduled for gapless
// playback, and a server interruption silences the assistant.
//
// Lifecycle: Idle → Connecting → Active → Closed. Closed is equivalent
// to Idle for the purpose of allowing a new Start.
type Session struct {
	input     Input
	transport Transport
	sched     *Scheduler

	// OnStateChange, if set, is invoked after every transition.
	OnStateChange func(State)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	sender *Sender
	doneCh chan struct{}
}

// NewSession assembles a session from its three boundaries.
func NewSession(input Input, transport Transport, sink Sink) *Session {
	return &Session{
		input:     input,
		transport: transport,
		sched:     NewScheduler(sink, PlaybackRate),
		state:     StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Scheduler exposes the playback scheduler, mainly for inspection.
func (s *Session) Scheduler() *Scheduler { return s.sched }

// Done is closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneCh
}

// Start acquires the input device, opens the realtime connection and
// begins streaming. Only one Start may be in flight: calls while the
// session is Connecting or Active return ErrAlreadyRunning and open no
// second connection.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateActive {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doneCh = make(chan struct{})
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	// Fresh run: the playback cursor restarts at zero.
	s.sched.Reset()

	if err := s.input.Start(runCtx); err != nil {
		s.close()
		return err
	}

	events, err := s.transport.Connect(runCtx)
	if err != nil {
		s.input.Stop()
		s.close()
		return err
	}

	sender := NewSender(s.transport, func(err error) {
		log.Printf("❌ voice: send failed, tearing down: %v", err)
		s.Stop()
	})
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()

	go s.run(runCtx, events, sender)
	return nil
}

// run drives the state machine off the transport event stream.
func (s *Session) run(ctx context.Context, events <-chan Event, sender *Sender) {
	defer s.close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case EventOpened:
				s.mu.Lock()
				if s.state != StateConnecting {
					s.mu.Unlock()
					continue
				}
				s.setStateLocked(StateActive)
				s.mu.Unlock()
				sender.Drain(ctx)
				go s.pumpCapture(ctx, sender)

			case EventAudio:
				samples, err := DecodeChunk(ev.Audio)
				if err != nil {
					// Malformed chunk: drop it, keep the session alive.
					log.Printf("⚠️ voice: dropping bad audio chunk: %v", err)
					continue
				}
				s.sched.Schedule(samples)

			case EventInterrupted:
				s.sched.Interrupt()

			case EventError:
				log.Printf("❌ voice: transport error: %v", ev.Err)
				return

			case EventClosed:
				return
			}
		}
	}
}

// pumpCapture moves frames from the capture pipeline into the sender for
// as long as the session is active.
func (s *Session) pumpCapture(ctx context.Context, sender *Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-s.input.Frames():
			if !ok {
				return
			}
			sender.Enqueue(ctx, f)
		}
	}
}

// Stop tears the session down: capture halts, the connection closes and
// the state becomes Closed. Idempotent; in-flight sends and scheduling
// are discarded best-effort.
func (s *Session) Stop() {
	s.close()
}

func (s *Session) close() {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	sender := s.sender
	done := s.doneCh
	s.setStateLocked(StateClosed)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sender != nil {
		sender.Close()
	}
	s.input.Stop()
	if err := s.transport.Close(); err != nil {
		log.Printf("⚠️ voice: transport close: %v", err)
	}
	if done != nil {
		close(done)
	}
}

func (s *Session) setStateLocked(st State) {
	s.state = st
	if s.OnStateChange != nil {
		go s.OnStateChange(st)
	}
}
