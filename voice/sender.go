package voice

import (
	"context"
	"sync"
)

const senderQueueDepth = 64

// Sender encodes capture frames and transmits them over the session
// transport. A bounded FIFO queue decouples the capture timer from the
// network; a single drain goroutine preserves send order.
type Sender struct {
	transport Transport
	queue     chan Frame
	onError   func(error)

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewSender creates a sender for the given transport. onError is invoked
// once if a send fails; send failures are fatal to the session.
func NewSender(transport Transport, onError func(error)) *Sender {
	return &Sender{
		transport: transport,
		queue:     make(chan Frame, senderQueueDepth),
		onError:   onError,
		done:      make(chan struct{}),
	}
}

// Enqueue queues one frame for transmission. Blocks only when the queue
// is full, which bounds memory during connection stalls while keeping
// frames in capture order.
func (s *Sender) Enqueue(ctx context.Context, f Frame) {
	select {
	case s.queue <- f:
	case <-ctx.Done():
	case <-s.done:
	}
}

// Drain starts the single consumer goroutine. Frames queued before the
// transport opened are sent first, in order.
func (s *Sender) Drain(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case f := <-s.queue:
				if err := s.transport.SendAudio(EncodeFrame(f.Samples), CaptureMIME); err != nil {
					if s.onError != nil {
						s.onError(err)
					}
					return
				}
			}
		}
	}()
}

// Close stops the drain goroutine. Queued frames are discarded.
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
