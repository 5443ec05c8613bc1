package voice

import (
	"context"
	"sync"
)

// BlockSize is the number of samples per capture frame.
const BlockSize = 4096

// Frame is one fixed-size block of captured 16-bit PCM audio.
type Frame struct {
	Samples []int16
}

// Input supplies capture frames to a session. Start may fail with
// ErrPermissionDenied when the underlying device cannot be acquired.
type Input interface {
	Start(ctx context.Context) error
	Frames() <-chan Frame
	Stop()
}

// Pipeline frames a continuous sample stream into fixed-size blocks.
// Producers push float or raw PCM samples from the device callback or
// the network; completed blocks are handed off on a buffered channel so
// the producer never blocks on the consumer.
type Pipeline struct {
	mu      sync.Mutex
	pending []int16
	frames  chan Frame
	closed  bool
}

// NewPipeline creates a capture pipeline. queueDepth bounds how many
// completed frames may be in flight before new audio is dropped.
func NewPipeline(queueDepth int) *Pipeline {
	if queueDepth <= 0 {
		queueDepth = 16
	}
	return &Pipeline{
		pending: make([]int16, 0, BlockSize),
		frames:  make(chan Frame, queueDepth),
	}
}

// Start satisfies Input. The bare pipeline has no device to acquire;
// device-backed inputs wrap it and acquire hardware here. Starting a
// stopped pipeline begins a fresh frame stream.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.closed = false
		p.pending = make([]int16, 0, BlockSize)
		p.frames = make(chan Frame, cap(p.frames))
	}
	return nil
}

// Frames returns the stream of completed capture frames. The channel is
// closed by Stop.
func (p *Pipeline) Frames() <-chan Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// PushFloat32 ingests normalized samples in [-1.0, 1.0].
func (p *Pipeline) PushFloat32(samples []float32) {
	p.push(Float32ToPCM(samples))
}

// PushPCM ingests raw little-endian 16-bit PCM bytes.
func (p *Pipeline) PushPCM(data []byte) {
	p.push(BytesToPCM(data))
}

func (p *Pipeline) push(samples []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.pending = append(p.pending, samples...)
	for len(p.pending) >= BlockSize {
		block := make([]int16, BlockSize)
		copy(block, p.pending[:BlockSize])
		p.pending = p.pending[BlockSize:]

		select {
		case p.frames <- Frame{Samples: block}:
		default:
			// Consumer stalled; drop the oldest queued frame to keep
			// latency bounded rather than backing up the device callback.
			select {
			case <-p.frames:
			default:
			}
			select {
			case p.frames <- Frame{Samples: block}:
			default:
			}
		}
	}
}

// Stop halts framing and closes the frame channel. Any partial block is
// discarded. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.pending = nil
	close(p.frames)
}
