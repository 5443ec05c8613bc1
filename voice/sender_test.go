package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestSenderPreservesOrder(t *testing.T) {
	transport := newFakeTransport()
	sender := NewSender(transport, nil)
	defer sender.Close()

	ctx := context.Background()

	// Queue frames before the drain starts: the connection may still be
	// establishing while capture runs.
	var want []string
	for i := 0; i < 10; i++ {
		samples := make([]int16, 4)
		samples[0] = int16(i)
		sender.Enqueue(ctx, Frame{Samples: samples})
		want = append(want, EncodeFrame(samples))
	}

	sender.Drain(ctx)
	waitFor(t, func() bool { return transport.sentCount() == 10 }, "expected 10 sends")

	transport.mu.Lock()
	defer transport.mu.Unlock()
	for i, f := range transport.sent {
		if f.payload != want[i] {
			t.Fatalf("frame %d out of order", i)
		}
		if f.mime != CaptureMIME {
			t.Errorf("frame %d: expected %q, got %q", i, CaptureMIME, f.mime)
		}
	}
}

func TestSenderFailureIsFatal(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErr = errors.New("broken pipe")

	var mu sync.Mutex
	var got error
	sender := NewSender(transport, func(err error) {
		mu.Lock()
		got = err
		mu.Unlock()
	})
	defer sender.Close()

	ctx := context.Background()
	sender.Drain(ctx)
	sender.Enqueue(ctx, Frame{Samples: make([]int16, 4)})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	}, "send failure never surfaced")
}

func TestSenderCloseUnblocksEnqueue(t *testing.T) {
	transport := newFakeTransport()
	sender := NewSender(transport, nil)

	ctx := context.Background()
	// Fill the queue without a drain goroutine.
	for i := 0; i < senderQueueDepth; i++ {
		sender.Enqueue(ctx, Frame{Samples: make([]int16, 1)})
	}

	done := make(chan struct{})
	go func() {
		sender.Enqueue(ctx, Frame{Samples: make([]int16, 1)})
		close(done)
	}()

	sender.Close()
	select {
	case <-done:
	case <-ctx.Done():
	}
	waitFor(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, "Enqueue stayed blocked after Close")
}
