package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport is a scriptable transport double. Tests push events and
// observe sends.
type fakeTransport struct {
	mu       sync.Mutex
	events   chan Event
	sent     []sentFrame
	connects int
	closed   bool
	sendErr  error
}

type sentFrame struct {
	payload string
	mime    string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan Event, 32)}
}

func (f *fakeTransport) Connect(ctx context.Context) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.events, nil
}

func (f *fakeTransport) SendAudio(payload, mime string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentFrame{payload: payload, mime: mime})
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) open() { f.events <- Event{Kind: EventOpened} }

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestSession() (*Session, *Pipeline, *fakeTransport, *fakeSink) {
	input := NewPipeline(8)
	transport := newFakeTransport()
	sink := &fakeSink{}
	return NewSession(input, transport, sink), input, transport, sink
}

func TestSessionLifecycle(t *testing.T) {
	s, _, transport, _ := newTestSession()

	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %v", s.State())
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateConnecting {
		t.Errorf("expected connecting, got %v", s.State())
	}

	transport.open()
	waitFor(t, func() bool { return s.State() == StateActive }, "session never became active")

	s.Stop()
	if s.State() != StateClosed {
		t.Errorf("expected closed after Stop, got %v", s.State())
	}
	if !transport.closed {
		t.Error("expected transport closed on Stop")
	}
}

func TestSessionSingleStart(t *testing.T) {
	s, _, transport, _ := newTestSession()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning while connecting, got %v", err)
	}

	transport.open()
	waitFor(t, func() bool { return s.State() == StateActive }, "session never became active")

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning while active, got %v", err)
	}
	if transport.connects != 1 {
		t.Errorf("expected exactly one connection, got %d", transport.connects)
	}
	s.Stop()
}

// deniedInput simulates a refused microphone permission.
type deniedInput struct{}

func (deniedInput) Start(ctx context.Context) error { return ErrPermissionDenied }
func (deniedInput) Frames() <-chan Frame            { return nil }
func (deniedInput) Stop()                           {}

func TestSessionPermissionDenied(t *testing.T) {
	transport := newFakeTransport()
	s := NewSession(deniedInput{}, transport, &fakeSink{})

	err := s.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed after denied permission, got %v", s.State())
	}
	if transport.connects != 0 {
		t.Errorf("no connection should be opened without a microphone, got %d", transport.connects)
	}
}

func TestSessionCaptureToOutboundFrames(t *testing.T) {
	s, input, transport, _ := newTestSession()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	transport.open()
	waitFor(t, func() bool { return s.State() == StateActive }, "session never became active")

	// Each 4096-sample block yields exactly one outbound frame.
	input.PushFloat32(make([]float32, BlockSize))
	input.PushFloat32(make([]float32, BlockSize))

	waitFor(t, func() bool { return transport.sentCount() == 2 }, "expected 2 outbound frames")

	transport.mu.Lock()
	for _, f := range transport.sent {
		if f.mime != "audio/pcm;rate=16000" {
			t.Errorf("expected MIME audio/pcm;rate=16000, got %q", f.mime)
		}
		raw, err := base64.StdEncoding.DecodeString(f.payload)
		if err != nil {
			t.Errorf("payload not base64: %v", err)
			continue
		}
		if len(raw) != BlockSize*2 {
			t.Errorf("expected %d payload bytes, got %d", BlockSize*2, len(raw))
		}
	}
	transport.mu.Unlock()
	s.Stop()
}

func TestSessionInboundScheduling(t *testing.T) {
	s, _, transport, sink := newTestSession()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	transport.open()
	waitFor(t, func() bool { return s.State() == StateActive }, "session never became active")

	// Two 0.1s chunks back to back.
	chunk := EncodeFrame(make([]int16, 2400))
	transport.events <- Event{Kind: EventAudio, Audio: chunk}
	transport.events <- Event{Kind: EventAudio, Audio: chunk}

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.plays) == 2
	}, "expected 2 scheduled buffers")

	sink.mu.Lock()
	t0, t1 := sink.plays[0], sink.plays[1]
	sink.mu.Unlock()
	if t0 != 0 {
		t.Errorf("expected first buffer at 0, got %f", t0)
	}
	if t1 != 0.1 {
		t.Errorf("expected second buffer at 0.1, got %f", t1)
	}
	s.Stop()
}

func TestSessionInterruptionStopsPlayback(t *testing.T) {
	s, _, transport, _ := newTestSession()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	transport.open()
	waitFor(t, func() bool { return s.State() == StateActive }, "session never became active")

	chunk := EncodeFrame(make([]int16, 2400))
	transport.events <- Event{Kind: EventAudio, Audio: chunk}
	transport.events <- Event{Kind: EventAudio, Audio: chunk}
	waitFor(t, func() bool { return s.Scheduler().ActiveCount() == 2 }, "expected 2 live buffers")

	transport.events <- Event{Kind: EventInterrupted}
	waitFor(t, func() bool { return s.Scheduler().ActiveCount() == 0 }, "interruption did not clear buffers")

	if s.Scheduler().NextStart() != 0 {
		t.Errorf("expected cursor reset, got %f", s.Scheduler().NextStart())
	}
	if s.State() != StateActive {
		t.Errorf("interruption must not close the session, state %v", s.State())
	}
	s.Stop()
}

func TestSessionBadChunkIsDropped(t *testing.T) {
	s, _, transport, sink := newTestSession()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	transport.open()
	waitFor(t, func() bool { return s.State() == StateActive }, "session never became active")

	transport.events <- Event{Kind: EventAudio, Audio: "%%% not audio %%%"}
	transport.events <- Event{Kind: EventAudio, Audio: EncodeFrame(make([]int16, 2400))}

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.plays) == 1
	}, "valid chunk after a bad one was not scheduled")

	if s.State() != StateActive {
		t.Errorf("decode error must not kill the session, state %v", s.State())
	}
	s.Stop()
}

func TestSessionRemoteErrorCloses(t *testing.T) {
	s, _, transport, _ := newTestSession()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	transport.open()
	waitFor(t, func() bool { return s.State() == StateActive }, "session never became active")

	transport.events <- Event{Kind: EventError, Err: errors.New("connection reset")}
	waitFor(t, func() bool { return s.State() == StateClosed }, "remote error did not close session")
}

func TestSessionTeardownAndRestart(t *testing.T) {
	input := NewPipeline(8)
	transport := newFakeTransport()
	sink := &fakeSink{}
	s := NewSession(input, transport, sink)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	transport.open()
	waitFor(t, func() bool { return s.State() == StateActive }, "session never became active")

	transport.events <- Event{Kind: EventAudio, Audio: EncodeFrame(make([]int16, 2400))}
	waitFor(t, func() bool { return s.Scheduler().NextStart() > 0 }, "cursor never advanced")

	s.Stop()
	if s.State() != StateClosed {
		t.Fatalf("expected closed, got %v", s.State())
	}

	// A fresh run is allowed from Closed and restarts the cursor at 0.
	transport2 := newFakeTransport()
	s2 := NewSession(input, transport2, sink)
	if err := s2.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s2.Scheduler().NextStart() != 0 {
		t.Errorf("expected fresh cursor, got %f", s2.Scheduler().NextStart())
	}
	transport2.open()
	waitFor(t, func() bool { return s2.State() == StateActive }, "restarted session never became active")
	s2.Stop()
}
