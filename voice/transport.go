package voice

import "context"

// EventKind identifies a transport event.
type EventKind int

const (
	// EventOpened signals the remote connection is established.
	EventOpened EventKind = iota
	// EventAudio carries one base64 PCM chunk at the playback rate.
	EventAudio
	// EventInterrupted signals that queued playback must be discarded.
	EventInterrupted
	// EventError signals a fatal transport failure.
	EventError
	// EventClosed signals the remote side closed the connection.
	EventClosed
)

// Event is one typed message from the realtime connection. Driving the
// session state machine off a channel of these keeps the transition
// table testable without a live connection.
type Event struct {
	Kind  EventKind
	Audio string // base64 PCM payload, EventAudio only
	Err   error  // EventError only
}

// Transport is the duplex realtime connection to the speech model.
type Transport interface {
	// Connect opens the connection and returns its event stream. The
	// stream delivers EventOpened first, then audio/interruption events,
	// and terminates after EventError or EventClosed.
	Connect(ctx context.Context) (<-chan Event, error)

	// SendAudio transmits one encoded frame. The transport preserves
	// send order; audio is a single continuous stream.
	SendAudio(payload string, mimeType string) error

	// Close tears the connection down. Idempotent.
	Close() error
}
