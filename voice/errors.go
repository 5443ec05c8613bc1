package voice

import "errors"

var (
	// ErrPermissionDenied is returned when the audio input device cannot
	// be acquired (denied or unsupported).
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrAlreadyRunning is returned by Start when a session is already
	// connecting or active.
	ErrAlreadyRunning = errors.New("voice session already running")

	// ErrClosed is returned when an operation is attempted on a closed
	// session or transport.
	ErrClosed = errors.New("voice session closed")
)
