package session

import (
	"bytes"
	"testing"
)

func TestAudioBufferAppendAndFlush(t *testing.T) {
	buf := NewAudioBuffer(1024)

	if err := buf.Append([]byte{1, 2}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := buf.Append([]byte{3, 4, 5}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if buf.Size() != 5 {
		t.Errorf("expected size 5, got %d", buf.Size())
	}
	if buf.ChunkCount() != 2 {
		t.Errorf("expected 2 chunks, got %d", buf.ChunkCount())
	}

	got := buf.Flush()
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("flush returned %v, chunks not concatenated in order", got)
	}

	if !buf.IsEmpty() {
		t.Error("buffer should be empty after flush")
	}
	if buf.Flush() != nil {
		t.Error("flushing an empty buffer should return nil")
	}
}

func TestAudioBufferRejectsOverflow(t *testing.T) {
	buf := NewAudioBuffer(4)

	if err := buf.Append([]byte{1, 2, 3}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := buf.Append([]byte{4, 5}); err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}
	// The rejected chunk must not corrupt the buffer
	if buf.Size() != 3 {
		t.Errorf("expected size 3 after rejected append, got %d", buf.Size())
	}
}

func TestAudioBufferClear(t *testing.T) {
	buf := NewAudioBuffer(1024)
	buf.Append([]byte{1, 2, 3})
	buf.Clear()

	if !buf.IsEmpty() || buf.Size() != 0 {
		t.Error("clear should empty the buffer")
	}
}
