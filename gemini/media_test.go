package gemini

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestValidAspectRatio(t *testing.T) {
	if !ValidAspectRatio("16:9") || !ValidAspectRatio("9:16") {
		t.Error("16:9 and 9:16 must be accepted")
	}
	for _, a := range []string{"", "4:3", "1:1", "16x9"} {
		if ValidAspectRatio(a) {
			t.Errorf("%q should be rejected", a)
		}
	}
}

func TestGenerateVideoRejectsBadInput(t *testing.T) {
	m := NewMedia(nil, time.Millisecond)

	if _, err := m.GenerateVideo(context.Background(), "aGk=", "animate", "4:3"); !errors.Is(err, ErrBadAspectRatio) {
		t.Errorf("expected ErrBadAspectRatio, got %v", err)
	}
	if _, err := m.GenerateVideo(context.Background(), "not-base64!!!", "animate", "16:9"); err == nil {
		t.Error("expected error for invalid base64 image")
	}
}

func TestEditImageRejectsBadInput(t *testing.T) {
	m := NewMedia(nil, 0)
	if _, err := m.EditImage(context.Background(), "not-base64!!!", "make it rain"); err == nil {
		t.Error("expected error for invalid base64 image")
	}
}

func TestNewMediaDefaultsPollInterval(t *testing.T) {
	m := NewMedia(nil, 0)
	if m.pollInterval != DefaultVideoPollInterval {
		t.Errorf("expected %v, got %v", DefaultVideoPollInterval, m.pollInterval)
	}
}
