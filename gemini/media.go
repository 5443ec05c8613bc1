package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const (
	imageModel = "gemini-2.5-flash-image"
	videoModel = "veo-3.1-fast-generate-preview"

	// DefaultVideoPollInterval is how often a pending video generation
	// operation is polled.
	DefaultVideoPollInterval = 10 * time.Second
)

var (
	// ErrNoImage is returned when the model answers without an image.
	ErrNoImage = errors.New("model returned no edited image")

	// ErrNoVideo is returned when a finished operation has no video.
	ErrNoVideo = errors.New("video generation produced no result")

	// ErrBadAspectRatio is returned for unsupported aspect ratios.
	ErrBadAspectRatio = errors.New(`aspect ratio must be "16:9" or "9:16"`)
)

// Media wraps the image editing and video generation models.
type Media struct {
	client       *genai.Client
	pollInterval time.Duration
}

// NewMedia wraps a GenAI client. pollInterval <= 0 selects the default.
func NewMedia(client *genai.Client, pollInterval time.Duration) *Media {
	if pollInterval <= 0 {
		pollInterval = DefaultVideoPollInterval
	}
	return &Media{client: client, pollInterval: pollInterval}
}

// EditImage applies a natural-language instruction to a base64 PNG and
// returns the edited image, base64-encoded. ErrNoImage when the model
// answers with text only.
func (m *Media) EditImage(ctx context.Context, imageB64, instruction string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return "", fmt.Errorf("invalid base64 image: %w", err)
	}

	contents := []*genai.Content{
		{
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: raw, MIMEType: "image/png"}},
				{Text: instruction},
			},
		},
	}

	resp, err := m.client.Models.GenerateContent(ctx, imageModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("image edit request failed: %w", err)
	}

	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
			}
		}
	}
	return "", ErrNoImage
}

// ValidAspectRatio reports whether the ratio is one Veo accepts here.
func ValidAspectRatio(aspect string) bool {
	return aspect == "16:9" || aspect == "9:16"
}

// GenerateVideo submits a video generation job seeded by a base64 PNG,
// polls it on a fixed interval until done, and returns the downloadable
// video URI. Cancelling the context aborts the poll loop.
func (m *Media) GenerateVideo(ctx context.Context, imageB64, instruction, aspect string) (string, error) {
	if !ValidAspectRatio(aspect) {
		return "", ErrBadAspectRatio
	}
	raw, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return "", fmt.Errorf("invalid base64 image: %w", err)
	}

	image := &genai.Image{ImageBytes: raw, MIMEType: "image/png"}
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     "720p",
		AspectRatio:    aspect,
	}

	op, err := m.client.Models.GenerateVideos(ctx, videoModel, instruction, image, cfg)
	if err != nil {
		return "", fmt.Errorf("video generation request failed: %w", err)
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for !op.Done {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		op, err = m.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return "", fmt.Errorf("video generation poll failed: %w", err)
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return "", ErrNoVideo
	}
	video := op.Response.GeneratedVideos[0].Video
	if video == nil || video.URI == "" {
		return "", ErrNoVideo
	}
	return video.URI, nil
}
