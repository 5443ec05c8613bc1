package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/agrodost/agrodost/config"
	"github.com/agrodost/agrodost/gemini"
)

type stubAdvisor struct {
	recs    []gemini.CropRecommendation
	sources []gemini.Source
	err     error

	gotLat  float64
	gotLng  float64
	gotLang gemini.Language
}

func (s *stubAdvisor) Recommendations(ctx context.Context, lat, lng float64, lang gemini.Language) ([]gemini.CropRecommendation, []gemini.Source, error) {
	s.gotLat, s.gotLng, s.gotLang = lat, lng, lang
	return s.recs, s.sources, s.err
}

type stubMedia struct {
	image string
	uri   string
	err   error

	gotAspect string
}

func (s *stubMedia) EditImage(ctx context.Context, imageB64, instruction string) (string, error) {
	return s.image, s.err
}

func (s *stubMedia) GenerateVideo(ctx context.Context, imageB64, instruction, aspect string) (string, error) {
	s.gotAspect = aspect
	return s.uri, s.err
}

func newTestAPIServer(advisor CropAdvisor, media MediaGenerator) *APIServer {
	cfg := &config.Config{APIPort: 0}
	return NewAPIServer(cfg, advisor, media)
}

func TestRecommendationsHandler(t *testing.T) {
	advisor := &stubAdvisor{
		recs: []gemini.CropRecommendation{
			{Name: "Wheat", SuitabilityScore: 9.1},
		},
		sources: []gemini.Source{{URI: "https://example.com", Title: "Example"}},
	}
	srv := newTestAPIServer(advisor, &stubMedia{})

	body := `{"lat":18.52,"lng":73.85,"language":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recommendations", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleRecommendations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if advisor.gotLat != 18.52 || advisor.gotLng != 73.85 {
		t.Errorf("coordinates not forwarded: got (%v, %v)", advisor.gotLat, advisor.gotLng)
	}
	if advisor.gotLang != gemini.LanguageHI {
		t.Errorf("expected language hi, got %s", advisor.gotLang)
	}

	var resp recommendationsResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0].Name != "Wheat" {
		t.Errorf("unexpected recommendations: %+v", resp.Recommendations)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(resp.Sources))
	}
}

func TestRecommendationsDefaultsToEnglish(t *testing.T) {
	advisor := &stubAdvisor{recs: []gemini.CropRecommendation{{Name: "Rice"}}}
	srv := newTestAPIServer(advisor, &stubMedia{})

	req := httptest.NewRequest(http.MethodPost, "/api/recommendations", strings.NewReader(`{"lat":10,"lng":77}`))
	rec := httptest.NewRecorder()
	srv.handleRecommendations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if advisor.gotLang != gemini.LanguageEN {
		t.Errorf("expected default language en, got %s", advisor.gotLang)
	}
}

func TestRecommendationsRejectsBadInput(t *testing.T) {
	srv := newTestAPIServer(&stubAdvisor{}, &stubMedia{})

	cases := []struct {
		name string
		body string
	}{
		{"latitude out of range", `{"lat":91,"lng":0}`},
		{"longitude out of range", `{"lat":0,"lng":-181}`},
		{"unsupported language", `{"lat":10,"lng":77,"language":"fr"}`},
		{"invalid json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/recommendations", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			srv.handleRecommendations(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestRecommendationsUpstreamFailure(t *testing.T) {
	advisor := &stubAdvisor{err: errors.New("quota exceeded")}
	srv := newTestAPIServer(advisor, &stubMedia{})

	req := httptest.NewRequest(http.MethodPost, "/api/recommendations", strings.NewReader(`{"lat":10,"lng":77}`))
	rec := httptest.NewRecorder()
	srv.handleRecommendations(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestImageEditHandler(t *testing.T) {
	media := &stubMedia{image: "ZWRpdGVk"}
	srv := newTestAPIServer(&stubAdvisor{}, media)

	body := `{"image":"c291cmNl","instruction":"add a healthy wheat field"}`
	req := httptest.NewRequest(http.MethodPost, "/api/image/edit", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleImageEdit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp imageEditResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Image != "ZWRpdGVk" {
		t.Errorf("unexpected image payload: %q", resp.Image)
	}
}

func TestImageEditRequiresFields(t *testing.T) {
	srv := newTestAPIServer(&stubAdvisor{}, &stubMedia{})

	req := httptest.NewRequest(http.MethodPost, "/api/image/edit", strings.NewReader(`{"image":""}`))
	rec := httptest.NewRecorder()
	srv.handleImageEdit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestVideoHandlerDefaultsAspectRatio(t *testing.T) {
	media := &stubMedia{uri: "https://video.example/clip.mp4"}
	srv := newTestAPIServer(&stubAdvisor{}, media)

	body := `{"image":"c291cmNl","instruction":"animate the field"}`
	req := httptest.NewRequest(http.MethodPost, "/api/video", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleVideo(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if media.gotAspect != "16:9" {
		t.Errorf("expected default aspect 16:9, got %q", media.gotAspect)
	}
	var resp videoResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.URI != media.uri {
		t.Errorf("unexpected video URI: %q", resp.URI)
	}
}

func TestVideoHandlerRejectsBadAspectRatio(t *testing.T) {
	srv := newTestAPIServer(&stubAdvisor{}, &stubMedia{})

	body := `{"image":"c291cmNl","instruction":"animate","aspectRatio":"4:3"}`
	req := httptest.NewRequest(http.MethodPost, "/api/video", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleVideo(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestAPIServer(&stubAdvisor{}, &stubMedia{})

	for _, path := range []string{"/api/recommendations", "/api/image/edit", "/api/video"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		switch path {
		case "/api/recommendations":
			srv.handleRecommendations(rec, req)
		case "/api/image/edit":
			srv.handleImageEdit(rec, req)
		case "/api/video":
			srv.handleVideo(rec, req)
		}
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", path, rec.Code)
		}
	}
}
