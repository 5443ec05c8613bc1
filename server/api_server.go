package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/agrodost/agrodost/config"
	"github.com/agrodost/agrodost/gemini"
)

// CropAdvisor produces location-based crop recommendations.
type CropAdvisor interface {
	Recommendations(ctx context.Context, lat, lng float64, lang gemini.Language) ([]gemini.CropRecommendation, []gemini.Source, error)
}

// MediaGenerator edits farm photos and renders field videos.
type MediaGenerator interface {
	EditImage(ctx context.Context, imageB64, instruction string) (string, error)
	GenerateVideo(ctx context.Context, imageB64, instruction, aspect string) (string, error)
}

// APIServer exposes the non-voice Gemini features over REST.
type APIServer struct {
	httpServer *http.Server
	advisor    CropAdvisor
	media      MediaGenerator
	config     *config.Config
}

func NewAPIServer(cfg *config.Config, advisor CropAdvisor, media MediaGenerator) *APIServer {
	s := &APIServer{
		advisor: advisor,
		media:   media,
		config:  cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/recommendations", s.handleRecommendations)
	mux.HandleFunc("/api/image/edit", s.handleImageEdit)
	mux.HandleFunc("/api/video", s.handleVideo)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.APIPort),
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Video generation polls for minutes, no write timeout
	}

	return s
}

// Start begins listening for API requests
func (s *APIServer) Start() error {
	log.Printf("🚀 API server starting on port %d", s.config.APIPort)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the API server
func (s *APIServer) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

type recommendationsRequest struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Language string  `json:"language"`
}

type recommendationsResponse struct {
	Recommendations []gemini.CropRecommendation `json:"recommendations"`
	Sources         []gemini.Source             `json:"sources"`
}

func (s *APIServer) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req recommendationsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	lang := gemini.Language(req.Language)
	if req.Language == "" {
		lang = gemini.LanguageEN
	}
	if !lang.Valid() {
		writeError(w, http.StatusBadRequest, "unsupported language: "+req.Language)
		return
	}

	recs, sources, err := s.advisor.Recommendations(r.Context(), req.Lat, req.Lng, lang)
	if err != nil {
		log.Printf("❌ Recommendations failed: %v", err)
		if errors.Is(err, gemini.ErrNoRecommendations) {
			writeError(w, http.StatusBadGateway, "model returned no recommendations")
			return
		}
		writeError(w, http.StatusBadGateway, "recommendation request failed")
		return
	}

	writeJSON(w, http.StatusOK, recommendationsResponse{
		Recommendations: recs,
		Sources:         sources,
	})
}

type imageEditRequest struct {
	Image       string `json:"image"` // Base64-encoded JPEG/PNG
	Instruction string `json:"instruction"`
}

type imageEditResponse struct {
	Image string `json:"image"` // Base64-encoded edited image
}

func (s *APIServer) handleImageEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req imageEditRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Image == "" || req.Instruction == "" {
		writeError(w, http.StatusBadRequest, "image and instruction are required")
		return
	}

	edited, err := s.media.EditImage(r.Context(), req.Image, req.Instruction)
	if err != nil {
		log.Printf("❌ Image edit failed: %v", err)
		writeError(w, http.StatusBadGateway, "image edit request failed")
		return
	}

	writeJSON(w, http.StatusOK, imageEditResponse{Image: edited})
}

type videoRequest struct {
	Image       string `json:"image"` // Base64-encoded source frame
	Instruction string `json:"instruction"`
	AspectRatio string `json:"aspectRatio"` // "16:9" or "9:16"
}

type videoResponse struct {
	URI string `json:"uri"`
}

func (s *APIServer) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req videoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Image == "" || req.Instruction == "" {
		writeError(w, http.StatusBadRequest, "image and instruction are required")
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "16:9"
	}
	if !gemini.ValidAspectRatio(req.AspectRatio) {
		writeError(w, http.StatusBadRequest, "aspectRatio must be 16:9 or 9:16")
		return
	}

	uri, err := s.media.GenerateVideo(r.Context(), req.Image, req.Instruction, req.AspectRatio)
	if err != nil {
		log.Printf("❌ Video generation failed: %v", err)
		writeError(w, http.StatusBadGateway, "video generation failed")
		return
	}

	writeJSON(w, http.StatusOK, videoResponse{URI: uri})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// decodeBody parses the JSON request body into dst, writing a 400 and
// returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 32*1024*1024))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := sonic.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
