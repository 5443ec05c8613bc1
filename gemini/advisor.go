package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"
)

const advisorModel = "gemini-3-flash-preview"

// ErrNoRecommendations is returned when the model produces no usable
// recommendation list.
var ErrNoRecommendations = errors.New("no crop recommendations returned")

// Language is a supported farmer-facing language.
type Language string

const (
	LanguageEN Language = "en"
	LanguageHI Language = "hi"
	LanguageTE Language = "te"
	LanguageTA Language = "ta"
	LanguageMR Language = "mr"
)

// Valid reports whether the language is one we serve.
func (l Language) Valid() bool {
	switch l {
	case LanguageEN, LanguageHI, LanguageTE, LanguageTA, LanguageMR:
		return true
	}
	return false
}

// Step is one stage of a crop roadmap.
type Step struct {
	Title    string   `json:"title"`
	Duration string   `json:"duration"`
	Tasks    []string `json:"tasks"`
}

// CropRecommendation is one suggested crop with its growing roadmap.
type CropRecommendation struct {
	Name             string  `json:"name"`
	ScientificName   string  `json:"scientificName"`
	ExpectedYield    string  `json:"expectedYield"`
	MarketPrice      string  `json:"marketPrice"`
	SuitabilityScore float64 `json:"suitabilityScore"`
	Description      string  `json:"description"`
	Roadmap          []Step  `json:"roadmap"`
}

// Source is a grounding citation backing a recommendation.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Advisor produces crop recommendations grounded on live web search.
type Advisor struct {
	client *genai.Client
}

// NewAdvisor wraps a GenAI client.
func NewAdvisor(client *genai.Client) *Advisor {
	return &Advisor{client: client}
}

// Recommendations asks the model for the best crops to grow near the
// given coordinates, with labels in the requested language. Returns the
// parsed list and the grounding sources that informed it.
func (a *Advisor) Recommendations(ctx context.Context, lat, lng float64, lang Language) ([]CropRecommendation, []Source, error) {
	prompt := recommendationPrompt(lat, lng, lang)

	cfg := &genai.GenerateContentConfig{
		Tools:            []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		ResponseMIMEType: "application/json",
		ResponseSchema:   recommendationSchema(),
	}

	resp, err := a.client.Models.GenerateContent(ctx, advisorModel, genai.Text(prompt), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("recommendation request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, nil, ErrNoRecommendations
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}

	crops, err := parseRecommendations([]byte(text))
	if err != nil {
		return nil, nil, err
	}
	return crops, groundingSources(resp.Candidates[0]), nil
}

func recommendationPrompt(lat, lng float64, lang Language) string {
	return fmt.Sprintf(`Based on current weather and market trends at latitude %f, longitude %f, suggest top 3 best crops to grow. Return as JSON.
Use Search grounding for real-time data. Provide a detailed roadmap for each.
Languages: Please provide labels in %s and English.`, lat, lng, lang)
}

// parseRecommendations decodes the model's JSON reply. An empty or
// malformed list is an error the caller surfaces to the user.
func parseRecommendations(data []byte) ([]CropRecommendation, error) {
	var crops []CropRecommendation
	if err := sonic.Unmarshal(data, &crops); err != nil {
		return nil, fmt.Errorf("malformed recommendation JSON: %w", err)
	}
	if len(crops) == 0 {
		return nil, ErrNoRecommendations
	}
	return crops, nil
}

func groundingSources(c *genai.Candidate) []Source {
	if c.GroundingMetadata == nil {
		return nil
	}
	var sources []Source
	for _, chunk := range c.GroundingMetadata.GroundingChunks {
		if chunk.Web == nil {
			continue
		}
		sources = append(sources, Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return sources
}

func recommendationSchema() *genai.Schema {
	stepSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":    {Type: genai.TypeString},
			"duration": {Type: genai.TypeString},
			"tasks":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
	}
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name":             {Type: genai.TypeString},
				"scientificName":   {Type: genai.TypeString},
				"expectedYield":    {Type: genai.TypeString},
				"marketPrice":      {Type: genai.TypeString},
				"suitabilityScore": {Type: genai.TypeNumber},
				"description":      {Type: genai.TypeString},
				"roadmap":          {Type: genai.TypeArray, Items: stepSchema},
			},
		},
	}
}
