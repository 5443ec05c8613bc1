package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"github.com/agrodost/agrodost/gemini"
)

// Command-line smoke client for the crop recommendation flow.
func main() {
	lat := flag.Float64("lat", 18.52, "latitude of the farm")
	lng := flag.Float64("lng", 73.85, "longitude of the farm")
	lang := flag.String("lang", "en", "response language (en, hi, te, ta, mr)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("Error: GEMINI_API_KEY must be set.")
	}

	language := gemini.Language(*lang)
	if !language.Valid() {
		log.Fatalf("Unsupported language: %s", *lang)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}

	advisor := gemini.NewAdvisor(client)

	fmt.Printf("🌾 Fetching crop recommendations for (%.4f, %.4f) in %s...\n", *lat, *lng, language)

	recs, sources, err := advisor.Recommendations(ctx, *lat, *lng, language)
	if err != nil {
		log.Fatalf("Recommendation request failed: %v", err)
	}

	for i, rec := range recs {
		fmt.Printf("\n%d. %s (%s) — score %.1f\n", i+1, rec.Name, rec.ScientificName, rec.SuitabilityScore)
		fmt.Printf("   %s\n", rec.Description)
		fmt.Printf("   Expected yield: %s | Market price: %s\n", rec.ExpectedYield, rec.MarketPrice)
		for _, step := range rec.Roadmap {
			fmt.Printf("   • %s (%s)\n", step.Title, step.Duration)
			for _, task := range step.Tasks {
				fmt.Printf("     - %s\n", task)
			}
		}
	}

	if len(sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range sources {
			fmt.Printf("  - %s (%s)\n", src.Title, src.URI)
		}
	}
}
