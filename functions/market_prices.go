package functions

import "google.golang.org/genai"

// GetMarketPricesFunctionDeclaration returns the function declaration for Gemini
func GetMarketPricesFunctionDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        "GetMarketPrices",
		Description: "Get current mandi (wholesale market) reference prices for major Indian crops"}
}

var marketPrices string = `
Reference mandi prices (per quintal, indicative):
Wheat: Rs 2,275 (MSP 2024-25), trending stable
Paddy (common): Rs 2,300, trending up
Cotton (medium staple): Rs 7,121, trending stable
Maize: Rs 2,225, trending up
Tur/Arhar dal: Rs 7,550, trending up
Soybean: Rs 4,892, trending down
Mustard: Rs 5,950, trending stable
Groundnut: Rs 6,783, trending up
Prices vary by state and market yard; advise farmers to confirm with their local mandi before selling.
`

func GetMarketPrices() string {
	return marketPrices
}
