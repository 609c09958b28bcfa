package ports

import "context"

type GenerateRequest struct {
	Prompt      string
	ModelID     string
	Temperature float64
	MaxTokens   int
}

// Port: a text-generation service used to explain recommendations.
type RationaleGenerator interface {
	// Return the raw completion text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
