package domain

import "context"

// LLMProvider is the interface for the auxiliary chat backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "ollama").
	Name() string
}

// TextGenerator produces a single completion from a raw prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
