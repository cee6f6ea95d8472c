// Package llm provides the text-generation backends used to classify and
// summarise chats.
package llm

import (
	"context"
)

// Provider is the interface implemented by every backend.
// Implementations: OpenAIProvider (OpenAI, Mistral and other compatible APIs),
// AnthropicProvider, OllamaProvider
type Provider interface {
	Name() string  // Driver name (e.g., "mistral", "ollama")
	Model() string // Model sent with each request

	// SimpleMessage sends one user message with an optional system prompt
	// and returns the reply text. No tools, no streaming.
	SimpleMessage(ctx context.Context, userMessage, systemPrompt string) (string, error)
}

// ErrUnavailable is returned when a provider cannot be constructed or reached
type ErrUnavailable struct {
	Provider string
	Reason   string
}

func (e ErrUnavailable) Error() string {
	if e.Reason != "" {
		return e.Provider + " is unavailable: " + e.Reason
	}
	return e.Provider + " is unavailable"
}
