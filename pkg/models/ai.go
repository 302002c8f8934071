package models

import "context"

// AIProvider is implemented by every language model backend. Callers depend on
// this interface, never on a concrete provider.
type AIProvider interface {
	// Complete returns the model's reply to a single system + user exchange.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string
}

// CompletionRequest is one chat turn sent to a provider.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// HelpContext describes where the user is in the dashboard when asking for help.
type HelpContext struct {
	CurrentPage       string   `json:"current_page"`
	AvailableFeatures []string `json:"available_features"`
}
