package llm

import "context"

// Message is one entry of an ordered chat-completion prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request contains chat-completion parameters
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response contains the LLM completion result
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMs        int64
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Complete generates a completion for an ordered message list
	Complete(ctx context.Context, req Request, model string) (*Response, error)
}
