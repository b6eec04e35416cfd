// Package llm sends grading prompts to OpenAI, Anthropic or Ollama with
// retries and an optional fallback provider.
package llm

import "context"

// Provider is one chat completion backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*Completion, error)
	Name() string
	// DefaultModel is used when a request falls back to this provider.
	DefaultModel() string
}

// Gateway routes requests to the configured providers.
type Gateway interface {
	Chat(ctx context.Context, req ChatRequest) (*Completion, error)
	Available() bool
}

type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

type ChatRequest struct {
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	// Temperature is left to the provider when nil. Grading pins it to 0.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	// JSONMode asks for a single JSON object in the reply.
	JSONMode bool `json:"json_mode,omitempty"`
}

// Temperature returns a pointer for ChatRequest.Temperature.
func Temperature(v float64) *float64 { return &v }

type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

type Completion struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Content   string `json:"content"`
	Usage     Usage  `json:"usage"`
	LatencyMs int64  `json:"latency_ms"`
}
