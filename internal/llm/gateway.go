package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kyuchan/presentation-grader/internal/config"
)

// ErrNoProviders is returned by Chat when nothing is configured.
var ErrNoProviders = errors.New("no LLM provider configured")

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	maxRetries       int
	baseBackoff      time.Duration
	logger           *slog.Logger
}

// NewGateway registers a provider for every credential present in cfg. Ollama
// is only registered when it is the default or fallback provider.
func NewGateway(cfg config.LLMConfig, logger *slog.Logger) Gateway {
	model := func(name string) string {
		if cfg.DefaultProvider == name {
			return cfg.DefaultModel
		}
		return ""
	}

	var providers []Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider(cfg.OpenAIKey, "", model("openai")))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicKey, model("anthropic")))
	}
	if cfg.OllamaURL != "" && (cfg.DefaultProvider == "ollama" || cfg.FallbackProvider == "ollama") {
		providers = append(providers, NewOllamaProvider(cfg.OllamaURL, model("ollama")))
	}
	return NewGatewayWithProviders(cfg, logger, providers...)
}

// NewGatewayWithProviders builds a gateway around explicit providers.
func NewGatewayWithProviders(cfg config.LLMConfig, logger *slog.Logger, providers ...Provider) Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &gateway{
		providers:        make(map[string]Provider, len(providers)),
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		fallbackProvider: cfg.FallbackProvider,
		maxRetries:       cfg.MaxRetries,
		baseBackoff:      500 * time.Millisecond,
		logger:           logger,
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

func (g *gateway) Available() bool { return len(g.providers) > 0 }

// Chat sends req to its provider, or the default one, retrying transient
// failures. When those retries are exhausted the fallback provider gets the
// request with its own default model.
func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*Completion, error) {
	if !g.Available() {
		return nil, ErrNoProviders
	}
	name := req.Provider
	if name == "" {
		name = g.defaultProvider
	}
	if req.Model == "" && name == g.defaultProvider {
		req.Model = g.defaultModel
	}

	resp, err := g.chatWithRetry(ctx, name, req)
	if err == nil || g.fallbackProvider == "" || g.fallbackProvider == name || ctx.Err() != nil {
		return resp, err
	}

	fallback, ok := g.providers[g.fallbackProvider]
	if !ok {
		return nil, err
	}
	g.logger.Warn("primary provider failed, trying fallback",
		"primary", name,
		"fallback", g.fallbackProvider,
		"error", err,
	)
	req.Model = fallback.DefaultModel()
	return g.chatWithRetry(ctx, g.fallbackProvider, req)
}

func (g *gateway) chatWithRetry(ctx context.Context, name string, req ChatRequest) (*Completion, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	if req.Model == "" {
		req.Model = p.DefaultModel()
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * g.baseBackoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			g.logger.Debug("retrying LLM call", "provider", name, "attempt", attempt)
		}

		resp, err := p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("%s chat failed: %w", name, lastErr)
}
