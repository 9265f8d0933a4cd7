package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/questlog/internal/config"
)

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

const defaultTimeout = 120 * time.Second

// NewClient creates an LLM client based on the config provider setting.
// Provider "none" yields a nil Client: entries without explicit actions are
// then recorded as text only.
func NewClient(cfg config.LLMConfig) (Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	switch cfg.Provider {
	case "none":
		return nil, nil
	case "claude-cli":
		model := cfg.Model
		if model == "" {
			model = "haiku"
		}
		return NewClaudeCLI(model, timeout), nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" || model == "haiku" {
			model = "claude-haiku-4-5-20251001"
		}
		a := NewAnthropic(cfg.AnthropicKey, model, timeout)
		if cfg.AnthropicURL != "" {
			a.url = cfg.AnthropicURL
		}
		return a, nil
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.OllamaModel
		if model == "" {
			model = "llama3.2"
		}
		return NewOllama(url, model, timeout), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
