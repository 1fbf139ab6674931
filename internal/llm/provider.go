// Package llm adapts the upstream conversational engine. Both supported
// providers speak the OpenAI chat completions protocol through openai-go.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Role values for Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior turn of the conversation.
type Message struct {
	Role    string
	Content string
}

// Request is one agent turn: the brand's run instructions, the history and
// the new user message as the last element of Messages.
type Request struct {
	System      string
	Messages    []Message
	Model       string // override (empty = provider default)
	MaxTokens   int
	Temperature float64
}

// Event is one streamed fragment. A non-nil Err is terminal.
type Event struct {
	Text string
	Err  error
}

// Provider is the interface for agent turns.
type Provider interface {
	// Complete runs a turn and returns the whole reply.
	Complete(ctx context.Context, req Request) (string, error)
	// Stream runs a turn and delivers fragments in order. The channel is
	// closed when the turn ends, fails, or ctx is cancelled.
	Stream(ctx context.Context, req Request) (<-chan Event, error)
	// Name returns a human-readable provider name (e.g., "openai/gpt-4o-mini").
	Name() string
}

// Config holds provider configuration.
type Config struct {
	Provider string // "openai", "openrouter"
	Model    string // e.g., "gpt-4o-mini", "anthropic/claude-3.5-haiku"
	APIKey   string // API key (empty = read from env)
	BaseURL  string // Optional URL override
}

const (
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultOpenRouterModel = "openai/gpt-4o-mini"
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
)

// NewProvider creates a provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY env var")
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return newChatProvider("openai", key, model, cfg.BaseURL, nil), nil

	case "openrouter":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENROUTER_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openrouter provider requires OPENROUTER_API_KEY env var")
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenRouterModel
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		return newChatProvider("openrouter", key, model, baseURL, map[string]string{
			"HTTP-Referer": "https://github.com/hurttlocker/intake",
			"X-Title":      "Intake",
		}), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openai, openrouter)", cfg.Provider)
	}
}

// ParseLLMFlag parses a --llm flag value into a Config.
// Format: "provider/model" e.g., "openai/gpt-4o-mini", "openrouter/anthropic/claude-3.5-haiku"
func ParseLLMFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{Provider: "openai", Model: defaultOpenAIModel}, nil
	}

	parts := strings.SplitN(flag, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return Config{}, fmt.Errorf("invalid --llm format %q: expected provider/model (e.g., openai/gpt-4o-mini)", flag)
	}

	provider := strings.ToLower(parts[0])
	model := parts[1]

	switch provider {
	case "openai", "openrouter":
		return Config{Provider: provider, Model: model}, nil
	default:
		return Config{}, fmt.Errorf("unknown provider %q in --llm flag (supported: openai, openrouter)", provider)
	}
}
