package llm

import (
	"context"
	"fmt"

	"opinionbot/internal/config"
	"opinionbot/internal/httpx"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultGeminiModel    = "gemini-2.5-flash"
)

// Role values follow the chat convention shared by all three providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

type Response struct {
	Text  string
	Usage Usage
}

// Completer sends one chat request and returns the raw completion text.
// Every failure is reported as a *ServiceError.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// NewCompleter builds the provider selected by llm_provider. Providers share
// the external HTTP client so its timeout applies to every call.
func NewCompleter(ctx context.Context, cfg config.Config) (Completer, error) {
	client := httpx.ExternalHTTPClient()
	switch cfg.LLMProvider {
	case "anthropic":
		return NewAnthropic(cfg.AnthropicAPIKey, client), nil
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, client), nil
	case "gemini":
		return NewGemini(ctx, cfg.GeminiAPIKey, client)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// DefaultModel is used when llm_model is empty.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return defaultOpenAIModel
	case "gemini":
		return defaultGeminiModel
	default:
		return defaultAnthropicModel
	}
}

// splitSystem separates system messages from the conversation for providers
// that take the system prompt out of band.
func splitSystem(msgs []Message) (system string, rest []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func withModel(req Request, provider string) Request {
	if req.Model == "" {
		req.Model = DefaultModel(provider)
	}
	return req
}
