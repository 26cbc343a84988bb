package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type Anthropic struct {
	client anthropic.Client
}

func NewAnthropic(apiKey string, httpClient *http.Client, opts ...option.RequestOption) *Anthropic {
	base := []option.RequestOption{option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient)}
	return &Anthropic{client: anthropic.NewClient(append(base, opts...)...)}
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	req = withModel(req, "anthropic")
	system, msgs := splitSystem(req.Messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return Response{}, anthropicError(err)
	}
	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d", len(block.Text), usage.InputTokens, usage.OutputTokens)
			return Response{Text: block.Text, Usage: usage}, nil
		}
	}
	return Response{Usage: usage}, newServiceError("anthropic", 0, fmt.Errorf("no text content in Anthropic response"))
}

func anthropicError(err error) *ServiceError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return newServiceError("anthropic", apiErr.StatusCode, err)
	}
	return newServiceError("anthropic", 0, err)
}
