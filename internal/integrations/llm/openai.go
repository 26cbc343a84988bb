package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAI talks to the chat completions endpoint over plain JSON. The base URL
// is configurable for compatible gateways.
type OpenAI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewOpenAI(apiKey, baseURL string, client *http.Client) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	req = withModel(req, "openai")
	body := openAIRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Response{}, newServiceError("openai", 0, fmt.Errorf("marshaling request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return Response{}, newServiceError("openai", 0, fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return Response{}, newServiceError("openai", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, newServiceError("openai", 0, fmt.Errorf("reading response: %w", err))
	}

	var parsed openAIResponse
	jsonErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		if jsonErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		log.Printf("llm openai api error status=%d: %s", resp.StatusCode, msg)
		return Response{}, newServiceError("openai", resp.StatusCode, fmt.Errorf("OpenAI API error: %s", msg))
	}
	if jsonErr != nil {
		return Response{}, newServiceError("openai", 0, fmt.Errorf("parsing OpenAI response: %w", jsonErr))
	}
	if parsed.Error != nil {
		log.Printf("llm openai api error: %s", parsed.Error.Message)
		return Response{}, newServiceError("openai", 0, fmt.Errorf("OpenAI API error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return Response{}, newServiceError("openai", 0, fmt.Errorf("no choices in OpenAI response"))
	}

	usage := Usage{}
	if parsed.Usage != nil {
		usage.InputTokens = parsed.Usage.PromptTokens
		usage.OutputTokens = parsed.Usage.CompletionTokens
	}
	text := parsed.Choices[0].Message.Content
	log.Printf("llm openai response size=%d tokens_in=%d tokens_out=%d", len(text), usage.InputTokens, usage.OutputTokens)
	return Response{Text: text, Usage: usage}, nil
}
