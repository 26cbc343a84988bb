package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

func sampleRequest() Request {
	return Request{
		Model: "test-model",
		Messages: []Message{
			{Role: RoleSystem, Content: "Answer with JSON only."},
			{Role: RoleUser, Content: "Post: lower the consumption tax"},
		},
		Temperature: 0.3,
		MaxTokens:   256,
	}
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindQuota},
		{http.StatusServiceUnavailable, KindNetwork},
		{http.StatusGatewayTimeout, KindNetwork},
		{http.StatusBadRequest, KindOther},
		{http.StatusInternalServerError, KindOther},
	}
	for _, tt := range tests {
		if got := kindForStatus(tt.status); got != tt.want {
			t.Fatalf("kindForStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestNewServiceErrorClassification(t *testing.T) {
	if got := newServiceError("x", 0, context.DeadlineExceeded); got.Kind != KindNetwork {
		t.Fatalf("deadline exceeded kind = %s, want network", got.Kind)
	}
	if got := newServiceError("x", 0, errors.New("boom")); got.Kind != KindOther {
		t.Fatalf("plain error kind = %s, want other", got.Kind)
	}
	inner := &ServiceError{Provider: "x", Kind: KindQuota, Err: errors.New("slow down")}
	if got := newServiceError("y", 0, fmt.Errorf("wrapped: %w", inner)); got != inner {
		t.Fatalf("expected existing ServiceError to be reused, got %v", got)
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]Message{
		{Role: RoleSystem, Content: "one"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "two"},
		{Role: RoleAssistant, Content: "hello"},
	})
	if system != "one\n\ntwo" {
		t.Fatalf("unexpected system text: %q", system)
	}
	want := []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}
	if diff := cmp.Diff(want, rest); diff != "" {
		t.Fatalf("rest mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultModel(t *testing.T) {
	if DefaultModel("openai") != defaultOpenAIModel || DefaultModel("gemini") != defaultGeminiModel || DefaultModel("anthropic") != defaultAnthropicModel {
		t.Fatal("unexpected default model mapping")
	}
}

func TestOpenAICompleteSendsMessagesAndTemperature(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"biasScore\":0.1}"}}],"usage":{"prompt_tokens":12,"completion_tokens":4}}`)
	}))
	defer srv.Close()

	client := NewOpenAI("sk-test", srv.URL+"/v1/", srv.Client())
	resp, err := client.Complete(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Text != `{"biasScore":0.1}` {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.Usage.TotalTokens() != 16 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if got.Model != "test-model" || got.Temperature != 0.3 || got.MaxTokens != 256 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAICompleteErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, KindAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"quota exceeded"}}`, KindQuota},
		{"server error", http.StatusInternalServerError, `oops`, KindOther},
		{"garbage body", http.StatusOK, `not json`, KindOther},
		{"no choices", http.StatusOK, `{"choices":[]}`, KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewOpenAI("sk-test", srv.URL, srv.Client()).Complete(context.Background(), sampleRequest())
			var svcErr *ServiceError
			if !errors.As(err, &svcErr) {
				t.Fatalf("expected ServiceError, got %v", err)
			}
			if svcErr.Kind != tt.want || svcErr.Provider != "openai" {
				t.Fatalf("got %s/%s, want openai/%s", svcErr.Provider, svcErr.Kind, tt.want)
			}
		})
	}
}

func TestOpenAICompleteNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOpenAI("sk-test", url, http.DefaultClient).Complete(context.Background(), sampleRequest())
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.Kind != KindNetwork {
		t.Fatalf("expected network ServiceError, got %v", err)
	}
}

func TestAnthropicComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"test-model",
			"content":[{"type":"text","text":"{\"biasScore\":-0.2}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":7}}`)
	}))
	defer srv.Close()

	client := NewAnthropic("key", srv.Client(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := client.Complete(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Text != `{"biasScore":-0.2}` || resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 7 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if body["temperature"] != 0.3 {
		t.Fatalf("expected temperature in request, got %v", body["temperature"])
	}
	system, _ := json.Marshal(body["system"])
	if !strings.Contains(string(system), "Answer with JSON only.") {
		t.Fatalf("expected system prompt out of band, got %s", system)
	}
}

func TestAnthropicCompleteAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	client := NewAnthropic("bad", srv.Client(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := client.Complete(context.Background(), sampleRequest())
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.Kind != KindAuth || svcErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected auth ServiceError, got %v", err)
	}
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := newGemini(context.Background(), &genai.ClientConfig{
		APIKey:      "gm-test",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  srv.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	})
	if err != nil {
		t.Fatalf("newGemini error: %v", err)
	}
	return g
}

func TestGeminiComplete(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "test-model:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"biasScore\":"},{"text":"0.4}"}]}}],
			"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":3}}`)
	})
	resp, err := g.Complete(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Text != `{"biasScore":0.4}` || resp.Usage.TotalTokens() != 12 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGeminiCompleteForbidden(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	})
	_, err := g.Complete(context.Background(), sampleRequest())
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.Kind != KindAuth || svcErr.Provider != "gemini" {
		t.Fatalf("expected gemini auth ServiceError, got %v", err)
	}
}
