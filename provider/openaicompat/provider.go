package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"crewsim"
)

// Provider implements crewsim.Provider for any OpenAI-compatible chat
// completions API: OpenAI, OpenRouter, Groq, Ollama, vLLM, LM Studio, and
// the rest. Requests are always non-streaming; the simulation's reasoning
// queue wants complete responses, not deltas.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithName overrides the provider name reported in logs and traces.
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient overrides the HTTP client, e.g. for custom transports.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// NewProvider creates an OpenAI-compatible chat provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"). The /chat/completions path is appended
// automatically. The client carries no timeout of its own: the reasoning
// queue's per-request deadline arrives through ctx.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name (default "openai", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// Chat sends a non-streaming chat request and returns the complete response.
func (p *Provider) Chat(ctx context.Context, req crewsim.ChatRequest) (crewsim.ChatResponse, error) {
	body := chatRequest{
		Model:     p.model,
		Messages:  make([]chatMessage, 0, len(req.Messages)),
		MaxTokens: req.MaxTokens,
		Stream:    false,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := p.send(ctx, body)
	if err != nil {
		return crewsim.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return crewsim.ChatResponse{}, &crewsim.ErrHTTP{Status: resp.StatusCode, Body: string(raw)}
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return crewsim.ChatResponse{}, &crewsim.ErrEndpoint{Message: fmt.Sprintf("decode response: %v", err)}
	}
	return parseResponse(cr)
}

// send marshals the body and posts it to the chat completions endpoint.
func (p *Provider) send(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &crewsim.ErrEndpoint{Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &crewsim.ErrEndpoint{Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return p.client.Do(httpReq)
}

// parseResponse extracts the first choice's content and the usage counters.
func parseResponse(cr chatResponse) (crewsim.ChatResponse, error) {
	if len(cr.Choices) == 0 {
		return crewsim.ChatResponse{}, &crewsim.ErrEndpoint{Message: "response has no choices"}
	}
	out := crewsim.ChatResponse{
		Content: cr.Choices[0].Message.Content,
	}
	if cr.Usage != nil {
		out.Usage = crewsim.Usage{
			PromptTokens:     cr.Usage.PromptTokens,
			CompletionTokens: cr.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// Compile-time interface check.
var _ crewsim.Provider = (*Provider)(nil)
