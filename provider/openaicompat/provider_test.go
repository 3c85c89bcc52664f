package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"crewsim"
)

func TestChatSendsRequestAndParsesResponse(t *testing.T) {
	var gotBody chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "GOAL: WANDER"}}},
			Usage:   &chatUsage{PromptTokens: 40, CompletionTokens: 6},
		})
	}))
	defer srv.Close()

	p := NewProvider("test-key", "test-model", srv.URL)
	resp, err := p.Chat(context.Background(), crewsim.ChatRequest{
		Messages: []crewsim.ChatMessage{
			crewsim.SystemMessage("system"),
			crewsim.UserMessage("user"),
		},
		Temperature: 0.7,
		MaxTokens:   100,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want Bearer test-key", gotAuth)
	}
	if gotBody.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotBody.Model)
	}
	if gotBody.Stream {
		t.Error("stream = true, want false")
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", gotBody.Messages)
	}
	if gotBody.Temperature == nil || *gotBody.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", gotBody.Temperature)
	}
	if gotBody.MaxTokens != 100 {
		t.Errorf("max_tokens = %d, want 100", gotBody.MaxTokens)
	}

	if resp.Content != "GOAL: WANDER" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.PromptTokens != 40 || resp.Usage.CompletionTokens != 6 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL)
	_, err := p.Chat(context.Background(), crewsim.ChatRequest{})

	var herr *crewsim.ErrHTTP
	if !errors.As(err, &herr) {
		t.Fatalf("err = %v, want *crewsim.ErrHTTP", err)
	}
	if herr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", herr.Status)
	}
	if !crewsim.IsEndpointFailure(err) {
		t.Error("IsEndpointFailure = false, want true")
	}
}

func TestChatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL)
	_, err := p.Chat(context.Background(), crewsim.ChatRequest{})

	var eerr *crewsim.ErrEndpoint
	if !errors.As(err, &eerr) {
		t.Fatalf("err = %v, want *crewsim.ErrEndpoint", err)
	}
}

func TestChatContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProvider("", "m", srv.URL)
	_, err := p.Chat(ctx, crewsim.ChatRequest{})
	if err == nil {
		t.Fatal("Chat succeeded with cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL, WithName("local"))
	if _, err := p.Chat(context.Background(), crewsim.ChatRequest{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
	if p.Name() != "local" {
		t.Errorf("Name = %q, want local", p.Name())
	}
}
