package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewProvider_Capabilities(t *testing.T) {
	yes := true

	tests := []struct {
		name          string
		cfg           ProviderConfig
		wantDocuments bool
		wantKey       bool
	}{
		{"anthropic", ProviderConfig{Provider: "anthropic", APIKey: "k"}, true, true},
		{"anthropic without key", ProviderConfig{Provider: "Anthropic"}, true, false},
		{"gemini", ProviderConfig{Provider: "gemini", APIKey: "k"}, true, true},
		{"openrouter", ProviderConfig{Provider: "openrouter", APIKey: "k"}, false, true},
		{"openrouter without key", ProviderConfig{Provider: "openrouter"}, false, false},
		{"llamacpp needs no key", ProviderConfig{Provider: "llamacpp"}, false, true},
		{"llamacpp enabled", ProviderConfig{Provider: "llamacpp", SupportsDocuments: &yes}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.SupportsDocuments() != tt.wantDocuments {
				t.Errorf("SupportsDocuments: got %v, want %v", p.SupportsDocuments(), tt.wantDocuments)
			}
			if p.HasCredential() != tt.wantKey {
				t.Errorf("HasCredential: got %v, want %v", p.HasCredential(), tt.wantKey)
			}
		})
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	if _, err := NewProvider(ProviderConfig{Provider: "mystery"}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("got %v, want ErrUnknownProvider", err)
	}
}

func testRequest() Request {
	return Request{
		System:          "sys",
		Prompt:          "extract",
		Document:        []byte("%PDF"),
		EncodedDocument: "JVBERg==",
		MediaType:       "application/pdf",
		MaxTokens:       4096,
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("x-api-key: got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("anthropic-version: got %q", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"ok\":"},{"type":"text","text":"true}"}]}`))
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{Provider: "anthropic", APIKey: "secret", BaseURL: srv.URL + "/", Model: "test-model"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, err := p.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != `{"ok":true}` {
		t.Errorf("text: got %q", text)
	}

	if got.Model != "test-model" || got.MaxTokens != 4096 || got.System != "sys" {
		t.Errorf("request: got model %q max_tokens %d system %q", got.Model, got.MaxTokens, got.System)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("messages: got %+v", got.Messages)
	}
	doc := got.Messages[0].Content[0]
	if doc.Type != "document" || doc.Source == nil || doc.Source.Data != "JVBERg==" || doc.Source.MediaType != "application/pdf" {
		t.Errorf("document block: got %+v", doc)
	}
	if got.Messages[0].Content[1].Text != "extract" {
		t.Errorf("text block: got %+v", got.Messages[0].Content[1])
	}
}

func TestAnthropicProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate_limited"}`))
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Provider: "anthropic", APIKey: "secret", BaseURL: srv.URL})

	_, err := p.Complete(context.Background(), testRequest())
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want *StatusError", err)
	}
	if serr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status: got %d", serr.StatusCode)
	}
}

func TestOpenAICompatProvider_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected Authorization header: %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Provider: "llamacpp", BaseURL: srv.URL + "/v1", Model: "local"})

	text, err := p.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "{}" {
		t.Errorf("text: got %q", text)
	}
	if got["model"] != "local" {
		t.Errorf("model: got %v", got["model"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages: got %v", got["messages"])
	}
}
