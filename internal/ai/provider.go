// Package ai extracts statement transactions by sending the original
// document to a language-model provider and strictly validating the JSON it
// returns.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Known provider names.
const (
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderLlamaCpp   = "llamacpp"
)

var (
	// ErrDocumentsUnsupported is returned without sending a request when the
	// provider cannot accept a document payload.
	ErrDocumentsUnsupported = errors.New("provider does not accept document input")
	// ErrMissingCredential is returned when a provider needs an API key and none is set.
	ErrMissingCredential = errors.New("missing provider credential")
	// ErrEmptyResponse is returned when the provider answers with no text.
	ErrEmptyResponse = errors.New("empty response from provider")
	// ErrExtractionFailed wraps the last transport error once retries are exhausted.
	ErrExtractionFailed = errors.New("AI extraction failed")
	// ErrNotPDF is returned without sending a request when the document is
	// not a PDF, such as a plain-text statement.
	ErrNotPDF = errors.New("document is not a PDF")
	// ErrUnknownProvider is returned by NewProvider for unrecognised names.
	ErrUnknownProvider = errors.New("unknown AI provider")
)

// ProviderConfig is the immutable configuration of one AI provider.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	// SupportsDocuments overrides the provider's default document capability.
	SupportsDocuments *bool
	// RequestsPerMinute paces outgoing requests; zero means unlimited.
	RequestsPerMinute int
	// Timeout bounds a single HTTP request; zero means 120s.
	Timeout time.Duration
}

// Request is one model call.
type Request struct {
	System          string
	Prompt          string
	Document        []byte
	EncodedDocument string // base64 of Document
	MediaType       string
	MaxTokens       int
}

// Provider sends a request to a model and returns its raw text answer.
type Provider interface {
	Name() string
	// SupportsDocuments reports whether the provider accepts a PDF payload.
	SupportsDocuments() bool
	// HasCredential reports whether the provider has the API key it needs.
	HasCredential() bool
	Complete(ctx context.Context, req Request) (string, error)
}

// StatusError is returned for non-success HTTP responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch cfg.Provider {
	case ProviderAnthropic:
		return newAnthropicProvider(cfg), nil
	case ProviderGemini:
		return newGeminiProvider(cfg), nil
	case ProviderOpenRouter:
		return newOpenAICompatProvider(cfg, "https://openrouter.ai/api/v1", true), nil
	case ProviderLlamaCpp:
		return newOpenAICompatProvider(cfg, "http://localhost:8080/v1", false), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

func (c ProviderConfig) documents(def bool) bool {
	if c.SupportsDocuments != nil {
		return *c.SupportsDocuments
	}
	return def
}

func (c ProviderConfig) baseURL(def string) string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return def
}

func (c ProviderConfig) model(def string) string {
	if c.Model != "" {
		return c.Model
	}
	return def
}

func (c ProviderConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c ProviderConfig) limiter() *rate.Limiter {
	if c.RequestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.RequestsPerMinute)), 1)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
