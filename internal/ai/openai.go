package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// openAICompatProvider talks to chat-completions endpoints such as
// OpenRouter and llama.cpp's server. Neither reliably accepts PDF input, so
// document support is off unless the configuration enables it.
type openAICompatProvider struct {
	cfg            ProviderConfig
	defaultBaseURL string
	needsKey       bool
	client         *http.Client
	limiter        *rate.Limiter
}

func newOpenAICompatProvider(cfg ProviderConfig, baseURL string, needsKey bool) *openAICompatProvider {
	return &openAICompatProvider{
		cfg:            cfg,
		defaultBaseURL: baseURL,
		needsKey:       needsKey,
		client:         cfg.httpClient(),
		limiter:        cfg.limiter(),
	}
}

func (p *openAICompatProvider) Name() string            { return p.cfg.Provider }
func (p *openAICompatProvider) SupportsDocuments() bool { return p.cfg.documents(false) }
func (p *openAICompatProvider) HasCredential() bool     { return !p.needsKey || p.cfg.APIKey != "" }

type chatFile struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type chatPart struct {
	Type string    `json:"type"`
	Text string    `json:"text,omitempty"`
	File *chatFile `json:"file,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openAICompatProvider) Complete(ctx context.Context, req Request) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: rate limiter: %w", p.Name(), err)
	}

	body := chatRequest{
		Model:     p.cfg.Model,
		MaxTokens: req.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: []chatPart{
				{Type: "text", Text: req.Prompt},
				{Type: "file", File: &chatFile{
					Filename: "statement.pdf",
					FileData: "data:" + req.MediaType + ";base64," + req.EncodedDocument,
				}},
			}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", p.Name(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.baseURL(p.defaultBaseURL)+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", p.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s: request failed: %w", p.Name(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", p.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", p.Name(), err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}
