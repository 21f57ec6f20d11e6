package ai

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

type geminiProvider struct {
	cfg ProviderConfig

	mu     sync.Mutex
	client *genai.Client
}

func newGeminiProvider(cfg ProviderConfig) *geminiProvider {
	return &geminiProvider{cfg: cfg}
}

func (p *geminiProvider) Name() string            { return ProviderGemini }
func (p *geminiProvider) SupportsDocuments() bool { return p.cfg.documents(true) }
func (p *geminiProvider) HasCredential() bool     { return p.cfg.APIKey != "" }

func (p *geminiProvider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  p.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *geminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	client, err := p.genaiClient(ctx)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: req.Prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: req.MediaType,
						Data:     req.Document,
					},
				},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.System}}},
		ResponseMIMEType:  "application/json",
	}

	resp, err := client.Models.GenerateContent(ctx, p.cfg.model(geminiModel), contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	return resp.Text(), nil
}
