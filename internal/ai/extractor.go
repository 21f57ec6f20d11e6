package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/extractor"
	"github.com/insightdelivered/statement-processor/internal/models"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxTokens  = 4096
	pdfMediaType      = "application/pdf"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Extractor runs AI extraction for one institution against one provider.
type Extractor struct {
	provider     Provider
	institution  models.Institution
	instructions Instructions
	maxRetries   int
	baseDelay    time.Duration
	maxTokens    int
	sleep        SleepFunc
	log          zerolog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRetry sets the number of retries after the first attempt and the
// delay before the first retry. Each further retry doubles the delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(e *Extractor) {
		e.maxRetries = maxRetries
		e.baseDelay = baseDelay
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(e *Extractor) { e.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Extractor) { e.log = log }
}

// NewExtractor returns an Extractor for inst using provider p.
func NewExtractor(p Provider, inst models.Institution, opts ...Option) *Extractor {
	e := &Extractor{
		provider:     p,
		institution:  inst,
		instructions: InstructionsFor(inst),
		maxRetries:   DefaultMaxRetries,
		baseDelay:    DefaultBaseDelay,
		maxTokens:    DefaultMaxTokens,
		sleep:        sleepContext,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract sends document to the provider and returns the validated outcome.
//
// Transport failures and empty answers are retried with exponential
// backoff. A response that fails validation is returned immediately as a
// *ValidationError and is not retried.
func (e *Extractor) Extract(ctx context.Context, document []byte) (*models.ParseOutcome, error) {
	log := e.log.With().Str("provider", e.provider.Name()).Str("institution", string(e.institution)).Logger()

	if !e.provider.SupportsDocuments() {
		return nil, fmt.Errorf("%s: %w", e.provider.Name(), ErrDocumentsUnsupported)
	}
	if !e.provider.HasCredential() {
		return nil, fmt.Errorf("%s: %w", e.provider.Name(), ErrMissingCredential)
	}
	if len(document) == 0 {
		return nil, errors.New("empty document")
	}
	if !extractor.IsPDF(document) {
		return nil, ErrNotPDF
	}

	req := Request{
		System:          e.instructions.System,
		Prompt:          e.instructions.Prompt,
		Document:        document,
		EncodedDocument: base64.StdEncoding.EncodeToString(document),
		MediaType:       pdfMediaType,
		MaxTokens:       e.maxTokens,
	}

	var (
		text    string
		lastErr error
	)
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		text, lastErr = e.provider.Complete(ctx, req)
		if lastErr == nil && strings.TrimSpace(text) == "" {
			lastErr = ErrEmptyResponse
		}
		if lastErr == nil {
			break
		}

		log.Warn().Err(lastErr).Int("attempt", attempt+1).Int("max_attempts", e.maxRetries+1).Msg("AI request failed")

		if attempt == e.maxRetries {
			break
		}
		delay := e.baseDelay << attempt
		if err := e.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrExtractionFailed, e.maxRetries+1, lastErr)
	}

	out, err := ParseResponse(text)
	if err != nil {
		log.Error().Err(err).Msg("AI response failed validation")
		return nil, err
	}
	out.Institution = e.institution

	log.Info().Int("transactions", len(out.Transactions)).Msg("AI extraction succeeded")
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
