package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/extractor"
	"github.com/insightdelivered/statement-processor/internal/logger"
	"github.com/insightdelivered/statement-processor/internal/models"
	"github.com/insightdelivered/statement-processor/internal/parser"
)

var (
	// ErrNoParser is returned for documents from institutions with no parser.
	ErrNoParser = errors.New("no parser available")
	// ErrNoCorrespondent marks a document with no institution identifier.
	ErrNoCorrespondent = errors.New("no correspondent")
	// ErrNoTransactions marks an outcome that parsed but yielded nothing.
	ErrNoTransactions = errors.New("no transactions extracted")
	// errNotPDF skips the AI path for originals such as plain-text statements.
	errNotPDF = errors.New("original is not a PDF")
)

// Dispatcher routes a document to the AI extractor or text parser of its
// institution. AI routing is fixed at construction.
type Dispatcher struct {
	registry   *parser.Registry
	fetcher    Fetcher
	extractors map[models.Institution]AIExtractor
	log        zerolog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAIExtractor routes inst through ex before falling back to text parsing.
func WithAIExtractor(inst models.Institution, ex AIExtractor) DispatcherOption {
	return func(d *Dispatcher) { d.extractors[inst] = ex }
}

// NewDispatcher returns a Dispatcher over registry. fetcher may be nil when
// no institution uses AI extraction.
func NewDispatcher(registry *parser.Registry, fetcher Fetcher, log zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		fetcher:    fetcher,
		extractors: make(map[models.Institution]AIExtractor),
		log:        log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// UsesAI reports whether inst is routed through an AI extractor.
func (d *Dispatcher) UsesAI(inst models.Institution) bool {
	_, ok := d.extractors[inst]
	return ok
}

// Extract returns the parse outcome for doc.
//
// Unknown correspondents yield ErrNoParser. Institutions configured for AI
// extraction try the AI path first; any failure there falls back to the
// text parser on the document's extracted text.
func (d *Dispatcher) Extract(ctx context.Context, doc models.Document) (*models.ParseOutcome, error) {
	p, err := d.registry.Lookup(doc.Correspondent)
	if err != nil {
		return nil, fmt.Errorf("%w for %q", ErrNoParser, doc.Correspondent)
	}

	log := logger.FromContextOr(ctx, d.log).With().Int("document_id", doc.ID).Str("institution", string(p.Institution())).Logger()

	if ex, ok := d.extractors[p.Institution()]; ok {
		out, err := d.extractWithAI(ctx, ex, doc)
		if err == nil {
			out.Institution = p.Institution()
			out.Method = models.MethodAI
			return out, nil
		}
		if errors.Is(err, errNotPDF) {
			log.Debug().Msg("original is not a PDF, using text parser")
		} else {
			log.Warn().Err(err).Msg("AI extraction failed, falling back to text parser")
		}
	}

	log.Debug().Str("parser", p.BankName()).Msg("parsing document text")
	out, err := p.Parse(doc.Pages)
	if err != nil {
		return nil, fmt.Errorf("%s parser: %w", p.BankName(), err)
	}
	return out, nil
}

func (d *Dispatcher) extractWithAI(ctx context.Context, ex AIExtractor, doc models.Document) (*models.ParseOutcome, error) {
	if d.fetcher == nil {
		return nil, errors.New("no document fetcher configured")
	}
	original, err := d.fetcher.FetchOriginal(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch original: %w", err)
	}
	if !extractor.IsPDF(original) {
		return nil, errNotPDF
	}
	return ex.Extract(ctx, original)
}
