package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/categorizer"
	"github.com/insightdelivered/statement-processor/internal/logger"
	"github.com/insightdelivered/statement-processor/internal/models"
)

// Stats counts what happened to each document in a run.
type Stats struct {
	Queried                int `json:"documents_queried"`
	Processed              int `json:"documents_processed"`
	SkippedNoCorrespondent int `json:"skipped_no_correspondent"`
	SkippedUnknown         int `json:"skipped_unknown_institution"`
	SkippedParseError      int `json:"skipped_parse_error"`
	TotalTransactions      int `json:"total_transactions"`
}

// Skipped returns the number of documents not processed.
func (s Stats) Skipped() int {
	return s.SkippedNoCorrespondent + s.SkippedUnknown + s.SkippedParseError
}

// DocumentResult records the outcome for one document. Skipped documents
// carry a failed outcome with the reason in Error.
type DocumentResult struct {
	DocumentID int                  `json:"document_id"`
	Outcome    *models.ParseOutcome `json:"outcome"`
}

// RunReport is the aggregated result of a run.
type RunReport struct {
	RunID      string            `json:"run_id"`
	Stats      Stats             `json:"stats"`
	Records    []models.Record   `json:"records"`
	Documents  []DocumentResult  `json:"documents"`
	Categories categorizer.Stats `json:"-"`
}

// Processor runs documents through dispatch and categorization.
type Processor struct {
	dispatcher  *Dispatcher
	categorizer *categorizer.Categorizer
	log         zerolog.Logger
}

// NewProcessor returns a Processor.
func NewProcessor(d *Dispatcher, c *categorizer.Categorizer, log zerolog.Logger) *Processor {
	return &Processor{dispatcher: d, categorizer: c, log: log}
}

// RunSource lists documents from src and processes them.
func (p *Processor) RunSource(ctx context.Context, src Source) (*RunReport, error) {
	docs, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return p.Run(ctx, docs)
}

// Run processes docs one at a time in order. Documents that cannot be
// processed are logged and counted as skipped; the run continues. Records are
// returned sorted by date. The only error is context cancellation, returned
// alongside the partial report.
func (p *Processor) Run(ctx context.Context, docs []models.Document) (*RunReport, error) {
	report := &RunReport{
		RunID:      uuid.NewString(),
		Records:    []models.Record{},
		Categories: categorizer.Stats{ByCategory: map[string]int{}},
	}
	log := p.log.With().Str("run_id", report.RunID).Logger()
	ctx = logger.WithContext(ctx, log)

	report.Stats.Queried = len(docs)
	log.Info().Int("documents", len(docs)).Msg("starting run")

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			p.finish(report, log)
			return report, err
		}
		p.processDocument(ctx, doc, report, log)
	}

	p.finish(report, log)
	return report, nil
}

func (p *Processor) processDocument(ctx context.Context, doc models.Document, report *RunReport, log zerolog.Logger) {
	dlog := log.With().Int("document_id", doc.ID).Str("correspondent", doc.Correspondent).Logger()

	if strings.TrimSpace(doc.Correspondent) == "" {
		dlog.Warn().Msg("skipping document: no correspondent")
		report.Stats.SkippedNoCorrespondent++
		report.skip(doc.ID, "", ErrNoCorrespondent)
		return
	}

	out, err := p.dispatcher.Extract(ctx, doc)
	switch {
	case errors.Is(err, ErrNoParser):
		dlog.Warn().Msg("skipping document: unsupported institution")
		report.Stats.SkippedUnknown++
		report.skip(doc.ID, "", err)
		return
	case err != nil:
		dlog.Error().Err(err).Msg("skipping document: extraction failed")
		report.Stats.SkippedParseError++
		report.skip(doc.ID, "", err)
		return
	case len(out.Transactions) == 0:
		dlog.Warn().Str("institution", string(out.Institution)).Msg("skipping document: no transactions extracted")
		report.Stats.SkippedParseError++
		report.skip(doc.ID, out.Institution, ErrNoTransactions)
		return
	}

	stats := p.categorizer.CategorizeAll(out.Transactions)
	report.Categories.Merge(stats)

	for _, txn := range out.Transactions {
		report.Records = append(report.Records, models.Record{
			Transaction:   txn,
			Institution:   out.Institution,
			AccountNumber: out.AccountNumber,
			DocumentID:    doc.ID,
		})
	}
	report.Documents = append(report.Documents, DocumentResult{DocumentID: doc.ID, Outcome: out})
	report.Stats.Processed++
	report.Stats.TotalTransactions += len(out.Transactions)

	dlog.Info().
		Str("institution", string(out.Institution)).
		Str("method", out.Method).
		Str("account", out.AccountNumber).
		Int("transactions", len(out.Transactions)).
		Msg("document processed")
}

func (r *RunReport) skip(id int, inst models.Institution, err error) {
	r.Documents = append(r.Documents, DocumentResult{DocumentID: id, Outcome: models.FailedOutcome(inst, err)})
}

func (p *Processor) finish(report *RunReport, log zerolog.Logger) {
	SortRecords(report.Records)
	log.Info().
		Int("processed", report.Stats.Processed).
		Int("skipped", report.Stats.Skipped()).
		Int("transactions", report.Stats.TotalTransactions).
		Msg("run complete")
}

// SortRecords orders records by date, keeping discovery order for ties.
func SortRecords(records []models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date < records[j].Date
	})
}
