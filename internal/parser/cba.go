package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/models"
)

// cbaLineStart matches the "D Mon" prefix of a CBA transaction line.
var cbaLineStart = regexp.MustCompile(`(?i)^(\d{1,2})\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)(?:\s+|$)`)

// CBAParser handles Commonwealth Bank statements.
//
// CBA format notes:
//   - Dates are "D Mon" without a year; the year comes from the statement period
//   - Long descriptions wrap onto following lines
//   - Columns: Date | Transaction | Debit | Credit | Balance
//   - Debits are bare numbers, credits are $-prefixed, balances end in CR
type CBAParser struct {
	// FallbackYear is used when the statement period carries no year.
	// Zero means the current year.
	FallbackYear int

	log zerolog.Logger
}

// NewCBAParser returns a CBA parser logging discarded lines to log.
func NewCBAParser(log zerolog.Logger) *CBAParser {
	return &CBAParser{log: log.With().Str("parser", "cba").Logger()}
}

func (p *CBAParser) BankName() string { return "Commonwealth Bank" }

func (p *CBAParser) Institution() models.Institution { return models.InstitutionCBA }

type cbaEntry struct {
	day, month string
	body       string
}

func (p *CBAParser) Parse(pages []string) (*models.ParseOutcome, error) {
	if pages == nil {
		return nil, ErrNoContent
	}

	text := strings.Join(pages, "\n")
	info := &models.ParseOutcome{
		Institution:  models.InstitutionCBA,
		Method:       models.MethodText,
		Transactions: []models.Transaction{},
	}
	info.AccountNumber = extractLabeledValue(text, "Account Number", isDigit)
	info.StatementPeriod = extractLabeledLine(text, "Statement Period")

	startYear, endYear := periodYears(info.StatementPeriod, p.fallbackYear())

	var current *cbaEntry
	flush := func() {
		if current == nil {
			return
		}
		if txn, ok := p.buildTransaction(current, startYear, endYear); ok {
			info.Transactions = append(info.Transactions, txn)
		}
		current = nil
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := cbaLineStart.FindStringSubmatch(line); m != nil {
			flush()
			current = &cbaEntry{day: m[1], month: m[2], body: strings.TrimSpace(line[len(m[0]):])}
			continue
		}

		// Continuation of a wrapped description
		if current != nil {
			current.body = strings.TrimSpace(current.body + " " + line)
		}
	}
	flush()

	return info, nil
}

func (p *CBAParser) buildTransaction(e *cbaEntry, startYear, endYear int) (models.Transaction, bool) {
	date, ok := resolveShortDate(e.day, e.month, startYear, endYear)
	if !ok {
		p.log.Debug().Str("day", e.day).Str("month", e.month).Msg("discarding line with invalid date")
		return models.Transaction{}, false
	}

	cols := resolveColumns(strings.Fields(e.body))
	if !cols.hasAmount() {
		if cols.Description != "" {
			p.log.Warn().Str("date", date).Str("description", cols.Description).
				Msg("could not extract amount from transaction line")
		}
		return models.Transaction{}, false
	}
	if cols.Description == "" {
		p.log.Warn().Str("date", date).Msg("transaction line has amounts but no description")
		return models.Transaction{}, false
	}

	return models.Transaction{
		Date:        date,
		Description: cols.Description,
		Debit:       cols.Debit,
		Credit:      cols.Credit,
	}, true
}

func (p *CBAParser) fallbackYear() int {
	if p.FallbackYear > 0 {
		return p.FallbackYear
	}
	return time.Now().Year()
}
