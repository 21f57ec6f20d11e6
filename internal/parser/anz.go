package parser

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/models"
)

// anzLineStart matches "processed-date transaction-date card/ref" at the start of a line.
var anzLineStart = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{4})\s+(\d{1,2}/\d{1,2}/\d{4})\s+(\S+)(?:\s+|$)`)

// ANZParser handles ANZ statements.
//
// ANZ format notes:
//   - Each transaction is a single line
//   - Columns: Processed Date | Transaction Date | Card | Description | Amount | Balance
//   - Credits carry a CR suffix on the amount, debits have none
type ANZParser struct {
	log zerolog.Logger
}

// NewANZParser returns an ANZ parser logging discarded lines to log.
func NewANZParser(log zerolog.Logger) *ANZParser {
	return &ANZParser{log: log.With().Str("parser", "anz").Logger()}
}

func (p *ANZParser) BankName() string { return "ANZ" }

func (p *ANZParser) Institution() models.Institution { return models.InstitutionANZ }

func (p *ANZParser) Parse(pages []string) (*models.ParseOutcome, error) {
	if pages == nil {
		return nil, ErrNoContent
	}

	text := strings.Join(pages, "\n")
	info := &models.ParseOutcome{
		Institution:  models.InstitutionANZ,
		Method:       models.MethodText,
		Transactions: []models.Transaction{},
	}
	info.AccountNumber = extractLabeledValue(text, "Account Number", isDigitOrDash)
	info.StatementPeriod = extractLabeledLine(text, "Statement Period")

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		m := anzLineStart.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if txn, ok := p.parseLine(m[1], m[2], strings.Fields(line[len(m[0]):])); ok {
			info.Transactions = append(info.Transactions, txn)
		}
	}

	return info, nil
}

func (p *ANZParser) parseLine(processed, txnDate string, tokens []string) (models.Transaction, bool) {
	date, ok := parseSlashDate(processed)
	if !ok {
		p.log.Debug().Str("date", processed).Msg("discarding line with invalid date")
		return models.Transaction{}, false
	}

	desc, amount, credit, ok := resolveANZAmount(tokens)
	if !ok {
		if desc != "" {
			p.log.Warn().Str("date", date).Str("description", desc).
				Msg("could not extract amount from transaction line")
		}
		return models.Transaction{}, false
	}
	if desc == "" {
		p.log.Warn().Str("date", date).Msg("transaction line has an amount but no description")
		return models.Transaction{}, false
	}

	if txnDate != processed {
		desc += " [Txn Date: " + txnDate + "]"
	}

	txn := models.Transaction{Date: date, Description: desc}
	if credit {
		txn.Credit = amount
	} else {
		txn.Debit = amount
	}
	return txn, true
}

// resolveANZAmount reads "<description...> $amount[CR] $balance[CR|DR]" from
// the right. The balance suffix may be attached or a separate token.
func resolveANZAmount(tokens []string) (desc string, amount float64, credit bool, ok bool) {
	bal := -1
	for i := len(tokens) - 1; i >= 0; i-- {
		if isDollarAmount(tokens[i]) || suffixedAmountPattern.MatchString(tokens[i]) {
			bal = i
			break
		}
	}
	if bal < 0 {
		return strings.Join(tokens, " "), 0, false, false
	}

	j := bal - 1
	if j >= 0 && strings.EqualFold(tokens[j], "CR") {
		credit = true
		j--
	}
	if j < 0 {
		return "", 0, false, false
	}

	tok := tokens[j]
	if m := suffixedAmountPattern.FindStringSubmatch(tok); m != nil && strings.EqualFold(m[2], "CR") {
		credit = true
		tok = m[1]
	}
	if !isDollarAmount(tok) {
		return strings.Join(tokens[:bal], " "), 0, false, false
	}

	amount, ok = parseAmount(tok)
	if !ok {
		return strings.Join(tokens[:j], " "), 0, false, false
	}
	return strings.Join(tokens[:j], " "), amount, credit, true
}
