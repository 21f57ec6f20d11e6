package models

import "strings"

// Transaction represents a single bank statement transaction.
type Transaction struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	Description string  `json:"description"`
	Debit       float64 `json:"debit"`  // 0 when not a debit
	Credit      float64 `json:"credit"` // 0 when not a credit
	Category    string  `json:"category,omitempty"`
}

// Institution identifies a supported bank.
type Institution string

const (
	InstitutionCBA Institution = "cba"
	InstitutionANZ Institution = "anz"
)

// DisplayName returns the human-readable bank name.
func (i Institution) DisplayName() string {
	switch i {
	case InstitutionCBA:
		return "Commonwealth Bank"
	case InstitutionANZ:
		return "ANZ"
	default:
		return strings.ToUpper(string(i))
	}
}

// Extraction methods recorded on a ParseOutcome.
const (
	MethodText = "text"
	MethodAI   = "ai"
)

// ParseOutcome is the result of extracting one statement.
type ParseOutcome struct {
	Institution     Institution   `json:"institution"`
	AccountNumber   string        `json:"account_number"`
	StatementPeriod string        `json:"statement_period"`
	Method          string        `json:"method"`
	Transactions    []Transaction `json:"transactions"`
	Error           string        `json:"error,omitempty"`
}

// FailedOutcome builds an outcome carrying only a diagnostic.
func FailedOutcome(inst Institution, err error) *ParseOutcome {
	return &ParseOutcome{Institution: inst, Error: err.Error()}
}

// OK reports whether the outcome represents a successful extraction.
func (o *ParseOutcome) OK() bool {
	return o != nil && o.Error == ""
}

// Document is a statement handed to the pipeline by a document source.
// A nil Pages slice means the source had no text content for it.
type Document struct {
	ID            int
	Correspondent string
	Pages         []string
	Path          string
}

// Record is a categorized transaction tagged with its source document.
type Record struct {
	Transaction
	Institution   Institution `json:"institution"`
	AccountNumber string      `json:"account_number"`
	DocumentID    int         `json:"document_id"`
}
