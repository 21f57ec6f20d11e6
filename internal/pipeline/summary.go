package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-processor/internal/models"
)

// Summary totals a set of records.
type Summary struct {
	Transactions  int                        `json:"transactions"`
	TotalDebits   decimal.Decimal            `json:"total_debits"`
	TotalCredits  decimal.Decimal            `json:"total_credits"`
	Net           decimal.Decimal            `json:"net"`
	Categorized   int                        `json:"categorized"`
	ByInstitution map[models.Institution]int `json:"by_institution"`
}

// Summarize totals records. isCategorized decides which records count as
// categorized; nil counts every record with a category.
func Summarize(records []models.Record, isCategorized func(models.Transaction) bool) Summary {
	s := Summary{
		Transactions:  len(records),
		TotalDebits:   decimal.Zero,
		TotalCredits:  decimal.Zero,
		ByInstitution: make(map[models.Institution]int),
	}
	if isCategorized == nil {
		isCategorized = func(t models.Transaction) bool { return t.Category != "" }
	}

	for _, r := range records {
		s.TotalDebits = s.TotalDebits.Add(decimal.NewFromFloat(r.Debit))
		s.TotalCredits = s.TotalCredits.Add(decimal.NewFromFloat(r.Credit))
		if isCategorized(r.Transaction) {
			s.Categorized++
		}
		s.ByInstitution[r.Institution]++
	}
	s.Net = s.TotalCredits.Sub(s.TotalDebits)
	return s
}

// CategorizedPercent returns the share of categorized records, 0-100.
func (s Summary) CategorizedPercent() float64 {
	if s.Transactions == 0 {
		return 0
	}
	return float64(s.Categorized) * 100 / float64(s.Transactions)
}
