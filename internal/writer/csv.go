package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-processor/internal/models"
)

// Columns is the header row of the transaction CSV.
var Columns = []string{"Date", "Description", "Debit", "Credit", "Category", "Institution", "Account", "Document ID"}

// Metadata is written above the column header when IncludeHeader is set.
type Metadata struct {
	RunID       string
	Source      string
	Documents   int
	Skipped     int
	GeneratedAt string
}

// CSVWriter writes categorized records to CSV format.
type CSVWriter struct {
	IncludeHeader bool
	Meta          Metadata
}

// WriteToFile writes records to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, records []models.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	if err := w.Write(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write writes records in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, records []models.Record) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		for _, row := range w.metadataRows() {
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}

	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.Date,
			r.Description,
			formatAmount(r.Debit),
			formatAmount(r.Credit),
			r.Category,
			r.Institution.DisplayName(),
			r.AccountNumber,
			strconv.Itoa(r.DocumentID),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (w *CSVWriter) metadataRows() [][]string {
	var rows [][]string
	m := w.Meta
	if m.RunID != "" {
		rows = append(rows, []string{"# Run ID", m.RunID})
	}
	if m.Source != "" {
		rows = append(rows, []string{"# Source", m.Source})
	}
	if m.GeneratedAt != "" {
		rows = append(rows, []string{"# Generated", m.GeneratedAt})
	}
	if m.Documents > 0 {
		rows = append(rows, []string{"# Documents", strconv.Itoa(m.Documents)})
		rows = append(rows, []string{"# Skipped", strconv.Itoa(m.Skipped)})
	}
	return rows
}

// formatAmount renders a non-zero amount with two decimals; zero is blank.
func formatAmount(amount float64) string {
	if amount == 0 {
		return ""
	}
	return decimal.NewFromFloat(amount).StringFixed(2)
}
