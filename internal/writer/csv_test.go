package writer

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/insightdelivered/statement-processor/internal/models"
)

func sampleRecords() []models.Record {
	return []models.Record{
		{
			Transaction:   models.Transaction{Date: "2025-05-30", Description: "Salary ACME CORPORATION", Credit: 5000, Category: "Income"},
			Institution:   models.InstitutionCBA,
			AccountNumber: "06 4144 10181166",
			DocumentID:    1,
		},
		{
			Transaction:   models.Transaction{Date: "2025-07-07", Description: "SPOTIFY, SYDNEY", Debit: 19.99, Category: "Subscriptions"},
			Institution:   models.InstitutionANZ,
			AccountNumber: "1234-567890",
			DocumentID:    2,
		},
	}
}

func TestCSVWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{IncludeHeader: true, Meta: Metadata{RunID: "run-1", Documents: 2, Skipped: 1}}
	if err := w.Write(&buf, sampleRecords()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "# Run ID,run-1") {
		t.Error("expected run id metadata")
	}
	if !strings.Contains(output, "# Skipped,1") {
		t.Error("expected skipped metadata")
	}
	if !strings.Contains(output, "Date,Description,Debit,Credit,Category,Institution,Account,Document ID") {
		t.Error("expected column headers")
	}
	if !strings.Contains(output, "2025-05-30,Salary ACME CORPORATION,,5000.00,Income,Commonwealth Bank,06 4144 10181166,1") {
		t.Errorf("expected credit row, got:\n%s", output)
	}
	if !strings.Contains(output, `"SPOTIFY, SYDNEY",19.99,`) {
		t.Errorf("expected quoted description with debit, got:\n%s", output)
	}
}

func TestCSVWriter_NoHeader(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{Meta: Metadata{RunID: "run-1"}}
	if err := w.Write(&buf, sampleRecords()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0][0] != "Date" {
		t.Errorf("first row: got %q, want %q", rows[0][0], "Date")
	}
	if rows[2][2] != "19.99" || rows[2][3] != "" {
		t.Errorf("debit row: got debit %q credit %q", rows[2][2], rows[2][3])
	}
}

func TestCSVWriter_Empty(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{}
	if err := w.Write(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Errorf("expected only header line, got %d lines", len(lines))
	}
}

func TestCSVWriter_WriteToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w := &CSVWriter{}
	if err := w.WriteToFile(path, sampleRecords()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "Date,") {
		t.Errorf("unexpected file contents: %s", data)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, ""},
		{45.6, "45.60"},
		{1234.5, "1234.50"},
		{0.1 + 0.2, "0.30"},
	}

	for _, tt := range tests {
		if got := formatAmount(tt.amount); got != tt.want {
			t.Errorf("formatAmount(%v): got %q, want %q", tt.amount, got, tt.want)
		}
	}
}
