package parser

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCBAParser_Parse(t *testing.T) {
	p := NewCBAParser(zerolog.Nop())

	pages := []string{
		`Commonwealth Bank of Australia
Your Statement
Account Number 06 4144 10181166
Statement Period 1 May 2025 - 31 Oct 2025

Date Transaction Debit Credit Balance
01 May 2025 OPENING BALANCE $0.00 CR
30 May Salary ACME CORPORATION $5,000.00 $5,000.00 CR
02 Jun Card xx1234
WOOLWORTHS 1234 SYDNEY AU
45.60 $4,954.40 CR
15 Jul Direct Debit 123456 NETFLIX 22.99 $4,931.41 CR`,
	}

	info, err := p.Parse(pages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if info.AccountNumber != "06 4144 10181166" {
		t.Errorf("account number: got %q, want %q", info.AccountNumber, "06 4144 10181166")
	}
	if info.StatementPeriod != "1 May 2025 - 31 Oct 2025" {
		t.Errorf("statement period: got %q, want %q", info.StatementPeriod, "1 May 2025 - 31 Oct 2025")
	}

	if len(info.Transactions) != 3 {
		t.Fatalf("transactions: got %d, want 3", len(info.Transactions))
	}

	// Salary credit must land in the credit column
	txn := info.Transactions[0]
	if txn.Date != "2025-05-30" {
		t.Errorf("txn[0].Date: got %q, want %q", txn.Date, "2025-05-30")
	}
	if txn.Description != "Salary ACME CORPORATION" {
		t.Errorf("txn[0].Description: got %q, want %q", txn.Description, "Salary ACME CORPORATION")
	}
	if txn.Credit != 5000 || txn.Debit != 0 {
		t.Errorf("txn[0]: got debit %f credit %f, want debit 0 credit 5000", txn.Debit, txn.Credit)
	}

	// Wrapped description joined with spaces
	txn = info.Transactions[1]
	if txn.Date != "2025-06-02" {
		t.Errorf("txn[1].Date: got %q, want %q", txn.Date, "2025-06-02")
	}
	if txn.Description != "Card xx1234 WOOLWORTHS 1234 SYDNEY AU" {
		t.Errorf("txn[1].Description: got %q", txn.Description)
	}
	if txn.Debit != 45.60 || txn.Credit != 0 {
		t.Errorf("txn[1]: got debit %f credit %f, want debit 45.60 credit 0", txn.Debit, txn.Credit)
	}

	txn = info.Transactions[2]
	if txn.Date != "2025-07-15" {
		t.Errorf("txn[2].Date: got %q, want %q", txn.Date, "2025-07-15")
	}
	if txn.Debit != 22.99 {
		t.Errorf("txn[2].Debit: got %f, want %f", txn.Debit, 22.99)
	}
}

func TestCBAParser_YearBoundary(t *testing.T) {
	p := NewCBAParser(zerolog.Nop())

	pages := []string{`Statement Period 1 Nov 2024 - 30 Apr 2025
28 Dec Gift shop 10.00 $90.00 CR
03 Jan Refund $5.00 $95.00 CR`}

	info, err := p.Parse(pages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(info.Transactions) != 2 {
		t.Fatalf("transactions: got %d, want 2", len(info.Transactions))
	}
	if got := info.Transactions[0].Date; got != "2024-12-28" {
		t.Errorf("december date: got %q, want %q", got, "2024-12-28")
	}
	if got := info.Transactions[1].Date; got != "2025-01-03" {
		t.Errorf("january date: got %q, want %q", got, "2025-01-03")
	}
}

func TestCBAParser_FallbackYear(t *testing.T) {
	p := NewCBAParser(zerolog.Nop())
	p.FallbackYear = 2022

	info, err := p.Parse([]string{"4 Mar Coffee 4.50 $95.50 CR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(info.Transactions) != 1 {
		t.Fatalf("transactions: got %d, want 1", len(info.Transactions))
	}
	if got := info.Transactions[0].Date; got != "2022-03-04" {
		t.Errorf("got %q, want %q", got, "2022-03-04")
	}
}

func TestCBAParser_DiscardsUnresolvableLines(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewCBAParser(zerolog.New(buf))

	pages := []string{`Statement Period 1 May 2025 - 31 Oct 2025
35 May Bad day 10.00 $90.00 CR
3 May Note without amounts
4 May Coffee 4.50 $85.50 CR`}

	info, err := p.Parse(pages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(info.Transactions) != 1 {
		t.Fatalf("transactions: got %d, want 1", len(info.Transactions))
	}
	if info.Transactions[0].Description != "Coffee" {
		t.Errorf("got %q, want %q", info.Transactions[0].Description, "Coffee")
	}
	if !strings.Contains(buf.String(), "Note without amounts") {
		t.Errorf("expected warning for line without amounts, got: %s", buf.String())
	}
}

func TestCBAParser_EmptyAndMissingContent(t *testing.T) {
	p := NewCBAParser(zerolog.Nop())

	if _, err := p.Parse(nil); !errors.Is(err, ErrNoContent) {
		t.Errorf("nil pages: got %v, want ErrNoContent", err)
	}

	info, err := p.Parse([]string{""})
	if err != nil {
		t.Fatalf("empty content: unexpected error: %v", err)
	}
	if info.Transactions == nil || len(info.Transactions) != 0 {
		t.Errorf("empty content: got %v, want empty transaction list", info.Transactions)
	}
}

func TestCBAParser_BankName(t *testing.T) {
	p := NewCBAParser(zerolog.Nop())
	if p.BankName() != "Commonwealth Bank" {
		t.Errorf("got %q, want %q", p.BankName(), "Commonwealth Bank")
	}
}
