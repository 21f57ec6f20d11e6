package parser

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/models"
)

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry(zerolog.Nop())

	tests := []struct {
		key      string
		expected models.Institution
	}{
		{"133", models.InstitutionCBA},
		{"CBA", models.InstitutionCBA},
		{"cba", models.InstitutionCBA},
		{"Commonwealth Bank", models.InstitutionCBA},
		{"  commonwealth bank ", models.InstitutionCBA},
		{"11", models.InstitutionANZ},
		{"ANZ", models.InstitutionANZ},
		{"anz bank", models.InstitutionANZ},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p, err := r.Lookup(tt.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Institution() != tt.expected {
				t.Errorf("got %q, want %q", p.Institution(), tt.expected)
			}
		})
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := DefaultRegistry(zerolog.Nop())

	for _, key := range []string{"", "Westpac", "999"} {
		if _, err := r.Lookup(key); !errors.Is(err, ErrUnsupportedInstitution) {
			t.Errorf("Lookup(%q): got %v, want ErrUnsupportedInstitution", key, err)
		}
	}
}

type stubParser struct{}

func (stubParser) Parse(pages []string) (*models.ParseOutcome, error) {
	return &models.ParseOutcome{Institution: "westpac"}, nil
}
func (stubParser) BankName() string                { return "Westpac" }
func (stubParser) Institution() models.Institution { return "westpac" }

func TestRegistry_Register(t *testing.T) {
	r := DefaultRegistry(zerolog.Nop())
	r.Register(stubParser{}, "Westpac Banking Corporation", "7")

	for _, key := range []string{"westpac", "7", "WESTPAC BANKING CORPORATION"} {
		p, err := r.Lookup(key)
		if err != nil {
			t.Fatalf("Lookup(%q): unexpected error: %v", key, err)
		}
		if p.BankName() != "Westpac" {
			t.Errorf("Lookup(%q): got %q, want %q", key, p.BankName(), "Westpac")
		}
	}

	if _, err := r.ForInstitution("westpac"); err != nil {
		t.Errorf("ForInstitution: unexpected error: %v", err)
	}
}

func TestAutoDetect(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected models.Institution
		wantErr  bool
	}{
		{"cba", "Commonwealth Bank of Australia\nAccount Number 06 4144", models.InstitutionCBA, false},
		{"commbank", "Enquiries: commbank.com.au", models.InstitutionCBA, false},
		{"anz", "ANZ ACCESS ADVANTAGE STATEMENT", models.InstitutionANZ, false},
		{"unknown", "Some Other Bank", "", true},
		{"anz inside word", "TANZANIA TRAVEL", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AutoDetect([]string{tt.text})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
