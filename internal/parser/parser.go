package parser

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/models"
)

var (
	// ErrNoContent is returned when a parser is called without document text.
	ErrNoContent = errors.New("no document content")
	// ErrUnsupportedInstitution is returned by lookups for unknown correspondents.
	ErrUnsupportedInstitution = errors.New("unsupported institution")
)

// Parser defines the interface for bank statement parsers.
type Parser interface {
	// Parse takes the text of each statement page and returns the extracted
	// statement. A nil pages slice is rejected with ErrNoContent; empty text
	// yields an outcome with no transactions.
	Parse(pages []string) (*models.ParseOutcome, error)
	// BankName returns the human-readable bank name.
	BankName() string
	// Institution returns the institution this parser handles.
	Institution() models.Institution
}

// Registry maps correspondent identifiers to parsers. Keys are matched
// case-insensitively after trimming.
type Registry struct {
	byAlias map[string]Parser
	byInst  map[models.Institution]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAlias: make(map[string]Parser),
		byInst:  make(map[models.Institution]Parser),
	}
}

// DefaultRegistry returns a registry with the CBA and ANZ parsers and their
// known correspondent names and document-service ids.
func DefaultRegistry(log zerolog.Logger) *Registry {
	r := NewRegistry()
	r.Register(NewCBAParser(log), "133", "CBA", "Commonwealth Bank")
	r.Register(NewANZParser(log), "11", "ANZ", "ANZ Bank")
	return r
}

// Register adds p under its institution name and the given aliases.
func (r *Registry) Register(p Parser, aliases ...string) {
	r.byInst[p.Institution()] = p
	r.byAlias[normalizeKey(string(p.Institution()))] = p
	for _, a := range aliases {
		r.byAlias[normalizeKey(a)] = p
	}
}

// Lookup returns the parser registered for a correspondent identifier.
func (r *Registry) Lookup(correspondent string) (Parser, error) {
	if p, ok := r.byAlias[normalizeKey(correspondent)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedInstitution, correspondent)
}

// ForInstitution returns the parser for a known institution.
func (r *Registry) ForInstitution(inst models.Institution) (Parser, error) {
	if p, ok := r.byInst[inst]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedInstitution, inst)
}

// Aliases lists every registered key in sorted order.
func (r *Registry) Aliases() []string {
	keys := make([]string, 0, len(r.byAlias))
	for k := range r.byAlias {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var anzWordPattern = regexp.MustCompile(`\bANZ\b`)

// AutoDetect tries to identify the bank from the statement text.
func AutoDetect(pages []string) (models.Institution, error) {
	combined := strings.Join(pages, "\n")

	if containsAny(combined, "Commonwealth Bank", "CommBank", "commbank.com.au", "NetBank") {
		return models.InstitutionCBA, nil
	}
	if anzWordPattern.MatchString(combined) || containsAny(combined, "anz.com", "Australia and New Zealand Banking") {
		return models.InstitutionANZ, nil
	}

	return "", fmt.Errorf("could not auto-detect bank from statement content; please specify --bank flag")
}
