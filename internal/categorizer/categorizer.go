// Package categorizer assigns spending categories to transactions using an
// ordered list of case-insensitive regular expression rules.
package categorizer

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/models"
)

// DefaultCategory is used when no default is configured.
const DefaultCategory = "Uncategorised"

// RuleSpec is an uncompiled pattern/category pair as read from configuration.
type RuleSpec struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Category string `yaml:"category" json:"category"`
}

// Rule is a compiled categorization rule. A rule whose pattern failed to
// compile keeps Err set and never matches.
type Rule struct {
	Pattern  string
	Category string
	Err      error

	re *regexp.Regexp
}

// CompileRule compiles a pattern for case-insensitive matching.
func CompileRule(rs RuleSpec) Rule {
	r := Rule{Pattern: rs.Pattern, Category: rs.Category}
	re, err := regexp.Compile("(?i)" + rs.Pattern)
	if err != nil {
		r.Err = fmt.Errorf("compile pattern %q: %w", rs.Pattern, err)
		return r
	}
	r.re = re
	return r
}

// Categorizer applies rules in order; the first match wins.
type Categorizer struct {
	rules           []Rule
	defaultCategory string
	log             zerolog.Logger
}

// Stats summarises one CategorizeAll call.
type Stats struct {
	Total      int
	Specific   int
	Default    int
	ByCategory map[string]int
}

// New compiles specs into a Categorizer. Patterns that fail to compile are
// logged and kept as inert rules so rule positions stay stable.
func New(specs []RuleSpec, defaultCategory string, log zerolog.Logger) *Categorizer {
	if defaultCategory == "" {
		defaultCategory = DefaultCategory
	}
	c := &Categorizer{defaultCategory: defaultCategory, log: log}
	for _, rs := range specs {
		r := CompileRule(rs)
		if r.Err != nil {
			log.Warn().Err(r.Err).Str("category", rs.Category).Msg("invalid category pattern")
		}
		c.rules = append(c.rules, r)
	}
	return c
}

// DefaultCategory returns the fallback category name.
func (c *Categorizer) DefaultCategory() string { return c.defaultCategory }

// Rules returns the rules in evaluation order.
func (c *Categorizer) Rules() []Rule { return c.rules }

// Categorize sets txn.Category if it is empty. Already categorized
// transactions are left untouched.
func (c *Categorizer) Categorize(txn *models.Transaction) {
	if txn == nil || txn.Category != "" {
		return
	}
	txn.Category = c.Match(txn.Description)
}

// Match returns the category for a description.
func (c *Categorizer) Match(description string) string {
	if description == "" {
		return c.defaultCategory
	}
	for i, r := range c.rules {
		if r.re == nil {
			c.log.Debug().Int("rule", i).Str("pattern", r.Pattern).Msg("skipping rule with invalid pattern")
			continue
		}
		if r.re.MatchString(description) {
			return r.Category
		}
	}
	return c.defaultCategory
}

// IsCategorized reports whether txn carries a category other than the default.
func (c *Categorizer) IsCategorized(txn models.Transaction) bool {
	return txn.Category != "" && txn.Category != c.defaultCategory
}

// CategorizeAll categorizes txns in place and logs a summary.
func (c *Categorizer) CategorizeAll(txns []models.Transaction) Stats {
	stats := Stats{Total: len(txns), ByCategory: make(map[string]int)}
	for i := range txns {
		c.Categorize(&txns[i])
		stats.ByCategory[txns[i].Category]++
		if c.IsCategorized(txns[i]) {
			stats.Specific++
		} else {
			stats.Default++
		}
	}

	c.log.Info().
		Int("categorised", stats.Specific).
		Int("default", stats.Default).
		Int("total", stats.Total).
		Msgf("Categorisation complete: %d categorised, %d default, %d total", stats.Specific, stats.Default, stats.Total)
	for _, name := range stats.Categories() {
		c.log.Debug().Str("category", name).Int("count", stats.ByCategory[name]).Msg("category count")
	}
	return stats
}

// Categories returns the category names seen, sorted.
func (s Stats) Categories() []string {
	names := make([]string, 0, len(s.ByCategory))
	for name := range s.ByCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge adds other into s.
func (s *Stats) Merge(other Stats) {
	if s.ByCategory == nil {
		s.ByCategory = make(map[string]int)
	}
	s.Total += other.Total
	s.Specific += other.Specific
	s.Default += other.Default
	for k, v := range other.ByCategory {
		s.ByCategory[k] += v
	}
}
