package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	// $1,234.56 or $12
	dollarAmountPattern = regexp.MustCompile(`^\$\d[\d,]*(?:\.\d{1,2})?$`)
	// 1,234.56 with mandatory cents, as printed in the debit column
	bareAmountPattern = regexp.MustCompile(`^\d[\d,]*\.\d{2}$`)
	// $1,234.56CR with the balance suffix attached
	suffixedAmountPattern = regexp.MustCompile(`(?i)^(\$\d[\d,]*(?:\.\d{1,2})?)(CR|DR)$`)
	// DD/MM/YYYY
	slashDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	yearPattern      = regexp.MustCompile(`\b(\d{4})\b`)
)

var monthAbbrevs = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// parseAmount converts "$1,234.56" or "1234.56" to a float64. The second
// return value is false when the text is not numeric once currency markers
// and thousands separators are removed.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00A0", "") // non-breaking space

	if s == "" {
		return 0, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Round(2).Float64()
	return f, true
}

func isDollarAmount(tok string) bool { return dollarAmountPattern.MatchString(tok) }

func isBareAmount(tok string) bool { return bareAmountPattern.MatchString(tok) }

func isBalanceSuffix(tok string) bool {
	return strings.EqualFold(tok, "CR") || strings.EqualFold(tok, "DR")
}

// monthNumber returns 1-12 for a month name or abbreviation, or 0.
func monthNumber(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 3 {
		return 0
	}
	for i, m := range monthAbbrevs {
		if name[:3] == m {
			return i + 1
		}
	}
	return 0
}

func validDate(day, month, year int) bool {
	return day >= 1 && day <= 31 && month >= 1 && month <= 12 && year >= 1900
}

func isoDate(day, month, year int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// periodYears returns the first and last four-digit years in a statement
// period label such as "1 May 2025 - 31 Oct 2025". Missing years fall back
// to the given year.
func periodYears(period string, fallback int) (start, end int) {
	start, end = fallback, fallback
	matches := yearPattern.FindAllString(period, -1)
	if len(matches) == 0 {
		return start, end
	}
	if y, err := strconv.Atoi(matches[0]); err == nil {
		start = y
	}
	end = start
	if y, err := strconv.Atoi(matches[len(matches)-1]); err == nil {
		end = y
	}
	return start, end
}

// resolveShortDate turns a year-less "D Mon" date into ISO form. Statements
// spanning a year boundary put January-June in the end year and
// July-December in the start year.
func resolveShortDate(day, month string, startYear, endYear int) (string, bool) {
	d, err := strconv.Atoi(day)
	if err != nil {
		return "", false
	}
	m := monthNumber(month)

	year := startYear
	if m <= 6 && startYear != endYear {
		year = endYear
	}

	if !validDate(d, m, year) {
		return "", false
	}
	return isoDate(d, m, year), true
}

// parseSlashDate converts DD/MM/YYYY to ISO form.
func parseSlashDate(s string) (string, bool) {
	m := slashDatePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if !validDate(day, month, year) {
		return "", false
	}
	return isoDate(day, month, year), true
}

// labelValueStart returns the text following label (case-insensitive) with
// leading separators removed, or false when the label is absent.
func labelValueStart(text, label string) (string, bool) {
	i := indexFold(text, label)
	if i < 0 || label == "" {
		return "", false
	}
	rest := strings.TrimLeftFunc(text[i+len(label):], func(r rune) bool {
		return unicode.IsSpace(r) || r == ':'
	})
	return rest, true
}

// extractLabeledValue reads the value after a label up to the end of the
// line. A run of spaces only continues the value when the next character
// satisfies internal, so "06 4144 10181166   Page 1" yields the number alone.
func extractLabeledValue(text, label string, internal func(rune) bool) string {
	rest, ok := labelValueStart(text, label)
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}

	runes := []rune(rest)
	var b strings.Builder
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j >= len(runes) || !internal(runes[j]) {
			break
		}
		b.WriteString(string(runes[i:j]))
		i = j - 1
	}
	return strings.TrimSpace(b.String())
}

// extractLabeledLine returns the rest of the line following label, trimmed.
func extractLabeledLine(text, label string) string {
	rest, ok := labelValueStart(text, label)
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isDigitOrDash(r rune) bool { return isDigit(r) || r == '-' }

func containsAny(text string, needles ...string) bool {
	lower := strings.ToLower(text)
	for _, needle := range needles {
		if needle != "" && strings.Contains(lower, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}

// indexFold returns the byte offset of the first case-insensitive match of
// label in text, or -1.
func indexFold(text, label string) int {
	for i := 0; i+len(label) <= len(text); i++ {
		if strings.EqualFold(text[i:i+len(label)], label) {
			return i
		}
	}
	return -1
}
