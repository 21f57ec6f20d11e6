package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/insightdelivered/statement-processor/internal/models"
)

// isoDatePattern checks shape only; calendar validity is not enforced on
// model output.
var isoDatePattern = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)

// ValidationError describes why a model response was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid AI response: %s %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ParseResponse validates a model answer and converts it to an outcome.
//
// The response must be an object with string account_number and
// statement_period and a transactions array. Every transaction needs a
// YYYY-MM-DD date, a string description, debit and credit that are null or
// non-negative numbers, and a non-negative numeric balance. Any violation
// rejects the whole response. Null debit/credit become zero; the balance is
// checked but not kept.
func ParseResponse(raw string) (*models.ParseOutcome, error) {
	clean := cleanModelJSON(raw)

	top, err := decodeObject(json.RawMessage(clean), "response")
	if err != nil {
		return nil, err
	}

	account, err := requireString(top, "account_number", "account_number")
	if err != nil {
		return nil, err
	}
	period, err := requireString(top, "statement_period", "statement_period")
	if err != nil {
		return nil, err
	}

	rawTxns, ok := top["transactions"]
	if !ok {
		return nil, invalid("transactions", "is missing")
	}
	if jsonKind(rawTxns) != '[' {
		return nil, invalid("transactions", "must be an array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawTxns, &items); err != nil {
		return nil, invalid("transactions", "must be an array: %v", err)
	}

	out := &models.ParseOutcome{
		AccountNumber:   account,
		StatementPeriod: period,
		Method:          models.MethodAI,
		Transactions:    make([]models.Transaction, 0, len(items)),
	}

	for i, item := range items {
		txn, err := parseTransaction(item, fmt.Sprintf("transactions[%d]", i))
		if err != nil {
			return nil, err
		}
		out.Transactions = append(out.Transactions, txn)
	}

	return out, nil
}

func parseTransaction(raw json.RawMessage, path string) (models.Transaction, error) {
	obj, err := decodeObject(raw, path)
	if err != nil {
		return models.Transaction{}, err
	}

	date, err := requireString(obj, "date", path+".date")
	if err != nil {
		return models.Transaction{}, err
	}
	if !isoDatePattern.MatchString(date) {
		return models.Transaction{}, invalid(path+".date", "must match YYYY-MM-DD, got %q", date)
	}

	desc, err := requireString(obj, "description", path+".description")
	if err != nil {
		return models.Transaction{}, err
	}
	debit, err := nullableAmount(obj, "debit", path+".debit")
	if err != nil {
		return models.Transaction{}, err
	}
	credit, err := nullableAmount(obj, "credit", path+".credit")
	if err != nil {
		return models.Transaction{}, err
	}
	if _, err := requireAmount(obj, "balance", path+".balance"); err != nil {
		return models.Transaction{}, err
	}

	return models.Transaction{Date: date, Description: desc, Debit: debit, Credit: credit}, nil
}

func decodeObject(raw json.RawMessage, path string) (map[string]json.RawMessage, error) {
	if jsonKind(raw) != '{' {
		return nil, invalid(path, "must be a JSON object")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, invalid(path, "is not valid JSON: %v", err)
	}
	return obj, nil
}

func requireString(obj map[string]json.RawMessage, key, path string) (string, error) {
	raw, ok := obj[key]
	if !ok {
		return "", invalid(path, "is missing")
	}
	if jsonKind(raw) != '"' {
		return "", invalid(path, "must be a string")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid(path, "must be a string: %v", err)
	}
	return s, nil
}

func nullableAmount(obj map[string]json.RawMessage, key, path string) (float64, error) {
	raw, ok := obj[key]
	if !ok {
		return 0, invalid(path, "is missing")
	}
	if jsonKind(raw) == 'n' {
		return 0, nil
	}
	return amountValue(raw, path)
}

func requireAmount(obj map[string]json.RawMessage, key, path string) (float64, error) {
	raw, ok := obj[key]
	if !ok {
		return 0, invalid(path, "is missing")
	}
	return amountValue(raw, path)
}

func amountValue(raw json.RawMessage, path string) (float64, error) {
	if jsonKind(raw) != '0' {
		return 0, invalid(path, "must be a number")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, invalid(path, "must be a number: %v", err)
	}
	if f < 0 {
		return 0, invalid(path, "must not be negative, got %v", f)
	}
	return f, nil
}

// jsonKind classifies a raw JSON value by its first byte: '{', '[', '"',
// 'n' (null), 'b' (boolean), '0' (number) or 0 when empty.
func jsonKind(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	switch c := raw[0]; {
	case c == '{' || c == '[' || c == '"':
		return c
	case c == 'n':
		return 'n'
	case c == 't' || c == 'f':
		return 'b'
	case c == '-' || (c >= '0' && c <= '9'):
		return '0'
	default:
		return 0
	}
}

// cleanModelJSON strips Markdown fences and any prose around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}

	// Keep only from the first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
