package parser

import "strings"

// columns is the result of balance-anchored column resolution on one
// transaction line.
type columns struct {
	Description string
	Debit       float64
	Credit      float64
	HasDebit    bool
	HasCredit   bool
	HasBalance  bool
}

func (c columns) hasAmount() bool { return c.HasDebit || c.HasCredit }

// resolveColumns splits the tokens that follow a transaction date into
// description, debit and credit. Fields are resolved right to left:
//
//	<description...> [debit] [$credit] $balance CR
//
// The balance is the rightmost dollar amount carrying a CR/DR suffix. A
// dollar amount directly before it is the credit. The debit is a bare
// amount immediately preceding a parenthetical aside, or otherwise the bare
// amount directly left of the credit/balance. Everything before the first
// amount is the description.
func resolveColumns(tokens []string) columns {
	var c columns

	end := -1
	for i := len(tokens) - 1; i >= 0; i-- {
		if suffixedAmountPattern.MatchString(tokens[i]) {
			end = i
			break
		}
		if i > 0 && isBalanceSuffix(tokens[i]) && isDollarAmount(tokens[i-1]) {
			end = i - 1
			break
		}
	}
	if end < 0 {
		c.Description = strings.TrimSpace(strings.Join(tokens, " "))
		return c
	}
	c.HasBalance = true

	if end > 0 && isDollarAmount(tokens[end-1]) {
		if v, ok := parseAmount(tokens[end-1]); ok {
			c.Credit, c.HasCredit = v, true
			end--
		}
	}

	if i, ok := parentheticalDebit(tokens[:end]); ok {
		if v, ok := parseAmount(tokens[i]); ok {
			c.Debit, c.HasDebit = v, true
			end = i
		}
	} else if end > 0 && isBareAmount(tokens[end-1]) {
		if v, ok := parseAmount(tokens[end-1]); ok {
			c.Debit, c.HasDebit = v, true
			end--
		}
	}

	c.Description = strings.TrimSpace(strings.Join(tokens[:end], " "))
	return c
}

// parentheticalDebit finds a bare amount written just before an aside such
// as "12.50 (incl. fee)" and returns its index.
func parentheticalDebit(tokens []string) (int, bool) {
	for i := 1; i < len(tokens); i++ {
		if strings.HasPrefix(tokens[i], "(") && isBareAmount(tokens[i-1]) {
			return i - 1, true
		}
	}
	return 0, false
}
