package ai

import (
	"fmt"
	"strings"

	"github.com/insightdelivered/statement-processor/internal/models"
)

const systemPrompt = "You are a bank statement parser. Extract transaction data accurately from PDF bank statements."

const extractionPrompt = "Extract all transactions from this %s bank statement PDF. " +
	"Return JSON with: account_number, statement_period, and transactions array. " +
	"Each transaction must have: date (YYYY-MM-DD), description, debit (null or amount), " +
	"credit (null or amount), balance. " +
	"Return only raw JSON without Markdown code fences."

// Instructions are the fixed prompts sent with a document.
type Instructions struct {
	System string
	Prompt string
}

// InstructionsFor returns the prompts used for an institution's statements.
func InstructionsFor(inst models.Institution) Instructions {
	return Instructions{
		System: systemPrompt,
		Prompt: fmt.Sprintf(extractionPrompt, strings.ToUpper(string(inst))),
	}
}
