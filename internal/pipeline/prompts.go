package pipeline

import (
	"strings"

	"github.com/dvloznov/statement-scrubber/internal/domain"
)

// userPromptPrefix introduces the scrubbed statement text.
const userPromptPrefix = "Here is the bank statement text:\n\n"

// systemPrompt builds the extraction instructions, listing the closed
// category set.
func systemPrompt() string {
	names := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		names[i] = string(c)
	}

	var b strings.Builder
	b.WriteString("You are a specialized data extraction AI.\n")
	b.WriteString("Analyze the provided text from a Credit Card Statement and extract all transactions.\n\n")
	b.WriteString("Return the data as a JSON array where each object has:\n")
	b.WriteString("- date: ISO 8601 format (YYYY-MM-DD). If year is missing, try to infer from context or use current year.\n")
	b.WriteString("- merchant: The clean name of the merchant (remove locations/codes like 'UBER *trip 2452').\n")
	b.WriteString("- amount: The numeric value. Positive for expenses, negative for payments/credits.\n")
	b.WriteString("- category: Classify into one of: " + strings.Join(names, ", ") + ".\n")
	b.WriteString("- isRecurring: Boolean, true if it looks like a subscription.\n\n")
	b.WriteString("Some personal details in the text have been replaced with [REDACTED_*] placeholders. ")
	b.WriteString("Never try to reconstruct them.\n\n")
	b.WriteString("If the text contains no transactions, return an empty array.\n")
	b.WriteString("Output ONLY raw JSON. No markdown formatting.\n")
	return b.String()
}

func userPrompt(text string) string {
	return userPromptPrefix + text
}
