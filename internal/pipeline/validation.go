package pipeline

import (
	"fmt"
	"strings"

	"github.com/dvloznov/statement-scrubber/internal/domain"
)

// validateRecord checks a normalized record before it is returned.
func validateRecord(rec domain.TransactionRecord) error {
	if !rec.Date.IsValid() {
		return fmt.Errorf("invalid date %s", rec.Date)
	}
	if strings.TrimSpace(rec.Merchant) == "" {
		return fmt.Errorf("merchant is empty")
	}
	if !isFinite(rec.Amount) {
		return fmt.Errorf("amount %v is not finite", rec.Amount)
	}
	if !rec.Category.Valid() {
		return fmt.Errorf("invalid category %q", rec.Category)
	}
	return nil
}
