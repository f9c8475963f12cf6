package redact

import (
	"github.com/dvloznov/statement-scrubber/internal/domain"
)

// freeTextFields are the record keys whose string values get account-number
// masking in addition to "merchant".
var freeTextFields = []string{"notes", "description", "memo"}

// MaskRecords returns copies of records with account numbers masked in the
// merchant and the optional notes, description and memo fields. The input
// slice and the strings it points to are not modified.
func MaskRecords(records []domain.TransactionRecord) []domain.TransactionRecord {
	if records == nil {
		return nil
	}
	out := make([]domain.TransactionRecord, len(records))
	for i, rec := range records {
		rec.Merchant = MaskAccountNumber(rec.Merchant)
		rec.Notes = maskOptional(rec.Notes)
		rec.Description = maskOptional(rec.Description)
		rec.Memo = maskOptional(rec.Memo)
		out[i] = rec
	}
	return out
}

func maskOptional(s *string) *string {
	if s == nil {
		return nil
	}
	masked := MaskAccountNumber(*s)
	return &masked
}

// MaskRawRecords is MaskRecords for untyped model output. Only string values
// of merchant, notes, description and memo are masked; values of any other
// type are passed through as they are. Each map is shallow-copied.
func MaskRawRecords(records []map[string]interface{}) []map[string]interface{} {
	if records == nil {
		return nil
	}
	out := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		if rec == nil {
			continue
		}
		cp := make(map[string]interface{}, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		if s, ok := cp["merchant"].(string); ok {
			cp["merchant"] = MaskAccountNumber(s)
		}
		for _, field := range freeTextFields {
			if s, ok := cp[field].(string); ok {
				cp[field] = MaskAccountNumber(s)
			}
		}
		out[i] = cp
	}
	return out
}
