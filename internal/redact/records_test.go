package redact

import (
	"reflect"
	"testing"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-scrubber/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestMaskRecords(t *testing.T) {
	in := []domain.TransactionRecord{
		{
			Date:        civil.Date{Year: 2024, Month: 3, Day: 15},
			Merchant:    "UBER *trip 411122223333 4444",
			Amount:      245,
			Category:    domain.CategoryTransport,
			IsRecurring: false,
		},
		{
			Date:     civil.Date{Year: 2024, Month: 3, Day: 16},
			Merchant: "NETFLIX",
			Amount:   649,
			Category: domain.CategoryEntertainment,
			Notes:    strPtr("card 4111-2222-3333-4444"),
			Memo:     strPtr("monthly"),
		},
	}

	got := MaskRecords(in)

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Merchant != "UBER *trip XXXX-XXXX-4444" {
		t.Errorf("Merchant = %q, want %q", got[0].Merchant, "UBER *trip XXXX-XXXX-4444")
	}
	if got[0].Date != in[0].Date || got[0].Amount != 245 || got[0].Category != domain.CategoryTransport {
		t.Errorf("non-text fields changed: %+v", got[0])
	}
	if got[1].Merchant != "NETFLIX" {
		t.Errorf("Merchant = %q, want unchanged", got[1].Merchant)
	}
	if got[1].Notes == nil || *got[1].Notes != "card XXXX-XXXX-XXXX-4444" {
		t.Errorf("Notes = %v, want masked card", got[1].Notes)
	}
	if got[1].Memo == nil || *got[1].Memo != "monthly" {
		t.Errorf("Memo = %v, want %q", got[1].Memo, "monthly")
	}
	if got[1].Description != nil {
		t.Errorf("Description = %v, want nil", got[1].Description)
	}

	// Input must be untouched.
	if in[0].Merchant != "UBER *trip 411122223333 4444" {
		t.Errorf("input merchant mutated: %q", in[0].Merchant)
	}
	if *in[1].Notes != "card 4111-2222-3333-4444" {
		t.Errorf("input notes mutated: %q", *in[1].Notes)
	}
	if got[1].Notes == in[1].Notes {
		t.Error("output shares the notes pointer with the input")
	}
}

func TestMaskRecords_NilAndEmpty(t *testing.T) {
	if got := MaskRecords(nil); got != nil {
		t.Errorf("MaskRecords(nil) = %v, want nil", got)
	}
	if got := MaskRecords([]domain.TransactionRecord{}); got == nil || len(got) != 0 {
		t.Errorf("MaskRecords(empty) = %v, want empty non-nil slice", got)
	}
}

func TestMaskRawRecords(t *testing.T) {
	in := []map[string]interface{}{
		{
			"date":        "2024-03-15",
			"merchant":    "UBER *trip 411122223333 4444",
			"amount":      245.0,
			"category":    "Transport",
			"isRecurring": false,
			"description": "paid with 4111 2222 3333 4444",
			"notes":       42.0,
		},
		{
			"merchant": nil,
			"memo":     []interface{}{"4111222233334444"},
		},
	}

	got := MaskRawRecords(in)

	want0 := map[string]interface{}{
		"date":        "2024-03-15",
		"merchant":    "UBER *trip XXXX-XXXX-4444",
		"amount":      245.0,
		"category":    "Transport",
		"isRecurring": false,
		"description": "paid with XXXX-XXXX-XXXX-4444",
		"notes":       42.0,
	}
	if !reflect.DeepEqual(got[0], want0) {
		t.Errorf("record 0 = %v, want %v", got[0], want0)
	}
	if !reflect.DeepEqual(got[1], in[1]) {
		t.Errorf("non-string values changed: %v", got[1])
	}
	if in[0]["merchant"] != "UBER *trip 411122223333 4444" {
		t.Errorf("input map mutated: %v", in[0]["merchant"])
	}
}
