package domain

import (
	"strings"

	"cloud.google.com/go/civil"
)

// Category is the closed set of spending categories the model may assign.
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryShopping      Category = "Shopping"
	CategoryUtilities     Category = "Utilities"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealth        Category = "Health"
	CategoryTravel        Category = "Travel"
	CategoryOther         Category = "Other"
)

// Categories lists every valid category in prompt order.
var Categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryShopping,
	CategoryUtilities,
	CategoryEntertainment,
	CategoryHealth,
	CategoryTravel,
	CategoryOther,
}

// ParseCategory maps a model-provided label onto the closed category set,
// ignoring case and surrounding whitespace. Unknown labels become Other.
func ParseCategory(s string) Category {
	norm := strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(norm, string(c)) {
			return c
		}
	}
	return CategoryOther
}

// Valid reports whether c is one of the closed set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// TransactionRecord is one transaction as returned to the caller after the
// inference provider has structured the statement text.
type TransactionRecord struct {
	Date        civil.Date `json:"date"`        // ISO calendar date (YYYY-MM-DD)
	Merchant    string     `json:"merchant"`    // free text, masked before return
	Amount      float64    `json:"amount"`      // positive = expense, negative = credit/payment
	Category    Category   `json:"category"`    // one of Categories
	IsRecurring bool       `json:"isRecurring"` // subscription-like

	// Optional free-text fields, masked like Merchant when present.
	Notes       *string `json:"notes,omitempty"`
	Description *string `json:"description,omitempty"`
	Memo        *string `json:"memo,omitempty"`
}
