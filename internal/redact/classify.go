package redact

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// LineKind is the classification a line receives during scrubbing.
type LineKind int

const (
	// KindPlain lines get targeted substitutions but are otherwise kept.
	KindPlain LineKind = iota
	// KindTransaction lines carry a date and an amount; only global rules apply.
	KindTransaction
	// KindAddressLine lines contain an address keyword and are replaced whole.
	KindAddressLine
	// KindNameCandidate lines look like an all-caps personal name and are replaced whole.
	KindNameCandidate
)

// String returns the lowercase kind name.
func (k LineKind) String() string {
	switch k {
	case KindTransaction:
		return "transaction"
	case KindAddressLine:
		return "address_line"
	case KindNameCandidate:
		return "name_candidate"
	default:
		return "plain"
	}
}

// MarshalText lets LineKind be used as a JSON map key and value.
func (k LineKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name produced by MarshalText.
func (k *LineKind) UnmarshalText(b []byte) error {
	for _, kind := range []LineKind{KindPlain, KindTransaction, KindAddressLine, KindNameCandidate} {
		if string(b) == kind.String() {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("redact: unknown line kind %q", b)
}

var (
	datePattern = regexp.MustCompile(
		`\b\d{1,2}/\d{1,2}/\d{1,4}\b` +
			`|\b\d{1,2}-\d{1,2}-\d{1,4}\b` +
			`|\b\d{4}[-/]\d{2}[-/]\d{2}\b`)

	amountPattern = regexp.MustCompile(`\b\d[\d,]*\.\d{2}\b`)
)

// isTransactionLine reports whether line has both a date and a two-decimal amount.
func isTransactionLine(line string) bool {
	return datePattern.MatchString(line) && amountPattern.MatchString(line)
}

// countUpperTokens returns the number of purely alphabetic, fully upper-case
// tokens and the number of all non-empty whitespace separated tokens.
func countUpperTokens(line string) (upper, total int) {
	for _, tok := range strings.Fields(line) {
		total++
		if isUpperWord(tok) {
			upper++
		}
	}
	return upper, total
}

func isUpperWord(tok string) bool {
	hasUpper := false
	for _, r := range tok {
		if !unicode.IsLetter(r) || unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasUpper
}
