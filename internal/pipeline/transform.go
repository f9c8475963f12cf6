package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-scrubber/internal/domain"
)

// transformRecords converts raw model objects into TransactionRecords.
// Objects that cannot be converted are skipped and reported in skipped,
// so one malformed row does not discard a whole statement.
func transformRecords(raw []map[string]interface{}) (records []domain.TransactionRecord, skipped []error) {
	records = make([]domain.TransactionRecord, 0, len(raw))
	for i, obj := range raw {
		rec, err := transformRecord(obj)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if err := validateRecord(rec); err != nil {
			skipped = append(skipped, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func transformRecord(obj map[string]interface{}) (domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	if obj == nil {
		return rec, fmt.Errorf("record is null")
	}

	dateStr, err := getStringField(obj, "date", true)
	if err != nil {
		return rec, err
	}
	date, err := parseRecordDate(dateStr)
	if err != nil {
		return rec, err
	}

	merchant, err := getStringField(obj, "merchant", true)
	if err != nil {
		return rec, err
	}

	amount, err := getFloat64Field(obj, "amount", true)
	if err != nil {
		return rec, err
	}

	category, err := getOptionalStringField(obj, "category")
	if err != nil {
		return rec, err
	}

	recurring, err := getBoolField(obj, "isRecurring")
	if err != nil {
		return rec, err
	}

	rec = domain.TransactionRecord{
		Date:        date,
		Merchant:    strings.TrimSpace(merchant),
		Amount:      amount,
		Category:    domain.CategoryOther,
		IsRecurring: recurring,
	}
	if category != nil {
		rec.Category = domain.ParseCategory(*category)
	}

	if rec.Notes, err = getOptionalStringField(obj, "notes"); err != nil {
		return rec, err
	}
	if rec.Description, err = getOptionalStringField(obj, "description"); err != nil {
		return rec, err
	}
	if rec.Memo, err = getOptionalStringField(obj, "memo"); err != nil {
		return rec, err
	}

	return rec, nil
}

// parseRecordDate accepts YYYY-MM-DD, optionally followed by a time part.
func parseRecordDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

// getFloat64Field reads a number. Models sometimes quote amounts, so numeric
// strings such as "1,234.50" are accepted too.
func getFloat64Field(m map[string]interface{}, key string, required bool) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return 0, fmt.Errorf("missing required field %q", key)
		}
		return 0, nil
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case int: // unlikely from encoding/json, but harmless to support
		return float64(val), nil
	case string:
		clean := strings.ReplaceAll(strings.TrimSpace(val), ",", "")
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q value %q is not a number", key, val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}

func getBoolField(m map[string]interface{}, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return false, fmt.Errorf("field %q value %q is not a boolean", key, val)
		}
		return b, nil
	default:
		return false, fmt.Errorf("field %q has type %T, want boolean", key, v)
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
