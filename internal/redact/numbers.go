package redact

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// 13 or more digits, each optionally preceded by a single space or dash.
	// Unbounded so that a date glued to a card number stays in one run.
	longNumberPattern = regexp.MustCompile(`\b\d(?:[ -]?\d){12,}\b`)

	digitRunPattern = regexp.MustCompile(`\d+`)

	// Four 4-digit groups, each gap optionally a single space or dash.
	cardLayoutPattern = regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?(\d{4})\b`)

	// 12 contiguous digits with the last group split off. Left to
	// accountRunPattern, which masks it as XXXX-XXXX-<last4>.
	splitAccountPattern = regexp.MustCompile(`^\d{12}[- ]\d{4}$`)

	// 8-12 digits followed by the last 4, optionally split off by one separator.
	accountRunPattern = regexp.MustCompile(`\b\d{8,12}[- ]?(\d{4})\b`)
)

// minRedactedDigits is the digit count from which a number segment is
// treated as an account or card number.
const minRedactedDigits = 12

// MaskAccountNumber masks card and account numbers inside already structured
// text, keeping only the last four digits:
//
//	"4111-1111-1111-1234" -> "XXXX-XXXX-XXXX-1234"
//	"411122223333 4444"   -> "XXXX-XXXX-4444"
//
// Each occurrence is masked independently. Masking repeats until the text is
// stable, so the result is always a fixed point: masking it again is a no-op.
func MaskAccountNumber(text string) string {
	if text == "" {
		return text
	}
	for {
		next := cardLayoutPattern.ReplaceAllStringFunc(text, maskCard)
		next = accountRunPattern.ReplaceAllString(next, "XXXX-XXXX-${1}")
		if next == text {
			return text
		}
		text = next
	}
}

func maskCard(card string) string {
	if splitAccountPattern.MatchString(card) {
		return card
	}
	return "XXXX-XXXX-XXXX-" + card[len(card)-4:]
}

// digitGroup is one run of digits inside a long-number match together with
// the separator that preceded it (0 for the first group or no separator).
type digitGroup struct {
	sep    byte
	digits string
	date   bool
}

// maxDatePartDigits is the longest digit group that can be a date component.
const maxDatePartDigits = 4

// redactLongNumbers applies the number classifier to every run of 13+ digits
// in line and returns the rewritten line and the number of placeholders
// emitted.
func redactLongNumbers(line string) (string, int) {
	spans := longNumberPattern.FindAllStringIndex(line, -1)
	if len(spans) == 0 {
		return line, 0
	}

	var b strings.Builder
	last, hits := 0, 0
	for _, sp := range spans {
		start, end := sp[0], sp[1]
		slashBefore := start > 0 && line[start-1] == '/'
		slashAfter := end < len(line) && line[end] == '/'
		masked, n := classifyNumberRun(line[start:end], slashBefore, slashAfter)
		b.WriteString(line[last:start])
		b.WriteString(masked)
		last = end
		hits += n
	}
	b.WriteString(line[last:])
	return b.String(), hits
}

// classifyNumberRun rewrites a single digit run. Dash-separated date
// segments (YYYY-MM-DD and D[D]-M[M]-YYYY) are preserved verbatim, as is a
// short edge group that belongs to a slash date outside the run
// (slashBefore, slashAfter). Each remaining segment is replaced with
// [REDACTED_NUM_<last4>] when it holds at least 12 digits and left
// untouched otherwise.
func classifyNumberRun(run string, slashBefore, slashAfter bool) (string, int) {
	groups := splitDigitGroups(run)
	markDateGroups(groups)
	if first := &groups[0]; slashBefore && len(first.digits) <= maxDatePartDigits {
		first.date = true
	}
	if lastGroup := &groups[len(groups)-1]; slashAfter && len(lastGroup.digits) <= maxDatePartDigits {
		lastGroup.date = true
	}

	var b strings.Builder
	b.Grow(len(run))
	hits := 0

	for i := 0; i < len(groups); {
		g := groups[i]
		if g.date {
			if g.sep != 0 {
				b.WriteByte(g.sep)
			}
			b.WriteString(g.digits)
			i++
			continue
		}

		j := i
		var seg strings.Builder
		var digits strings.Builder
		for j < len(groups) && !groups[j].date {
			if j > i && groups[j].sep != 0 {
				seg.WriteByte(groups[j].sep)
			}
			seg.WriteString(groups[j].digits)
			digits.WriteString(groups[j].digits)
			j++
		}

		if g.sep != 0 {
			b.WriteByte(g.sep)
		}
		if d := digits.String(); len(d) >= minRedactedDigits {
			b.WriteString(numberPlaceholder(d))
			hits++
		} else {
			b.WriteString(seg.String())
		}
		i = j
	}

	return b.String(), hits
}

func splitDigitGroups(run string) []digitGroup {
	var groups []digitGroup
	var sep byte
	start := -1
	for i := 0; i < len(run); i++ {
		c := run[i]
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			groups = append(groups, digitGroup{sep: sep, digits: run[start:i]})
			start = -1
		}
		sep = c
	}
	if start >= 0 {
		groups = append(groups, digitGroup{sep: sep, digits: run[start:]})
	}
	return groups
}

// markDateGroups flags every dash-separated 4-2-2 (YYYY-MM-DD) or
// 1..2-1..2-4 (DD-MM-YYYY) triple as a date.
func markDateGroups(groups []digitGroup) {
	for i := 0; i+2 < len(groups); i++ {
		if groups[i].date {
			continue
		}
		a, b, c := groups[i], groups[i+1], groups[i+2]
		if b.sep != '-' || c.sep != '-' {
			continue
		}
		iso := len(a.digits) == 4 && len(b.digits) == 2 && len(c.digits) == 2
		dmy := len(a.digits) <= 2 && len(b.digits) <= 2 && len(c.digits) == 4
		if iso || dmy {
			groups[i].date = true
			groups[i+1].date = true
			groups[i+2].date = true
			i += 2
		}
	}
}

func numberPlaceholder(digits string) string {
	last4 := digits
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	return "[REDACTED_NUM_" + last4 + "]"
}

// replaceStandaloneDigits replaces every standalone token of exactly n
// digits whose first digit satisfies first. A token is standalone when it is
// not glued to letters or digits and is not part of a decimal or grouped
// number such as 123456.78 or 1,234567.
func replaceStandaloneDigits(line string, n int, first func(byte) bool, placeholder string) (string, int) {
	spans := digitRunPattern.FindAllStringIndex(line, -1)
	if len(spans) == 0 {
		return line, 0
	}

	var b strings.Builder
	last, hits := 0, 0
	for _, sp := range spans {
		start, end := sp[0], sp[1]
		if end-start != n || (first != nil && !first(line[start])) {
			continue
		}
		if !standaloneBefore(line, start) || !standaloneAfter(line, end) {
			continue
		}
		b.WriteString(line[last:start])
		b.WriteString(placeholder)
		last = end
		hits++
	}
	if hits == 0 {
		return line, 0
	}
	b.WriteString(line[last:])
	return b.String(), hits
}

func standaloneBefore(s string, start int) bool {
	if start == 0 {
		return true
	}
	r, size := utf8.DecodeLastRuneInString(s[:start])
	if isWordRune(r) {
		return false
	}
	if (r == '.' || r == ',') && start-size > 0 {
		prev, _ := utf8.DecodeLastRuneInString(s[:start-size])
		return !unicode.IsDigit(prev)
	}
	return true
}

func standaloneAfter(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	r, size := utf8.DecodeRuneInString(s[end:])
	if isWordRune(r) {
		return false
	}
	if (r == '.' || r == ',') && end+size < len(s) {
		next, _ := utf8.DecodeRuneInString(s[end+size:])
		return !unicode.IsDigit(next)
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
