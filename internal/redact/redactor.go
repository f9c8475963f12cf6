// Package redact strips personally identifiable information from statement
// text before it leaves the process, while keeping the dates, merchants and
// amounts that transaction extraction depends on.
//
// Scrub works line by line: global rules (emails, long card/account numbers)
// run on every line, then the line is classified. Transaction lines are kept
// as they are; every other line goes through the conditional rules in order
// (PIN, phone, Name/Address headers, address keywords, all-caps names).
package redact

import (
	"regexp"
	"strings"
)

// Placeholders substituted for detected PII.
const (
	PlaceholderEmail         = "[REDACTED_EMAIL]"
	PlaceholderPIN           = "[REDACTED_PIN]"
	PlaceholderPhone         = "[REDACTED_PHONE]"
	PlaceholderName          = "[REDACTED_NAME]"
	PlaceholderAddress       = "[REDACTED_ADDRESS]"
	PlaceholderAddressLine   = "[REDACTED_ADDRESS_LINE]"
	PlaceholderNameCandidate = "[REDACTED_NAME_CANDIDATE]"
)

// Rule names as reported in Report.Rules.
const (
	RuleEmail         = "email"
	RuleLongNumber    = "long_number"
	RulePIN           = "pin"
	RulePhone         = "phone"
	RuleNameHeader    = "name_header"
	RuleAddressHeader = "address_header"
	RuleAddressLine   = "address_line"
	RuleNameCandidate = "name_candidate"
)

const (
	defaultMinUpperTokens = 2
	defaultUpperPercent   = 80
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	nameColonPattern    = regexp.MustCompile(`\b((?i:name)\s*:\s*)[A-Z][A-Za-z.'\-]*(?:[ \t]+[A-Z][A-Za-z.'\-]*)*`)
	nameCapsPattern     = regexp.MustCompile(`\b((?i:name)[ \t]+)[A-Z]+(?:[ \t]+[A-Z]+)+\b`)
	addressColonPattern = regexp.MustCompile(`\b((?i:address)\s*:\s*)\S.*`)
)

// lineRule is one stage of the scrubbing pipeline. Substitution rules leave
// kind as KindPlain; full-line rules set the kind the line ends up with and
// stop the pipeline once they fire.
type lineRule struct {
	name  string
	kind  LineKind
	apply func(line string) (string, int)
}

// Redactor holds the compiled rule pipeline. It is immutable after New and
// safe for concurrent use.
type Redactor struct {
	global      []lineRule
	conditional []lineRule

	addresses   *keywordMatcher
	safeHeaders *keywordMatcher
	minUpper    int
	upperPct    int
}

// defaultRedactor is built once at package initialisation from the embedded
// keyword set and shared read-only by Scrub and Classify.
var defaultRedactor = MustNew(DefaultKeywords())

// Default returns the process-wide redactor built from the embedded keywords.
func Default() *Redactor {
	return defaultRedactor
}

// New builds a Redactor from keyword configuration.
func New(kw Keywords) (*Redactor, error) {
	if err := kw.validate(); err != nil {
		return nil, err
	}

	r := &Redactor{
		addresses:   newKeywordMatcher(kw.AddressKeywords),
		safeHeaders: newKeywordMatcher(kw.SafeHeaders),
		minUpper:    kw.NameCandidate.MinUpperTokens,
		upperPct:    kw.NameCandidate.UpperPercent,
	}

	r.global = []lineRule{
		{name: RuleEmail, apply: replaceAll(emailPattern, PlaceholderEmail)},
		{name: RuleLongNumber, apply: redactLongNumbers},
	}

	// Keyword and header matches run before the statistical name heuristic.
	r.conditional = []lineRule{
		{name: RulePIN, apply: func(line string) (string, int) {
			return replaceStandaloneDigits(line, 6, nil, PlaceholderPIN)
		}},
		{name: RulePhone, apply: func(line string) (string, int) {
			return replaceStandaloneDigits(line, 10, isMobilePrefix, PlaceholderPhone)
		}},
		{name: RuleNameHeader, apply: redactNameHeaders},
		{name: RuleAddressHeader, apply: replaceAll(addressColonPattern, "${1}"+PlaceholderAddress)},
		{name: RuleAddressLine, kind: KindAddressLine, apply: r.addressLine},
		{name: RuleNameCandidate, kind: KindNameCandidate, apply: r.nameCandidate},
	}

	return r, nil
}

// MustNew is like New but panics on invalid configuration.
func MustNew(kw Keywords) *Redactor {
	r, err := New(kw)
	if err != nil {
		panic("redact: " + err.Error())
	}
	return r
}

// Scrub redacts text with the default redactor.
func Scrub(text string) string {
	return defaultRedactor.Scrub(text)
}

// Classify returns the kind the default redactor assigns to a single line.
func Classify(line string) LineKind {
	return defaultRedactor.Classify(line)
}

// Scrub returns text with all recognised PII replaced by placeholders.
// It never fails; empty input yields empty output.
func (r *Redactor) Scrub(text string) string {
	return r.scrub(text, nil)
}

// ScrubWithReport is Scrub plus per-rule and per-kind counters.
func (r *Redactor) ScrubWithReport(text string) (string, Report) {
	rep := newReport()
	out := r.scrub(text, &rep)
	return out, rep
}

// Classify returns the kind a single line ends up with after scrubbing.
func (r *Redactor) Classify(line string) LineKind {
	_, kind := r.scrubLine(line, nil)
	return kind
}

// RuleNames lists the pipeline stages in the order they are applied.
func (r *Redactor) RuleNames() []string {
	names := make([]string, 0, len(r.global)+len(r.conditional))
	for _, rule := range r.global {
		names = append(names, rule.name)
	}
	for _, rule := range r.conditional {
		names = append(names, rule.name)
	}
	return names
}

func (r *Redactor) scrub(text string, rep *Report) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	changed := false
	for i, line := range lines {
		out, kind := r.scrubLine(line, rep)
		if rep != nil {
			rep.Lines++
			rep.Kinds[kind]++
		}
		if out != line {
			lines[i] = out
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(lines, "\n")
}

func (r *Redactor) scrubLine(line string, rep *Report) (string, LineKind) {
	for _, rule := range r.global {
		var n int
		line, n = rule.apply(line)
		rep.add(rule.name, n)
	}

	if isTransactionLine(line) {
		return line, KindTransaction
	}

	for _, rule := range r.conditional {
		out, n := rule.apply(line)
		if n == 0 {
			continue
		}
		rep.add(rule.name, n)
		if rule.kind != KindPlain {
			if rule.kind == KindAddressLine {
				rep.addAddressCategory(r.addresses.category(r.addresses.find(strings.ToUpper(line))))
			}
			return out, rule.kind
		}
		line = out
	}
	return line, KindPlain
}

func (r *Redactor) addressLine(line string) (string, int) {
	if r.addresses.find(strings.ToUpper(line)) == "" {
		return line, 0
	}
	return PlaceholderAddressLine, 1
}

func (r *Redactor) nameCandidate(line string) (string, int) {
	if r.safeHeaders.find(strings.ToUpper(line)) != "" {
		return line, 0
	}
	upper, total := countUpperTokens(line)
	if total == 0 {
		return line, 0
	}
	// Explicit minimum: a single all-caps word is never a name on its own.
	if upper < r.minUpper {
		return line, 0
	}
	if upper*100 < r.upperPct*total {
		return line, 0
	}
	return PlaceholderNameCandidate, 1
}

func redactNameHeaders(line string) (string, int) {
	line, n1 := replaceAll(nameColonPattern, "${1}"+PlaceholderName)(line)
	line, n2 := replaceAll(nameCapsPattern, "${1}"+PlaceholderName)(line)
	return line, n1 + n2
}

func replaceAll(re *regexp.Regexp, repl string) func(string) (string, int) {
	return func(line string) (string, int) {
		n := len(re.FindAllStringIndex(line, -1))
		if n == 0 {
			return line, 0
		}
		return re.ReplaceAllString(line, repl), n
	}
}

func isMobilePrefix(c byte) bool {
	return c >= '6' && c <= '9'
}
