package redact

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_keywords.yaml
var defaultKeywordsYAML []byte

// Keywords is the configuration data behind the address-line and
// name-candidate heuristics. Keyword maps go from an upper-case keyword to
// the category it belongs to (e.g. "ROAD" -> "street").
type Keywords struct {
	AddressKeywords map[string]string `yaml:"address_keywords"`
	SafeHeaders     map[string]string `yaml:"safe_headers"`
	NameCandidate   NameCandidateRule `yaml:"name_candidate"`
}

// NameCandidateRule parameterises the all-caps name heuristic.
type NameCandidateRule struct {
	// MinUpperTokens is the minimum number of all-caps alphabetic tokens a
	// line must have before it can be treated as a name.
	MinUpperTokens int `yaml:"min_upper_tokens"`

	// UpperPercent is the minimum share (0-100) of all-caps alphabetic
	// tokens among all tokens of the line.
	UpperPercent int `yaml:"upper_percent"`
}

// DefaultKeywords returns a fresh copy of the embedded keyword configuration.
func DefaultKeywords() Keywords {
	kw, err := ParseKeywords(defaultKeywordsYAML)
	if err != nil {
		panic(fmt.Sprintf("redact: embedded keywords: %v", err))
	}
	return kw
}

// ParseKeywords decodes a YAML keyword document. Missing name_candidate
// values fall back to the defaults (2 tokens, 80%).
func ParseKeywords(data []byte) (Keywords, error) {
	var kw Keywords
	if err := yaml.Unmarshal(data, &kw); err != nil {
		return Keywords{}, fmt.Errorf("ParseKeywords: decode yaml: %w", err)
	}
	if kw.NameCandidate.MinUpperTokens == 0 {
		kw.NameCandidate.MinUpperTokens = defaultMinUpperTokens
	}
	if kw.NameCandidate.UpperPercent == 0 {
		kw.NameCandidate.UpperPercent = defaultUpperPercent
	}
	kw.AddressKeywords = normalizeKeywordMap(kw.AddressKeywords)
	kw.SafeHeaders = normalizeKeywordMap(kw.SafeHeaders)
	return kw, nil
}

// LoadKeywords reads a keyword YAML file from disk.
func LoadKeywords(path string) (Keywords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Keywords{}, fmt.Errorf("LoadKeywords: read %q: %w", path, err)
	}
	return ParseKeywords(data)
}

// Merge returns kw extended with the keywords of other. Entries in other win
// on conflict; name-candidate parameters of other replace kw's when set.
func (kw Keywords) Merge(other Keywords) Keywords {
	out := Keywords{
		AddressKeywords: make(map[string]string, len(kw.AddressKeywords)+len(other.AddressKeywords)),
		SafeHeaders:     make(map[string]string, len(kw.SafeHeaders)+len(other.SafeHeaders)),
		NameCandidate:   kw.NameCandidate,
	}
	for k, v := range kw.AddressKeywords {
		out.AddressKeywords[k] = v
	}
	for k, v := range other.AddressKeywords {
		out.AddressKeywords[k] = v
	}
	for k, v := range kw.SafeHeaders {
		out.SafeHeaders[k] = v
	}
	for k, v := range other.SafeHeaders {
		out.SafeHeaders[k] = v
	}
	if other.NameCandidate.MinUpperTokens != 0 {
		out.NameCandidate.MinUpperTokens = other.NameCandidate.MinUpperTokens
	}
	if other.NameCandidate.UpperPercent != 0 {
		out.NameCandidate.UpperPercent = other.NameCandidate.UpperPercent
	}
	return out
}

func (kw Keywords) validate() error {
	if kw.NameCandidate.MinUpperTokens < 1 {
		return fmt.Errorf("name_candidate.min_upper_tokens must be >= 1, got %d", kw.NameCandidate.MinUpperTokens)
	}
	if kw.NameCandidate.UpperPercent < 1 || kw.NameCandidate.UpperPercent > 100 {
		return fmt.Errorf("name_candidate.upper_percent must be in 1..100, got %d", kw.NameCandidate.UpperPercent)
	}
	for k := range kw.AddressKeywords {
		if strings.ContainsAny(k, " \t") {
			return fmt.Errorf("address keyword %q must be a single word", k)
		}
	}
	for k := range kw.SafeHeaders {
		if strings.ContainsAny(k, " \t") {
			return fmt.Errorf("safe header %q must be a single word", k)
		}
	}
	return nil
}

func normalizeKeywordMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// keywordMatcher matches whole words from a fixed set against upper-cased text.
type keywordMatcher struct {
	re         *regexp.Regexp
	categories map[string]string
}

func newKeywordMatcher(m map[string]string) *keywordMatcher {
	km := &keywordMatcher{categories: m}
	if len(m) == 0 {
		return km
	}
	words := make([]string, 0, len(m))
	for k := range m {
		words = append(words, regexp.QuoteMeta(k))
	}
	// Longest first so that alternation prefers e.g. APARTMENTS over APARTMENT.
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	km.re = regexp.MustCompile(`\b(?:` + strings.Join(words, "|") + `)\b`)
	return km
}

// find returns the first keyword found in upper, or "".
func (km *keywordMatcher) find(upper string) string {
	if km.re == nil {
		return ""
	}
	return km.re.FindString(upper)
}

// category returns the configured category for a matched keyword.
func (km *keywordMatcher) category(keyword string) string {
	return km.categories[keyword]
}
