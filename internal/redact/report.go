package redact

import "maps"

// Report summarises what a scrub pass did. It carries counts only, never
// the redacted values.
type Report struct {
	Lines int              `json:"lines"`
	Kinds map[LineKind]int `json:"kinds"`
	Rules map[string]int   `json:"rules"`

	// AddressCategories counts full-line address redactions by the category
	// of the keyword that triggered them.
	AddressCategories map[string]int `json:"address_categories,omitempty"`
}

func newReport() Report {
	return Report{
		Kinds:             make(map[LineKind]int),
		Rules:             make(map[string]int),
		AddressCategories: make(map[string]int),
	}
}

// Clone returns a copy of r that shares no maps with it.
func (r Report) Clone() Report {
	return Report{
		Lines:             r.Lines,
		Kinds:             maps.Clone(r.Kinds),
		Rules:             maps.Clone(r.Rules),
		AddressCategories: maps.Clone(r.AddressCategories),
	}
}

// Total returns the number of substitutions across all rules.
func (r Report) Total() int {
	total := 0
	for _, n := range r.Rules {
		total += n
	}
	return total
}

func (r *Report) add(rule string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.Rules[rule] += n
}

func (r *Report) addAddressCategory(category string) {
	if r == nil {
		return
	}
	if category == "" {
		category = "unknown"
	}
	r.AddressCategories[category]++
}
