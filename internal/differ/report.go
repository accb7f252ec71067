package differ

import "github.com/dbsmedya/contentsync/internal/record"

// Kind classifies a single difference.
type Kind string

const (
	MissingInBackend  Kind = "MISSING_IN_BACKEND"
	MissingInFrontend Kind = "MISSING_IN_FRONTEND"
	Mismatch          Kind = "MISMATCH"
)

// Kinds lists every kind in report order.
var Kinds = []Kind{MissingInBackend, MissingInFrontend, Mismatch}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case MissingInBackend, MissingInFrontend, Mismatch:
		return true
	}
	return false
}

// FieldDiff is one differing field of a mismatched record.
type FieldDiff struct {
	Field         string `json:"field"`
	FrontendValue any    `json:"frontendValue"`
	BackendValue  any    `json:"backendValue"`
}

// Difference is one discrepancy between the two collections for a single entity.
//
// Exactly one of Frontend/Backend is nil for the MISSING_* kinds, both are set for
// MISMATCH, and FieldDiffs is non-empty only for MISMATCH.
type Difference struct {
	Kind       Kind           `json:"kind"`
	Key        string         `json:"key"`
	Label      string         `json:"label"`
	Frontend   *record.Record `json:"frontendRecord"`
	Backend    *record.Record `json:"backendRecord"`
	FieldDiffs []FieldDiff    `json:"fieldDiffs"`
}

// Report is the output of one Diff run. It is built once and never mutated.
type Report struct {
	TotalDifferences int          `json:"totalDifferences"`
	ByType           map[Kind]int `json:"byType"`
	Differences      []Difference `json:"differences"`
}

// Find returns the first difference with the given key.
func (r *Report) Find(key string) (Difference, bool) {
	if r == nil {
		return Difference{}, false
	}
	for _, d := range r.Differences {
		if d.Key == key {
			return d, true
		}
	}
	return Difference{}, false
}

// Keys returns the distinct keys of the report in report order.
func (r *Report) Keys() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool, len(r.Differences))
	keys := make([]string, 0, len(r.Differences))
	for _, d := range r.Differences {
		if !seen[d.Key] {
			seen[d.Key] = true
			keys = append(keys, d.Key)
		}
	}
	return keys
}

func newReport(groups ...[]Difference) *Report {
	report := &Report{
		ByType:      make(map[Kind]int, len(Kinds)),
		Differences: []Difference{},
	}
	for _, k := range Kinds {
		report.ByType[k] = 0
	}
	for _, group := range groups {
		for _, d := range group {
			report.Differences = append(report.Differences, d)
			report.ByType[d.Kind]++
		}
	}
	for _, k := range Kinds {
		report.TotalDifferences += report.ByType[k]
	}
	return report
}
