// Package differ computes the symmetric difference between the frontend and backend
// collections of one content type.
package differ

import (
	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/contentsync/internal/record"
)

// Options tunes a Diff run.
type Options struct {
	// KeyBy selects how records are correlated. Defaults to record.KeyByID.
	KeyBy record.KeyStrategy
	// IgnoreFields are canonical field names left out of the comparison.
	IgnoreFields []string
}

// entry groups every record of one side that shares a key, in collection order.
type entry struct {
	records []record.Record
	matched bool
}

// index is an insertion-ordered key -> entry map plus a name lookup used to
// correlate frontend records that were never assigned a backend id.
type index struct {
	byKey  *orderedmap.OrderedMap[string, *entry]
	byName map[string]*entry
}

func buildIndex(records []record.Record) *index {
	idx := &index{
		byKey:  orderedmap.NewOrderedMap[string, *entry](),
		byName: make(map[string]*entry),
	}
	for _, r := range records {
		e, ok := idx.byKey.Get(r.Key)
		if !ok {
			e = &entry{}
			idx.byKey.Set(r.Key, e)
		}
		e.records = append(e.records, r)

		if r.NameKey != "" {
			if _, taken := idx.byName[r.NameKey]; !taken {
				idx.byName[r.NameKey] = e
			}
		}
	}
	return idx
}

// match finds the backend entry for a frontend record: by key first, then by
// normalized name. The name fallback covers static content whose local ids the
// backend never saw; it skips backend entries whose key the frontend also uses,
// since those are claimed by the key match.
func (idx *index) match(key string, local record.Record, claimed *index) *entry {
	if e, ok := idx.byKey.Get(key); ok {
		e.matched = true
		return e
	}
	if local.NameKey == "" {
		return nil
	}
	e, ok := idx.byName[local.NameKey]
	if !ok || e.matched {
		return nil
	}
	if _, taken := claimed.byKey.Get(e.records[0].Key); taken {
		return nil
	}
	e.matched = true
	return e
}

// Diff normalizes both raw collections and compares them.
func Diff(frontend, backend []record.Raw, opts Options) *Report {
	keyBy := opts.KeyBy
	if keyBy == "" {
		keyBy = record.KeyByID
	}
	return DiffRecords(
		record.NormalizeAll(frontend, record.SourceFrontend, keyBy),
		record.NormalizeAll(backend, record.SourceBackend, keyBy),
		opts,
	)
}

// DiffRecords compares two normalized collections.
//
// Output order is MISSING_IN_BACKEND (frontend order), MISSING_IN_FRONTEND (backend
// order), then MISMATCH (frontend order). Duplicate keys are not collapsed: every
// frontend occurrence is compared against the first backend record with that key,
// and every unmatched backend occurrence is reported.
func DiffRecords(frontend, backend []record.Record, opts Options) *Report {
	ignore := make(map[string]bool, len(opts.IgnoreFields))
	for _, f := range opts.IgnoreFields {
		ignore[f] = true
	}

	local := buildIndex(frontend)
	remote := buildIndex(backend)

	var missingInBackend, missingInFrontend, mismatches []Difference

	for el := local.byKey.Front(); el != nil; el = el.Next() {
		group := el.Value
		counterpart := remote.match(el.Key, group.records[0], local)

		for _, f := range group.records {
			if counterpart == nil {
				missingInBackend = append(missingInBackend, Difference{
					Kind:       MissingInBackend,
					Key:        f.Key,
					Label:      f.Label(),
					Frontend:   &f,
					FieldDiffs: []FieldDiff{},
				})
				continue
			}

			b := counterpart.records[0]
			if diffs := compareFields(f, b, ignore); len(diffs) > 0 {
				mismatches = append(mismatches, Difference{
					Kind:       Mismatch,
					Key:        f.Key,
					Label:      f.Label(),
					Frontend:   &f,
					Backend:    &b,
					FieldDiffs: diffs,
				})
			}
		}
	}

	for el := remote.byKey.Front(); el != nil; el = el.Next() {
		if el.Value.matched {
			continue
		}
		for _, b := range el.Value.records {
			missingInFrontend = append(missingInFrontend, Difference{
				Kind:       MissingInFrontend,
				Key:        b.Key,
				Label:      b.Label(),
				Backend:    &b,
				FieldDiffs: []FieldDiff{},
			})
		}
	}

	return newReport(missingInBackend, missingInFrontend, mismatches)
}

func compareFields(f, b record.Record, ignore map[string]bool) []FieldDiff {
	var diffs []FieldDiff
	for _, field := range record.FieldNames {
		if ignore[field] || record.Equal(f, b, field) {
			continue
		}
		fv, _ := f.Value(field)
		bv, _ := b.Value(field)
		diffs = append(diffs, FieldDiff{
			Field:         field,
			FrontendValue: fv,
			BackendValue:  bv,
		})
	}
	return diffs
}
