package resolution

import (
	"fmt"

	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/record"
)

// Policy is the heuristic suggestion per difference kind.
type Policy map[differ.Kind]Resolution

// DefaultPolicy keeps locally authored content, treats the backend as system of
// record for content created there, and lets the hand-maintained frontend win
// mismatches.
func DefaultPolicy() Policy {
	return Policy{
		differ.MissingInBackend:  CreateInBackend,
		differ.MissingInFrontend: UseBackend,
		differ.Mismatch:          UseFrontend,
	}
}

// NewPolicy overlays per-kind overrides on DefaultPolicy. Empty values keep the default.
func NewPolicy(missingInBackend, missingInFrontend, mismatch string) (Policy, error) {
	p := DefaultPolicy()
	overrides := []struct {
		kind  differ.Kind
		value string
	}{
		{differ.MissingInBackend, missingInBackend},
		{differ.MissingInFrontend, missingInFrontend},
		{differ.Mismatch, mismatch},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		res, err := ParseResolution(o.value)
		if err != nil {
			return nil, err
		}
		if !Legal(o.kind, res) {
			return nil, fmt.Errorf("%w: %s cannot be the policy for %s", ErrInvalidResolution, res, o.kind)
		}
		p[o.kind] = res
	}
	return p, nil
}

// Suggest returns the advisory resolution for d. The boolean is false only for
// kinds the policy does not know.
func (p Policy) Suggest(d differ.Difference) (Resolution, bool) {
	res, ok := p[d.Kind]
	if !ok || !Legal(d.Kind, res) {
		return "", false
	}
	return res, true
}

// SuggestAll pre-fills a resolution for every difference in the report. Nothing is
// applied; callers still pass an explicit set to the orchestrator.
func (p Policy) SuggestAll(report *differ.Report) map[string]Resolution {
	out := make(map[string]Resolution)
	if report == nil {
		return out
	}
	for _, d := range report.Differences {
		if res, ok := p.Suggest(d); ok {
			out[d.Key] = res
		}
	}
	return out
}

// Op is the kind of backend call a resolution implies.
type Op string

const (
	OpNone   Op = "none"
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// Mutation is the concrete backend call for one resolved difference.
type Mutation struct {
	Op     Op
	ID     string
	Fields map[string]any
}

// Plan maps a difference and its resolution to a single mutation. Fields listed in
// ignore are never written to the backend.
func Plan(d differ.Difference, res Resolution, ignore []string) (Mutation, error) {
	if err := Validate(d, res); err != nil {
		return Mutation{}, err
	}

	switch res {
	case CreateInBackend:
		if d.Frontend == nil {
			return Mutation{}, fmt.Errorf("%w: %q has no frontend record to create from", ErrInvalidResolution, d.Key)
		}
		return Mutation{Op: OpCreate, Fields: record.Payload(*d.Frontend, ignore)}, nil
	case UseFrontend:
		if d.Frontend == nil || d.Backend == nil {
			return Mutation{}, fmt.Errorf("%w: %q needs both records to update", ErrInvalidResolution, d.Key)
		}
		if d.Backend.ID == "" {
			return Mutation{}, fmt.Errorf("%w: backend record %q has no id", ErrInvalidResolution, d.Key)
		}
		return Mutation{Op: OpUpdate, ID: d.Backend.ID, Fields: record.Payload(*d.Frontend, ignore)}, nil
	default:
		return Mutation{Op: OpNone}, nil
	}
}
