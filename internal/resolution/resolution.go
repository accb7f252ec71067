// Package resolution maps differences to the backend mutations that reconcile them
// and provides the advisory heuristic used to pre-fill operator choices.
package resolution

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dbsmedya/contentsync/internal/differ"
)

// Resolution is the chosen action for one difference.
type Resolution string

const (
	CreateInBackend  Resolution = "CREATE_IN_BACKEND"
	DeleteInFrontend Resolution = "DELETE_IN_FRONTEND"
	UseFrontend      Resolution = "USE_FRONTEND"
	UseBackend       Resolution = "USE_BACKEND"
)

// ErrInvalidResolution is returned when a resolution is not legal for a difference kind.
var ErrInvalidResolution = errors.New("invalid resolution")

// legal is the (kind, resolution) state table.
var legal = map[differ.Kind][]Resolution{
	differ.MissingInBackend:  {CreateInBackend, DeleteInFrontend},
	differ.MissingInFrontend: {UseBackend},
	differ.Mismatch:          {UseFrontend, UseBackend},
}

// LegalFor returns the resolutions allowed for a kind.
func LegalFor(kind differ.Kind) []Resolution {
	out := make([]Resolution, len(legal[kind]))
	copy(out, legal[kind])
	return out
}

// Legal reports whether res may be applied to a difference of the given kind.
func Legal(kind differ.Kind, res Resolution) bool {
	for _, allowed := range legal[kind] {
		if allowed == res {
			return true
		}
	}
	return false
}

// Mutating reports whether the resolution implies a backend call.
func (r Resolution) Mutating() bool {
	return r == CreateInBackend || r == UseFrontend
}

// ParseResolution accepts CREATE_IN_BACKEND, create_in_backend and create-in-backend.
func ParseResolution(s string) (Resolution, error) {
	normalized := Resolution(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	switch normalized {
	case CreateInBackend, DeleteInFrontend, UseFrontend, UseBackend:
		return normalized, nil
	}
	return "", fmt.Errorf("%w: unknown resolution %q", ErrInvalidResolution, s)
}

// Validate checks res against the state table for d.
func Validate(d differ.Difference, res Resolution) error {
	if Legal(d.Kind, res) {
		return nil
	}
	return fmt.Errorf("%w: %s is not allowed for %s %q (allowed: %s)",
		ErrInvalidResolution, res, d.Kind, d.Key, joinResolutions(legal[d.Kind]))
}

func joinResolutions(rs []Resolution) string {
	if len(rs) == 0 {
		return "none"
	}
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
