package reconciler

import (
	"errors"
	"fmt"

	"github.com/dbsmedya/contentsync/internal/backend"
	"github.com/dbsmedya/contentsync/internal/content"
)

var (
	// ErrFetchFailure matches analysis errors where a collection could not be retrieved.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrShapeFailure matches analysis errors where a collection was not a list of records.
	ErrShapeFailure = errors.New("shape failure")
	// ErrItemMutation wraps a backend call that failed for one batch item.
	ErrItemMutation = errors.New("item mutation failed")
)

// Side names the collection an analysis error came from.
type Side string

const (
	SideFrontend Side = "frontend"
	SideBackend  Side = "backend"
)

// AnalysisError aborts Analyze. No report is produced when it is returned.
type AnalysisError struct {
	Category   error
	Side       Side
	Collection string
	Err        error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis of %q failed: %s %s: %v", e.Collection, e.Side, e.Category, e.Err)
}

func (e *AnalysisError) Unwrap() []error {
	return []error{e.Category, e.Err}
}

func classifyFetch(collection string, side Side, err error) *AnalysisError {
	category := ErrFetchFailure
	var shapeErr *content.ShapeError
	if errors.As(err, &shapeErr) || errors.Is(err, backend.ErrMalformedResponse) {
		category = ErrShapeFailure
	}
	return &AnalysisError{Category: category, Side: side, Collection: collection, Err: err}
}
