package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/record"
	"github.com/dbsmedya/contentsync/internal/resolution"
)

// ItemResult is the outcome of one resolution in a batch.
type ItemResult struct {
	Name       string                `json:"name"`
	Key        string                `json:"key"`
	Kind       differ.Kind           `json:"kind,omitempty"`
	Resolution resolution.Resolution `json:"resolution"`
	Op         resolution.Op         `json:"op,omitempty"`
	ID         string                `json:"id,omitempty"`
	Success    bool                  `json:"success"`
	Error      string                `json:"error,omitempty"`
	Err        error                 `json:"-"`
}

// BatchResult aggregates every item of one ApplyBatch call.
type BatchResult struct {
	Collection  string        `json:"collection"`
	Success     bool          `json:"success"`
	Results     []ItemResult  `json:"results"`
	Applied     int           `json:"applied"`
	Failed      int           `json:"failed"`
	Message     string        `json:"message"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"duration"`
}

// PlannedItem is one resolution paired with the backend call it implies.
type PlannedItem struct {
	Difference differ.Difference
	Resolution resolution.Resolution
	Mutation   resolution.Mutation
	Err        error
}

// Plan selects the items a batch would attempt, in report order, without calling
// the backend. Differences with no resolution are skipped; each key is handled once
// even when the report holds duplicates. Resolutions for keys absent from the report
// come last, sorted, each carrying an error.
func (o *Orchestrator) Plan(report *differ.Report, resolutions map[string]resolution.Resolution) []PlannedItem {
	items := make([]PlannedItem, 0, len(resolutions))
	seen := make(map[string]bool, len(resolutions))

	if report != nil {
		for _, d := range report.Differences {
			res, ok := resolutions[d.Key]
			if !ok || seen[d.Key] {
				continue
			}
			seen[d.Key] = true
			mutation, err := resolution.Plan(d, res, o.options.IgnoreFields)
			items = append(items, PlannedItem{Difference: d, Resolution: res, Mutation: mutation, Err: err})
		}
	}

	var unknown []string
	for key := range resolutions {
		if !seen[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		items = append(items, PlannedItem{
			Difference: differ.Difference{Key: key, Label: key},
			Resolution: resolutions[key],
			Err:        fmt.Errorf("%w: no difference for key %q", resolution.ErrInvalidResolution, key),
		})
	}
	return items
}

// ApplyBatch executes resolutions against the backend one item at a time. A failed
// item is recorded and the batch moves on; only context cancellation stops it, and
// then every remaining item is recorded as failed.
func (o *Orchestrator) ApplyBatch(ctx context.Context, report *differ.Report, resolutions map[string]resolution.Resolution) *BatchResult {
	result := &BatchResult{
		Collection: o.collection,
		Results:    make([]ItemResult, 0, len(resolutions)),
		StartedAt:  time.Now(),
	}

	plan := o.Plan(report, resolutions)
	delay := time.Duration(o.processingCfg.ItemDelaySeconds * float64(time.Second))

	o.logger.Infow("Starting batch",
		"items", len(plan),
		"item_delay_seconds", o.processingCfg.ItemDelaySeconds,
	)

	mutations := 0
	for _, item := range plan {
		d := item.Difference
		out := ItemResult{
			Name:       d.Label,
			Key:        d.Key,
			Kind:       d.Kind,
			Resolution: item.Resolution,
			Op:         item.Mutation.Op,
			ID:         item.Mutation.ID,
		}

		switch {
		case ctx.Err() != nil:
			out.Err = fmt.Errorf("%w: not attempted: %w", ErrItemMutation, ctx.Err())
		case item.Err != nil:
			out.Err = item.Err
		case item.Mutation.Op == resolution.OpNone:
			out.Success = true
		default:
			if mutations > 0 && delay > 0 {
				if err := o.sleep(ctx, delay); err != nil {
					out.Err = fmt.Errorf("%w: not attempted: %w", ErrItemMutation, err)
					break
				}
			}
			mutations++
			id, err := o.execute(ctx, item.Mutation)
			if err != nil {
				out.Err = fmt.Errorf("%w: %s %q: %w", ErrItemMutation, item.Mutation.Op, d.Key, err)
			} else {
				out.Success = true
				out.ID = id
			}
		}

		log := o.logger.WithKey(d.Key)
		if out.Err != nil {
			out.Error = out.Err.Error()
			result.Failed++
			log.Warnw("Resolution failed", "resolution", out.Resolution, "error", out.Err)
		} else {
			result.Applied++
			log.Debugw("Resolution applied", "resolution", out.Resolution, "op", out.Op, "id", out.ID)
		}

		result.Results = append(result.Results, out)
		if o.onItem != nil {
			o.onItem(out)
		}
	}

	result.Success = result.Failed == 0
	result.Message = fmt.Sprintf("%d of %d resolutions applied", result.Applied, len(result.Results))
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	o.logger.Infow("Batch complete",
		"success", result.Success,
		"applied", result.Applied,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return result
}

func (o *Orchestrator) execute(ctx context.Context, m resolution.Mutation) (string, error) {
	switch m.Op {
	case resolution.OpCreate:
		created, err := o.store.CreateRecord(ctx, o.collection, m.Fields)
		if err != nil {
			return "", err
		}
		return record.ToString(created["id"]), nil
	case resolution.OpUpdate:
		if _, err := o.store.UpdateRecord(ctx, o.collection, m.ID, m.Fields); err != nil {
			return "", err
		}
		return m.ID, nil
	default:
		return "", fmt.Errorf("unsupported operation %q", m.Op)
	}
}
