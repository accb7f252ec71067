package history

import (
	"context"

	"github.com/dbsmedya/contentsync/internal/reconciler"
)

// SyncFunc runs one sync of an orchestrator's collection.
type SyncFunc func(ctx context.Context) (*reconciler.SyncResult, error)

// Track journals a sync: it opens a run, records every batch item as it completes
// and closes the run with the outcome. Journal failures are logged and never fail
// the sync itself. A nil journal just runs the sync.
func (j *Journal) Track(ctx context.Context, o *reconciler.Orchestrator, run SyncFunc) (*reconciler.SyncResult, string, error) {
	if j == nil {
		result, err := run(ctx)
		return result, "", err
	}

	log := j.logger.WithCollection(o.Collection())
	runID, err := j.StartRun(ctx, o.Collection())
	if err != nil {
		log.Warnw("Failed to journal run start", "error", err)
		result, err := run(ctx)
		return result, "", err
	}
	log = log.WithRun(runID)

	// Outcomes are journaled even when ctx is cancelled mid-batch.
	jctx := context.WithoutCancel(ctx)

	o.OnItem(func(item reconciler.ItemResult) {
		if err := j.RecordItem(jctx, runID, item); err != nil {
			log.Warnw("Failed to journal item", "key", item.Key, "error", err)
		}
	})
	defer o.OnItem(nil)

	result, runErr := run(ctx)

	if err := j.FinishRun(jctx, runID, result, runErr); err != nil {
		log.Warnw("Failed to journal run outcome", "error", err)
	}
	return result, runID, runErr
}
