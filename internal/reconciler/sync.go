package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/resolution"
	"github.com/dbsmedya/contentsync/internal/verifier"
)

// SyncResult is the outcome of analyze, apply and re-analyze for one collection.
type SyncResult struct {
	Collection   string                           `json:"collection"`
	Resolutions  map[string]resolution.Resolution `json:"resolutions"`
	Before       *differ.Report                   `json:"before"`
	After        *differ.Report                   `json:"after,omitempty"`
	Batch        *BatchResult                     `json:"batch"`
	Verification *verifier.VerifyStats            `json:"verification,omitempty"`
	StartedAt    time.Time                        `json:"startedAt"`
	CompletedAt  time.Time                        `json:"completedAt"`
	Duration     time.Duration                    `json:"duration"`
	Success      bool                             `json:"success"`
}

// Sync analyzes the collection, applies the given resolutions and, when every item
// succeeded, re-analyzes and verifies convergence. An analysis failure before the
// batch returns a nil result. Failures after the batch return the partial result
// alongside the error.
func (o *Orchestrator) Sync(ctx context.Context, resolutions map[string]resolution.Resolution) (*SyncResult, error) {
	return o.run(ctx, func(*differ.Report) map[string]resolution.Resolution {
		return resolutions
	})
}

// SyncSuggested is Sync with the policy's suggestion for every difference. The
// operator opts into this explicitly.
func (o *Orchestrator) SyncSuggested(ctx context.Context) (*SyncResult, error) {
	return o.run(ctx, o.policy.SuggestAll)
}

func (o *Orchestrator) run(ctx context.Context, choose func(*differ.Report) map[string]resolution.Resolution) (*SyncResult, error) {
	started := time.Now()

	before, err := o.Analyze(ctx)
	if err != nil {
		return nil, err
	}

	resolutions := choose(before)
	result := &SyncResult{
		Collection:  o.collection,
		Resolutions: resolutions,
		Before:      before,
		StartedAt:   started,
	}
	defer func() {
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
	}()

	result.Batch = o.ApplyBatch(ctx, before, resolutions)
	if !result.Batch.Success {
		o.logger.Warnw("Batch had failures, skipping convergence check",
			"failed", result.Batch.Failed,
		)
		return result, nil
	}

	after, err := o.Analyze(ctx)
	if err != nil {
		return result, fmt.Errorf("re-analysis after apply failed: %w", err)
	}
	result.After = after

	method := verifier.VerificationMethod(o.verificationCfg.Method)
	if o.verificationCfg.SkipVerification {
		method = verifier.MethodSkip
	}
	v, err := verifier.NewVerifier(method, o.logger)
	if err != nil {
		return result, fmt.Errorf("failed to create verifier: %w", err)
	}

	stats, err := v.Verify(before, after, resolutions)
	result.Verification = stats
	if err != nil {
		return result, fmt.Errorf("verification failed: %w", err)
	}

	result.Success = true
	return result, nil
}
