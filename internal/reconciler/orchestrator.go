// Package reconciler drives analysis and batch application of resolutions for one
// content collection.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/contentsync/internal/backend"
	"github.com/dbsmedya/contentsync/internal/config"
	"github.com/dbsmedya/contentsync/internal/content"
	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/logger"
	"github.com/dbsmedya/contentsync/internal/record"
	"github.com/dbsmedya/contentsync/internal/resolution"
)

// ItemCallback is called after each batch item is attempted.
type ItemCallback func(item ItemResult)

// Orchestrator reconciles one collection between a content Source (frontend) and a
// backend Store. It holds no lock: callers must not run two batches at once.
type Orchestrator struct {
	collection      string
	source          content.Source
	store           backend.Store
	options         differ.Options
	policy          resolution.Policy
	processingCfg   config.ProcessingConfig   // effective (collection or global)
	verificationCfg config.VerificationConfig // effective (collection or global)
	logger          *logger.Logger
	onItem          ItemCallback
	sleep           func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	lastReport *differ.Report
}

// NewOrchestrator creates an orchestrator for a configured collection.
func NewOrchestrator(cfg *config.Config, collection string, source content.Source, store backend.Store, log *logger.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if source == nil {
		return nil, fmt.Errorf("content source is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("backend store is nil")
	}
	collCfg, err := cfg.GetCollection(collection)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDefault()
	}

	policy, err := resolution.NewPolicy(
		collCfg.ResolutionPolicy.MissingInBackend,
		collCfg.ResolutionPolicy.MissingInFrontend,
		collCfg.ResolutionPolicy.Mismatch,
	)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", collection, err)
	}

	keyBy := record.KeyStrategy(collCfg.KeyBy)
	if keyBy == "" {
		keyBy = record.KeyByID
	}

	return &Orchestrator{
		collection: collection,
		source:     source,
		store:      store,
		options: differ.Options{
			KeyBy:        keyBy,
			IgnoreFields: collCfg.IgnoreFields,
		},
		policy:          policy,
		processingCfg:   cfg.GetCollectionProcessing(collection),
		verificationCfg: cfg.GetCollectionVerification(collection),
		logger:          log.WithCollection(collection),
		sleep:           sleepContext,
	}, nil
}

// Collection returns the collection name.
func (o *Orchestrator) Collection() string {
	return o.collection
}

// Policy returns the suggestion policy in effect for the collection.
func (o *Orchestrator) Policy() resolution.Policy {
	return o.policy
}

// OnItem registers a callback invoked after every batch item.
func (o *Orchestrator) OnItem(cb ItemCallback) {
	o.onItem = cb
}

// LastReport returns the report of the most recent successful Analyze, or nil.
func (o *Orchestrator) LastReport() *differ.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastReport
}

// Analyze fetches both collections and diffs them. Either both fetches succeed and a
// report is returned, or an *AnalysisError is returned and the last report is kept.
func (o *Orchestrator) Analyze(ctx context.Context) (*differ.Report, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is nil")
	}

	started := time.Now()
	o.logger.Infow("Starting analysis", "key_by", o.options.KeyBy)

	var frontend, backendRecords []record.Raw
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := o.source.Load(gctx, o.collection)
		if err != nil {
			return classifyFetch(o.collection, SideFrontend, err)
		}
		frontend = records
		return nil
	})
	g.Go(func() error {
		records, err := o.store.ListRecords(gctx, o.collection)
		if err != nil {
			return classifyFetch(o.collection, SideBackend, err)
		}
		backendRecords = records
		return nil
	})
	if err := g.Wait(); err != nil {
		o.logger.Errorw("Analysis failed", "error", err)
		return nil, err
	}

	report := differ.Diff(frontend, backendRecords, o.options)

	o.mu.Lock()
	o.lastReport = report
	o.mu.Unlock()

	o.logger.Infow("Analysis complete",
		"frontend_records", len(frontend),
		"backend_records", len(backendRecords),
		"total_differences", report.TotalDifferences,
		"missing_in_backend", report.ByType[differ.MissingInBackend],
		"missing_in_frontend", report.ByType[differ.MissingInFrontend],
		"mismatches", report.ByType[differ.Mismatch],
		"duration", time.Since(started),
	)
	return report, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
