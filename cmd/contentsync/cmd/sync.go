package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/contentsync/internal/config"
	"github.com/dbsmedya/contentsync/internal/graph"
	"github.com/dbsmedya/contentsync/internal/history"
	"github.com/dbsmedya/contentsync/internal/lock"
	"github.com/dbsmedya/contentsync/internal/reconciler"
	"github.com/dbsmedya/contentsync/internal/resolution"
)

var (
	syncCollections       []string
	syncAll               bool
	syncWithDeps          bool
	syncResolutionsFile   string
	syncAcceptSuggestions bool
	syncRetryRun          string
	syncDryRun            bool
	syncForce             bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Apply resolutions to the backend and check convergence",
	Long: `Sync analyzes a collection, applies the chosen resolutions as a sequential
batch of backend calls and, when every item succeeded, re-analyzes to confirm
the differences are gone.

Resolutions come from exactly one of:
  --resolutions FILE        YAML map of difference key to resolution
  --accept-suggestions      the collection policy's suggestion for every difference
  --retry-run RUN_ID        the failed items of a recorded run (history enabled)

A failed item never stops the batch. Batches of one collection are serialized
with a lock (a MySQL advisory lock when history is enabled).

Example:
  contentsync sync -C team --resolutions team-resolutions.yaml
  contentsync sync --all --accept-suggestions --dry-run`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringSliceVarP(&syncCollections, "collection", "C", nil,
		"Collection to sync (repeatable)")
	syncCmd.Flags().BoolVar(&syncAll, "all", false,
		"Sync every configured collection in dependency order")
	syncCmd.Flags().BoolVar(&syncWithDeps, "with-deps", false,
		"Also sync the collections the named ones depend on")
	syncCmd.Flags().StringVar(&syncResolutionsFile, "resolutions", "",
		"YAML file mapping difference keys to resolutions")
	syncCmd.Flags().BoolVar(&syncAcceptSuggestions, "accept-suggestions", false,
		"Apply the suggested resolution to every difference")
	syncCmd.Flags().StringVar(&syncRetryRun, "retry-run", "",
		"Retry the failed items of a recorded run")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false,
		"Print the backend calls without making them")
	syncCmd.Flags().BoolVar(&syncForce, "force", false,
		"Run even if the collection lock cannot be acquired (use with caution)")

	rootCmd.AddCommand(syncCmd)
}

// resolutionsFile is the YAML layout accepted by --resolutions.
type resolutionsFile struct {
	Resolutions map[string]string `yaml:"resolutions"`
}

func runSync(cmd *cobra.Command, args []string) error {
	if err := checkSyncFlags(); err != nil {
		return err
	}

	sess, err := newSession(commandContext(cmd), !syncDryRun || syncRetryRun != "")
	if err != nil {
		return err
	}
	defer sess.close()

	ctx, cancel := setupSignalHandler(sess.log)
	defer cancel()

	collections, err := syncTargets(sess.cfg.Collections)
	if err != nil {
		return err
	}

	var fixed map[string]resolution.Resolution
	switch {
	case syncResolutionsFile != "":
		if fixed, err = loadResolutions(syncResolutionsFile); err != nil {
			return err
		}
	case syncRetryRun != "":
		if fixed, err = retryResolutions(ctx, sess.journal, syncRetryRun, collections[0]); err != nil {
			return err
		}
	}

	p := newPrinter()
	for _, name := range collections {
		o, err := sess.orchestrator(name)
		if err != nil {
			return fmt.Errorf("failed to create orchestrator for %q: %w", name, err)
		}

		if syncDryRun {
			report, err := o.Analyze(ctx)
			if err != nil {
				return err
			}
			resolutions := fixed
			if syncAcceptSuggestions {
				resolutions = o.Policy().SuggestAll(report)
			}
			p.Plan(name, o.Plan(report, resolutions))
			fmt.Fprintln(outputWriter)
			continue
		}

		run := func(ctx context.Context) (*reconciler.SyncResult, error) {
			return o.Sync(ctx, fixed)
		}
		if syncAcceptSuggestions {
			run = o.SyncSuggested
		}

		result, err := syncCollection(ctx, sess, o, run)
		if result != nil {
			p.Sync(result)
			fmt.Fprintln(outputWriter)
		}
		if err != nil {
			return fmt.Errorf("sync of %q failed: %w", name, err)
		}
		if !result.Success {
			return fmt.Errorf("sync of %q did not converge: %s", name, result.Batch.Message)
		}
	}
	return nil
}

func syncCollection(ctx context.Context, sess *session, o *reconciler.Orchestrator, run history.SyncFunc) (*reconciler.SyncResult, error) {
	if syncForce {
		sess.log.Warnw("Skipping collection lock (--force flag used)", "collection", o.Collection())
		result, _, err := sess.journal.Track(ctx, o, run)
		return result, err
	}

	var result *reconciler.SyncResult
	err := lock.WithLock(ctx, sess.collectionLock(o.Collection()), func() error {
		var runErr error
		result, _, runErr = sess.journal.Track(ctx, o, run)
		return runErr
	})
	if errors.Is(err, lock.ErrLockTimeout) {
		return nil, fmt.Errorf("collection %q is being synced by another run (use --force to override)", o.Collection())
	}
	return result, err
}

func checkSyncFlags() error {
	sources := 0
	for _, set := range []bool{syncResolutionsFile != "", syncAcceptSuggestions, syncRetryRun != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of --resolutions, --accept-suggestions or --retry-run is required")
	}
	if syncAll && len(syncCollections) > 0 {
		return fmt.Errorf("--all and --collection are mutually exclusive")
	}
	if !syncAll && len(syncCollections) == 0 {
		return fmt.Errorf("--collection or --all is required")
	}
	if !syncAcceptSuggestions && (syncAll || syncWithDeps || len(syncCollections) > 1) {
		return fmt.Errorf("fixed resolutions apply to a single collection; use --accept-suggestions for several")
	}
	return nil
}

// syncTargets returns the collections to sync in dependency order.
func syncTargets(collections map[string]config.CollectionConfig) ([]string, error) {
	g, err := graph.Build(collections)
	if err != nil {
		return nil, fmt.Errorf("failed to build collection graph: %w", err)
	}
	if syncAll {
		return g.SyncOrder()
	}
	if syncWithDeps {
		return g.OrderFor(syncCollections...)
	}

	order, err := g.SyncOrder()
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(syncCollections))
	for _, name := range syncCollections {
		if !g.HasNode(name) {
			return nil, fmt.Errorf("collection %q not found in configuration", name)
		}
		wanted[name] = true
	}
	targets := make([]string, 0, len(wanted))
	for _, name := range order {
		if wanted[name] {
			targets = append(targets, name)
		}
	}
	return targets, nil
}

func loadResolutions(path string) (map[string]resolution.Resolution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resolutions file: %w", err)
	}

	var file resolutionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse resolutions file %s: %w", path, err)
	}

	out := make(map[string]resolution.Resolution, len(file.Resolutions))
	for key, value := range file.Resolutions {
		res, err := resolution.ParseResolution(value)
		if err != nil {
			return nil, fmt.Errorf("resolutions file %s, key %q: %w", path, key, err)
		}
		out[key] = res
	}
	return out, nil
}

// retryResolutions rebuilds the resolutions of a run's failed items. The run must
// belong to the collection being synced.
func retryResolutions(ctx context.Context, journal *history.Journal, runID, collection string) (map[string]resolution.Resolution, error) {
	if journal == nil {
		return nil, fmt.Errorf("--retry-run needs history.enabled in the configuration")
	}
	run, err := journal.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Collection != collection {
		return nil, fmt.Errorf("run %s synced collection %q, not %q", runID, run.Collection, collection)
	}
	items, err := journal.Items(ctx, runID, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]resolution.Resolution, len(items))
	for _, item := range items {
		res, err := resolution.ParseResolution(item.Resolution)
		if err != nil {
			return nil, fmt.Errorf("run %s, key %q: %w", runID, item.Key, err)
		}
		out[item.Key] = res
	}
	return out, nil
}
