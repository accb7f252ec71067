package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/contentsync/internal/config"
	"github.com/dbsmedya/contentsync/internal/content"
	"github.com/dbsmedya/contentsync/internal/database"
	"github.com/dbsmedya/contentsync/internal/graph"
)

var validateRemote bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and content files",
	Long: `Validate checks the configuration file and the frontend content without
touching the backend.

Checks performed:
  - Configuration syntax and required fields
  - Collection dependency graph (unknown collections, cycles)
  - Content file present and well shaped for every collection
  - History database connectivity (when enabled)
  - Backend reachability per collection (with --remote)

Example:
  contentsync validate --config contentsync.yaml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateRemote, "remote", false,
		"Also list every collection from the backend")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cmd.Printf("\n=== Configuration Validation ===\n")
	cmd.Printf("Config file: %s\n", GetConfigFile())
	cmd.Printf("Collections found: %d\n\n", len(cfg.Collections))

	g, err := graph.Build(cfg.Collections)
	if err != nil {
		return fmt.Errorf("collection graph invalid: %w", err)
	}
	order, err := g.SyncOrder()
	if err != nil {
		return err
	}
	cmd.Printf("Sync order: %v\n\n", order)

	failed := 0
	source := content.NewFileSource(cfg.Frontend.ContentDir, cfg.Frontend.SchemaValidation)
	for _, name := range order {
		records, err := source.Load(ctx, name)
		if err != nil {
			failed++
			cmd.Printf("  ✗ %s: %v\n", name, err)
			continue
		}
		cmd.Printf("  ✓ %s: %d records\n", name, len(records))
	}

	if cfg.History.Enabled {
		if err := checkHistory(ctx, &cfg.History); err != nil {
			failed++
			cmd.Printf("  ✗ history database: %v\n", err)
		} else {
			cmd.Printf("  ✓ history database reachable\n")
		}
	}

	if validateRemote {
		failed += checkBackend(ctx, cmd, cfg, order)
	}

	if failed > 0 {
		return fmt.Errorf("validation failed: %d check(s) failed", failed)
	}
	cmd.Printf("\n✓ Validation passed\n")
	return nil
}

func checkHistory(ctx context.Context, cfg *config.HistoryConfig) error {
	dbManager, err := database.NewManager(cfg)
	if err != nil {
		return err
	}
	if err := dbManager.Connect(ctx); err != nil {
		return err
	}
	defer dbManager.Close()
	return dbManager.Ping(ctx)
}

func checkBackend(ctx context.Context, cmd *cobra.Command, cfg *config.Config, collections []string) int {
	store, err := newStore(cfg, nil)
	if err != nil {
		cmd.Printf("  ✗ backend: %v\n", err)
		return 1
	}

	failed := 0
	for _, name := range collections {
		records, err := store.ListRecords(ctx, name)
		if err != nil {
			failed++
			cmd.Printf("  ✗ backend %s: %v\n", name, err)
			continue
		}
		cmd.Printf("  ✓ backend %s: %d records\n", name, len(records))
	}
	return failed
}
