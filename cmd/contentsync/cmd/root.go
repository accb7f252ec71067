package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/contentsync/internal/config"
	"github.com/dbsmedya/contentsync/internal/render"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile    string
	envFile    string
	logLevel   string
	logFormat  string
	itemDelay  float64
	skipVerify bool
	noColor    bool
)

// outputWriter receives reports; tests replace it.
var outputWriter io.Writer = os.Stdout

var rootCmd = &cobra.Command{
	Use:   "contentsync",
	Short: "Frontend/backend content reconciler",
	Long: `contentsync compares the frontend's static content collections with the
backoffice REST backend, shows every difference, and applies the resolutions
an operator chose as a sequential batch of backend calls.

Features:
  - MISSING_IN_BACKEND / MISSING_IN_FRONTEND / MISMATCH classification
  - Suggested resolutions per collection policy
  - Best-effort batches with per-item outcomes
  - Convergence check after every fully applied batch
  - Optional MySQL run history and cross-process collection locks`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvFile,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "contentsync.yaml",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"Dotenv file loaded before the configuration (ignored if missing)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	rootCmd.PersistentFlags().Float64Var(&itemDelay, "item-delay", 0,
		"Override seconds to wait between backend mutations")
	rootCmd.PersistentFlags().BoolVar(&skipVerify, "skip-verify", false,
		"Skip the convergence check after a batch")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable colored output")
}

// loadEnvFile populates the environment from the dotenv file so ${VAR}
// references in the configuration resolve. Existing variables win.
func loadEnvFile(cmd *cobra.Command, args []string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel   string
	LogFormat  string
	ItemDelay  float64
	SkipVerify bool
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		ItemDelay:  itemDelay,
		SkipVerify: skipVerify,
	}
}

// loadConfig reads, overrides and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.ItemDelay, overrides.SkipVerify)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newPrinter() *render.Printer {
	return render.NewPrinter(outputWriter, !noColor)
}

// commandContext returns the command's context, or Background when the command
// runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
