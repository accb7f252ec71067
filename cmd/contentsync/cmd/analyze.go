package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/resolution"
)

var (
	analyzeCollection string
	analyzeJSON       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Show differences between frontend and backend for a collection",
	Long: `Analyze fetches both copies of a collection, classifies every difference
and prints the resolution the collection policy suggests for each. Nothing is
written to the backend.

Example:
  contentsync analyze --config contentsync.yaml -C team
  contentsync analyze -C team --json > team-report.json`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeCollection, "collection", "C", "",
		"Collection name from configuration file (required)")
	analyzeCmd.MarkFlagRequired("collection")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false,
		"Print the report as JSON")

	rootCmd.AddCommand(analyzeCmd)
}

type analyzeOutput struct {
	Collection  string                           `json:"collection"`
	Report      *differ.Report                   `json:"report"`
	Suggestions map[string]resolution.Resolution `json:"suggestions"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	sess, err := newSession(ctx, false)
	if err != nil {
		return err
	}
	defer sess.close()

	o, err := sess.orchestrator(analyzeCollection)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	report, err := o.Analyze(ctx)
	if err != nil {
		return err
	}
	suggestions := o.Policy().SuggestAll(report)

	if analyzeJSON {
		enc := json.NewEncoder(outputWriter)
		enc.SetIndent("", "  ")
		return enc.Encode(analyzeOutput{Collection: o.Collection(), Report: report, Suggestions: suggestions})
	}

	newPrinter().Report(o.Collection(), report, suggestions)
	return nil
}
