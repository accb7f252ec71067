package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/contentsync/internal/config"
	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/graph"
	"github.com/dbsmedya/contentsync/internal/resolution"
)

var planCollection string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the backend calls the suggested resolutions would make",
	Long: `Plan analyzes a collection, applies the collection policy's suggestion to
every difference and prints the resulting backend calls without making them.

The plan shows:
  - Collection sync order (dependencies first) next to the collection settings
  - One row per difference with its suggested resolution and backend call

Example:
  contentsync plan --config contentsync.yaml -C team`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planCollection, "collection", "C", "",
		"Collection name from configuration file (required)")
	planCmd.MarkFlagRequired("collection")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	sess, err := newSession(ctx, false)
	if err != nil {
		return err
	}
	defer sess.close()

	g, err := graph.Build(sess.cfg.Collections)
	if err != nil {
		return fmt.Errorf("failed to build collection graph: %w", err)
	}
	order, err := g.OrderFor(planCollection)
	if err != nil {
		return fmt.Errorf("failed to order collections: %w", err)
	}

	o, err := sess.orchestrator(planCollection)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	p := newPrinter()
	p.Header("Collection Order")
	fmt.Fprintln(outputWriter)
	p.SideBySide(orderLines(g, order), summaryLines(sess.cfg, planCollection, o.Policy()), 4)
	fmt.Fprintln(outputWriter)

	report, err := o.Analyze(ctx)
	if err != nil {
		return err
	}
	p.Plan(o.Collection(), o.Plan(report, o.Policy().SuggestAll(report)))
	return nil
}

// orderLines lists collections in sync order with the collections each waits on.
func orderLines(g *graph.Graph, order []string) []string {
	lines := make([]string, 0, len(order))
	for i, name := range order {
		line := fmt.Sprintf("[%d] %s", i+1, name)
		if deps := g.Dependencies(name); len(deps) > 0 {
			line += " <- " + strings.Join(deps, ", ")
		}
		lines = append(lines, line)
	}
	return lines
}

func summaryLines(cfg *config.Config, name string, policy resolution.Policy) []string {
	coll := cfg.Collections[name]
	processing := cfg.GetCollectionProcessing(name)
	verification := cfg.GetCollectionVerification(name)

	keyBy := coll.KeyBy
	if keyBy == "" {
		keyBy = "id"
	}
	ignore := "-"
	if len(coll.IgnoreFields) > 0 {
		ignore = strings.Join(coll.IgnoreFields, ", ")
	}
	method := verification.Method
	if verification.SkipVerification {
		method = "skip"
	}

	lines := []string{
		"[ Collection ]",
		strings.Repeat("-", 14),
		fmt.Sprintf("Key By:          %s", keyBy),
		fmt.Sprintf("Ignore Fields:   %s", ignore),
		"",
		"[ Policy ]",
		strings.Repeat("-", 10),
	}
	for _, kind := range differ.Kinds {
		lines = append(lines, fmt.Sprintf("%-20s %s", string(kind)+":", policy[kind]))
	}
	lines = append(lines,
		"",
		"[ Processing ]",
		strings.Repeat("-", 14),
		fmt.Sprintf("Item Delay:      %.1fs", processing.ItemDelaySeconds),
		fmt.Sprintf("Verification:    %s", method),
	)
	return lines
}
