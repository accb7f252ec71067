package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyCollection string
	historyRun        string
	historyFailed     bool
	historyLimit      int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded sync runs",
	Long: `History lists the most recent sync runs of a collection, or the items of
one run. Failed items of a run can be retried with sync --retry-run.

Requires history.enabled in the configuration.

Example:
  contentsync history -C team
  contentsync history -C team --run 3f1c2a9e-... --failed`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyCollection, "collection", "C", "",
		"Collection name from configuration file (required)")
	historyCmd.MarkFlagRequired("collection")
	historyCmd.Flags().StringVar(&historyRun, "run", "",
		"Show the items of one run")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false,
		"With --run, show only failed items")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"Number of runs to show")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	sess, err := newSession(ctx, true)
	if err != nil {
		return err
	}
	defer sess.close()

	if sess.journal == nil {
		return fmt.Errorf("history is disabled; set history.enabled in %s", GetConfigFile())
	}
	if _, err := sess.cfg.GetCollection(historyCollection); err != nil {
		return err
	}

	p := newPrinter()
	if historyRun != "" {
		items, err := sess.journal.Items(ctx, historyRun, historyFailed)
		if err != nil {
			return err
		}
		p.Header("Run %s", historyRun)
		fmt.Fprintln(outputWriter)
		p.Items(items)
		return nil
	}

	runs, err := sess.journal.ListRuns(ctx, historyCollection, historyLimit)
	if err != nil {
		return err
	}
	p.Runs(historyCollection, runs)
	return nil
}
