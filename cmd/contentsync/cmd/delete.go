package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	deleteCollection string
	deleteID         string
	deleteConfirm    bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete one record from the backend",
	Long: `Delete removes a single backend record by id. Reconciliation never deletes,
so this is the only way to remove a backend record that should not exist.

The command refuses to run without --yes.

Example:
  contentsync delete -C team --id 64b7f1 --yes`,
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringVarP(&deleteCollection, "collection", "C", "",
		"Collection name from configuration file (required)")
	deleteCmd.MarkFlagRequired("collection")
	deleteCmd.Flags().StringVar(&deleteID, "id", "",
		"Backend record id (required)")
	deleteCmd.MarkFlagRequired("id")
	deleteCmd.Flags().BoolVar(&deleteConfirm, "yes", false,
		"Confirm the deletion")

	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if !deleteConfirm {
		return fmt.Errorf("refusing to delete %s/%s without --yes", deleteCollection, deleteID)
	}

	ctx := commandContext(cmd)
	sess, err := newSession(ctx, false)
	if err != nil {
		return err
	}
	defer sess.close()

	if _, err := sess.cfg.GetCollection(deleteCollection); err != nil {
		return err
	}

	if err := sess.store.DeleteRecord(ctx, deleteCollection, deleteID); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", deleteCollection, deleteID, err)
	}

	sess.log.Infow("Backend record deleted", "collection", deleteCollection, "id", deleteID)
	fmt.Fprintf(outputWriter, "Deleted %s/%s\n", deleteCollection, deleteID)
	return nil
}
