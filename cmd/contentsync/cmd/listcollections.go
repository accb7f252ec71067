package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/contentsync/internal/config"
)

var listCollectionsCmd = &cobra.Command{
	Use:   "list-collections",
	Short: "List all collections defined in configuration",
	Long: `List-collections displays all collections defined in the configuration file
along with their basic settings.

Example:
  contentsync list-collections --config contentsync.yaml`,
	RunE: runListCollections,
}

func init() {
	rootCmd.AddCommand(listCollectionsCmd)
}

func runListCollections(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	names := cfg.ListCollections()
	if len(names) == 0 {
		cmd.Printf("No collections defined in %s\n", configFile)
		return nil
	}

	cmd.Printf("Collections defined in %s:\n\n", configFile)
	for i, name := range names {
		coll := cfg.Collections[name]
		keyBy := coll.KeyBy
		if keyBy == "" {
			keyBy = "id"
		}

		cmd.Printf("%d. %s\n", i+1, name)
		cmd.Printf("   Key By:        %s\n", keyBy)
		if len(coll.IgnoreFields) > 0 {
			cmd.Printf("   Ignore Fields: %s\n", strings.Join(coll.IgnoreFields, ", "))
		}
		if len(coll.DependsOn) > 0 {
			cmd.Printf("   Depends On:    %s\n", strings.Join(coll.DependsOn, ", "))
		}
		if coll.Processing != nil && coll.Processing.ItemDelaySeconds > 0 {
			cmd.Printf("   Item Delay:    %.1fs (collection-specific)\n", coll.Processing.ItemDelaySeconds)
		}
		if coll.Verification != nil && coll.Verification.Method != "" {
			cmd.Printf("   Verification:  %s (collection-specific)\n", coll.Verification.Method)
		}
		cmd.Println()
	}
	return nil
}
