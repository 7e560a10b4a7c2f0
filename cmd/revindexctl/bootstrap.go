package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jugmac00/revindex/internal/config"
)

var bootstrapAncestryPath string

var bootstrapCmd = &cobra.Command{
	Use:     "bootstrap",
	GroupID: "data",
	Short:   "Create a fresh database and import an ancestry document's tip",
	Long: `Bootstrap removes any existing database at db_path, creates a fresh one,
and runs a full import of the tip named in the given ancestry JSON document.

This is the command the test suite and local experiments use in place of
a real bzr/git checkout: oracle.Memory is loaded straight from the
document instead of querying a live VCS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPathFlag)
		if err != nil {
			return err
		}
		if err := os.Remove(cfg.DBPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("revindex: removing existing database %s: %w", cfg.DBPath, err)
		}

		e, err := setupEnv(cmd.Context(), bootstrapAncestryPath)
		if err != nil {
			return err
		}
		defer e.close()

		result, err := e.imp.Import(cmd.Context(), e.oracleM, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "bootstrapped %s: tip db_id=%d outcome=%v\n", cfg.DBPath, result.Tip, result.Outcome)
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapAncestryPath, "ancestry", "", "path to the ancestry JSON document")
	_ = bootstrapCmd.MarkFlagRequired("ancestry")
	rootCmd.AddCommand(bootstrapCmd)
}
