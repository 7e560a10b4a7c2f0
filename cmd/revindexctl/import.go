package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importAncestryPath string

var importCmd = &cobra.Command{
	Use:     "import",
	GroupID: "data",
	Short:   "Import the ancestry document's tip into an existing database",
	Long: `Import runs one Importer.Import call against db_path (created if
missing) using the tip and parent map from the given ancestry JSON
document. Unlike bootstrap, the existing database is left in place, so
repeated imports of growing ancestries exercise the incremental path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupEnv(cmd.Context(), importAncestryPath)
		if err != nil {
			return err
		}
		defer e.close()

		result, err := e.imp.Import(cmd.Context(), e.oracleM, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %s: tip db_id=%d outcome=%v\n", e.cfg.DBPath, result.Tip, result.Outcome)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importAncestryPath, "ancestry", "", "path to the ancestry JSON document")
	_ = importCmd.MarkFlagRequired("ancestry")
	rootCmd.AddCommand(importCmd)
}
