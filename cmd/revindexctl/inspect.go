package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jugmac00/revindex/internal/config"
	"github.com/jugmac00/revindex/internal/store"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	GroupID: "query",
	Short:   "Print row counts for an existing database's tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPathFlag)
		if err != nil {
			return err
		}
		s, err := store.Open(cmd.Context(), cfg.DBPath, cfg.MaxCacheSizeBytes)
		if err != nil {
			return err
		}
		defer s.Close()

		for _, table := range []string{"revision", "ghost", "parent", "dotted_revno", "mainline_parent_range", "mainline_parent"} {
			var n int
			if err := s.DB().QueryRowContext(cmd.Context(), "SELECT count(*) FROM "+table).Scan(&n); err != nil {
				return fmt.Errorf("revindex: counting %s: %w", table, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", table, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
