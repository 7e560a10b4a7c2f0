// Command revindexctl drives the revindex indexer from the command
// line: bootstrap a fake oracle from a JSON ancestry document, import a
// tip, and run read-path queries against the resulting database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "revindexctl",
	Short:         "Persistent incremental merge-sort revision indexer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "data", Title: "Data commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "query", Title: "Query commands:"})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "revindexctl: %v\n", err)
		os.Exit(1)
	}
}
