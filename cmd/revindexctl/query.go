package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jugmac00/revindex/internal/types"
)

var queryAncestryPath string

var queryCmd = &cobra.Command{
	Use:     "query",
	GroupID: "query",
	Short:   "Read-only lookups against an already-imported database",
}

var dottedRevnosCmd = &cobra.Command{
	Use:   "dotted-revnos <revision-id>...",
	Short: "Print the dotted revno of each given revision id under the current tip",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupEnv(cmd.Context(), queryAncestryPath)
		if err != nil {
			return err
		}
		defer e.close()

		ids := make([]types.RevID, len(args))
		for i, a := range args {
			ids[i] = types.RevID(a)
		}
		out, err := e.q.GetDottedRevnos(cmd.Context(), ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			revno, ok := out[id]
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t<unresolved>\n", id)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, revno)
		}
		return nil
	},
}

var revisionIDsCmd = &cobra.Command{
	Use:   "revision-ids <revno>...",
	Short: "Print the revision id for each given dotted revno under the current tip",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupEnv(cmd.Context(), queryAncestryPath)
		if err != nil {
			return err
		}
		defer e.close()

		revnos := make([]types.DottedRevno, 0, len(args))
		for _, a := range args {
			r, err := types.ParseDottedRevno(a)
			if err != nil {
				return fmt.Errorf("revindex: parsing revno %q: %w", a, err)
			}
			revnos = append(revnos, r)
		}
		out, err := e.q.GetRevisionIDs(cmd.Context(), revnos)
		if err != nil {
			return err
		}
		for _, r := range revnos {
			id, ok := out[r.String()]
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t<unresolved>\n", r)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r, id)
		}
		return nil
	},
}

var mainlineCmd = &cobra.Command{
	Use:   "mainline",
	Short: "Print the current tip's mainline, tip-first",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupEnv(cmd.Context(), queryAncestryPath)
		if err != nil {
			return err
		}
		defer e.close()

		revs, err := e.q.WalkMainline(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range revs {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

var ancestryCmd = &cobra.Command{
	Use:   "ancestry",
	Short: "Stream the current tip's full merge-sorted ancestry, tip-first",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupEnv(cmd.Context(), queryAncestryPath)
		if err != nil {
			return err
		}
		defer e.close()

		cur, err := e.q.WalkAncestry(cmd.Context())
		if err != nil {
			return err
		}
		defer cur.Close()

		for {
			row, ok, err := cur.Next(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tdepth=%d\tend_of_merge=%v\n",
				row.RevisionID, row.Revno, row.MergeDepth, row.EndOfMerge)
		}
		return nil
	},
}

func init() {
	queryCmd.PersistentFlags().StringVar(&queryAncestryPath, "ancestry", "", "path to the ancestry JSON document")
	_ = queryCmd.MarkPersistentFlagRequired("ancestry")
	queryCmd.AddCommand(dottedRevnosCmd, revisionIDsCmd, mainlineCmd, ancestryCmd)
	rootCmd.AddCommand(queryCmd)
}
