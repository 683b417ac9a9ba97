package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vzcode/vzsync/internal/patch"
	"github.com/vzcode/vzsync/internal/reconcile"
	"github.com/vzcode/vzsync/internal/snapshot"
	"github.com/vzcode/vzsync/internal/ui"
)

var diffCmd = &cobra.Command{
	Use:     "diff <prev> <next>",
	GroupID: "inspect",
	Short:   "Show the patch between two snapshots",
	Long: `Compute the patch turning the document in <prev> into the one in <next>.
Snapshot formats are picked from the file extensions.

With --plan, show the filesystem steps a save would perform instead.

Example usage:
  vzsync diff before.json after.json
  vzsync diff before.yaml after.yaml --plan`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().Bool("plan", false, "Show filesystem steps instead of the patch")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	prev, err := snapshot.ReadFile(args[0])
	if err != nil {
		return err
	}
	next, err := snapshot.ReadFile(args[1])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if showPlan, _ := cmd.Flags().GetBool("plan"); showPlan {
		fmt.Fprintln(out, ui.RenderPlan(reconcile.Plan(prev, next)))
		return nil
	}

	p, err := patch.DiffDocuments(prev, next)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Fprintln(out, ui.RenderMuted("no changes"))
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
