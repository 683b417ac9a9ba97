package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vzcode/vzsync/internal/reconcile"
	"github.com/vzcode/vzsync/internal/snapshot"
	"github.com/vzcode/vzsync/internal/ui"
)

var replayCmd = &cobra.Command{
	Use:     "replay <prev> <cur>",
	GroupID: "sync",
	Short:   "Apply the difference between two snapshots to a directory",
	Long: `Perform the save that turns a directory matching <prev> into one matching
<cur>: the same creates, renames, updates and deletes the daemon would run.

The planned steps are shown first and must be confirmed, unless --yes is
given. Failed steps are reported and do not stop the others.

Example usage:
  vzsync replay before.json after.json --root ./site
  vzsync replay before.yaml after.yaml --yes`,
	Args: cobra.ExactArgs(2),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().String("root", "", "Directory to apply the steps to (default: configured root)")
	replayCmd.Flags().BoolP("yes", "y", false, "Apply without asking")
	replayCmd.Flags().Bool("record", false, "Record the pass in the journal")
	rootCmd.AddCommand(replayCmd)
}

// errAborted is returned when the user declines the confirmation.
var errAborted = errors.New("aborted")

func runReplay(cmd *cobra.Command, args []string) error {
	prev, err := snapshot.ReadFile(args[0])
	if err != nil {
		return err
	}
	cur, err := snapshot.ReadFile(args[1])
	if err != nil {
		return err
	}

	root, _ := cmd.Flags().GetString("root")
	if root == "" {
		root = cfg.Root
	}
	yes, _ := cmd.Flags().GetBool("yes")
	record, _ := cmd.Flags().GetBool("record")
	out := cmd.OutOrStdout()

	steps := reconcile.Plan(prev, cur)
	if len(steps) == 0 {
		fmt.Fprintln(out, ui.RenderMuted("nothing to do"))
		return nil
	}
	fmt.Fprintln(out, ui.RenderPlan(steps))
	fmt.Fprintln(out)

	if !yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("refusing to apply %d steps without confirmation; pass --yes", len(steps))
		}
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Apply %d steps to %s?", len(steps), root)).
			Affirmative("Apply").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if err != nil {
			return fmt.Errorf("confirmation failed: %w", err)
		}
		if !confirmed {
			return errAborted
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to access root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", root)
	}

	res := reconcile.NewOS(root, logger.With("component", "reconcile")).Reconcile(prev, cur)
	fmt.Fprintln(out, ui.RenderResult(res))

	if record {
		j, err := openJournal(cmd.Context())
		if err != nil {
			return err
		}
		defer j.Close()
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		if _, err := j.RecordPass(cmd.Context(), abs, res); err != nil {
			return err
		}
	}

	if n := len(res.Failures()); n > 0 {
		return fmt.Errorf("%d of %d steps failed", n, len(res.Outcomes))
	}
	return nil
}
