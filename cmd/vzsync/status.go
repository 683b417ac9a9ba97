package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/vzcode/vzsync/internal/journal"
	"github.com/vzcode/vzsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status [root]",
	GroupID: "inspect",
	Short:   "Show recent save passes and failures from the journal",
	Long: `Display the save passes recorded by 'vzsync serve' for a workspace, newest
first, followed by the steps that failed. Failed steps mean the directory no
longer matches the document for those paths.

--since accepts a duration ("2h", "30m") or a phrase ("2 hours ago",
"yesterday", "last monday"). --all shows every workspace in the journal.

Example usage:
  vzsync status
  vzsync status ./site --since "2 hours ago"
  vzsync status --all --limit 50`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("since", "24h", "Only show passes since this time")
	statusCmd.Flags().IntP("limit", "n", 20, "Maximum number of passes to show (0 for all)")
	statusCmd.Flags().Bool("all", false, "Show passes of every workspace")
	statusCmd.Flags().String("journal", "", "Journal database (default: user cache directory)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	root := cfg.Root
	if len(args) == 1 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		root = abs
	}
	if all, _ := cmd.Flags().GetBool("all"); all {
		root = ""
	}
	sinceText, _ := cmd.Flags().GetString("since")
	limit, _ := cmd.Flags().GetInt("limit")

	since, err := parseSince(sinceText, time.Now())
	if err != nil {
		return err
	}

	path := cfg.JournalPath
	if path == "" {
		path = journal.DefaultPath()
	}
	out := cmd.OutOrStdout()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(out, "\n%s No journal at %s\n", ui.RenderWarn("⚠"), path)
		fmt.Fprintf(out, "   Run 'vzsync serve' to start recording save passes\n\n")
		return nil
	}

	j, err := openJournal(cmd.Context())
	if err != nil {
		return err
	}
	defer j.Close()

	passes, err := j.RecentPasses(cmd.Context(), root, since, limit)
	if err != nil {
		return err
	}
	failures, err := j.Failures(cmd.Context(), root, since, limit)
	if err != nil {
		return err
	}

	title := root
	if title == "" {
		title = "all workspaces"
	}
	fmt.Fprintf(out, "\n%s Save passes for %s since %s\n\n",
		ui.RenderAccent("●"), ui.RenderBold(title), since.Local().Format("2006-01-02 15:04"))
	fmt.Fprintln(out, ui.RenderPasses(passes))
	fmt.Fprintf(out, "\n%s\n", ui.RenderBold("Failures"))
	fmt.Fprintln(out, ui.RenderFailures(failures))
	fmt.Fprintln(out)
	return nil
}

var timeParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseSince accepts a duration back from now or a natural-language time.
// An empty string means no lower bound.
func parseSince(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(text); err == nil {
		return now.Add(-d), nil
	}
	r, err := timeParser.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: no time found", text)
	}
	return r.Time, nil
}
