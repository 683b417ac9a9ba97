package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vzcode/vzsync/internal/daemon"
	"github.com/vzcode/vzsync/internal/feed"
	"github.com/vzcode/vzsync/internal/journal"
	"github.com/vzcode/vzsync/internal/metrics"
	"github.com/vzcode/vzsync/internal/patch"
	"github.com/vzcode/vzsync/internal/ui"
	"github.com/vzcode/vzsync/internal/workspace"
)

// journalRetention is how long save passes are kept.
const journalRetention = 30 * 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:     "serve [root]",
	GroupID: "sync",
	Short:   "Load a directory and keep it in sync with the live document",
	Long: `Load the directory tree at root (default: the configured root or the
working directory) into a workspace document, then save every change to the
document back to disk.

Changes are saved 800ms after the last edit, or at most every 100ms while a
client reports it is interacting. Edits made on disk by other programs are
picked up and applied to the document unless --watch=false.

A WebSocket feed on --addr sends the document, every applied patch, and a
summary of each save to connected clients, and accepts patches from them:
  ws://localhost:3030/ws
  http://localhost:3030/metrics
  http://localhost:3030/health

Example usage:
  vzsync serve                       # Serve the working directory
  vzsync serve ./site --addr :8080   # Serve ./site with the feed on port 8080
  vzsync serve --no-feed             # Sync only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Duration("debounce", daemon.DefaultDebounce, "Quiet period before a change is saved")
	serveCmd.Flags().Duration("throttle", daemon.DefaultThrottle, "Minimum spacing of saves while interacting")
	serveCmd.Flags().Bool("watch", true, "Pick up changes made on disk by other programs")
	serveCmd.Flags().Duration("watch-debounce", 150*time.Millisecond, "Batch window for disk events")
	serveCmd.Flags().StringP("addr", "a", ":3030", "Address of the WebSocket feed")
	serveCmd.Flags().String("journal", "", "Journal database (default: user cache directory)")
	serveCmd.Flags().Bool("no-feed", false, "Do not start the WebSocket feed")
	serveCmd.Flags().Bool("no-journal", false, "Do not record save passes")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	root := cfg.Root
	if len(args) == 1 {
		root = args[0]
	}
	noFeed, _ := cmd.Flags().GetBool("no-feed")
	noJournal, _ := cmd.Flags().GetBool("no-journal")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	var j *journal.Journal
	if !noJournal {
		var err error
		j, err = openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close()
	}

	var d *daemon.Daemon
	var server *feed.Server
	var handler *feed.Handler
	if !noFeed {
		server = feed.NewServer(&feed.Config{
			Addr:    cfg.FeedAddr,
			Logger:  logger.With("component", "feed"),
			Metrics: m,
			Snapshot: func() (*workspace.Document, uint64) {
				h := d.Host()
				return h.Snapshot(), h.Version()
			},
			OnSubmit: func(p patch.Patch) error { return d.Submit(p) },
		})
		handler = feed.NewHandler(server, logger.With("component", "feed"))
	}

	dcfg := &daemon.Config{
		BaseIgnore:         cfg.BaseIgnore,
		IgnoreFilePatterns: cfg.IgnoreFilePatterns,
		Debounce:           cfg.Debounce,
		Throttle:           cfg.Throttle,
		Watch:              cfg.Watch,
		WatchDebounce:      cfg.WatchDebounce,
		Logger:             logger.With("component", "daemon"),
		Journal:            j,
		Metrics:            m,
	}
	if handler != nil {
		dcfg.OnSave = handler.OnSave
	}

	d, err := daemon.NewWithConfig(root, dcfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if server != nil {
		d.Host().Subscribe(handler.OnPatch)
		if err := server.Start(); err != nil {
			_ = d.Stop()
			return fmt.Errorf("failed to start feed: %w", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				logger.Warn("error stopping feed", "error", err)
			}
		}()
	}

	fmt.Fprintf(out, "%s Serving %s (%d entries)\n", ui.RenderAccent("▶"), d.Root(), len(d.Snapshot().Files))
	if server != nil {
		fmt.Fprintf(out, "   Feed: ws://%s/ws\n", server.GetAddr())
	}
	if j != nil {
		fmt.Fprintf(out, "   Journal: %s\n", j.Path())
	}
	fmt.Fprintf(out, "\nPress Ctrl+C to stop\n\n")

	// Start blocks until the signal and flushes pending saves.
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("daemon stopped with error: %w", err)
	}
	return nil
}

// openJournal opens the configured journal, creates its schema and drops
// passes older than the retention period.
func openJournal(ctx context.Context) (*journal.Journal, error) {
	path := cfg.JournalPath
	if path == "" {
		path = journal.DefaultPath()
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, err
	}
	if err := j.InitSchema(); err != nil {
		_ = j.Close()
		return nil, err
	}
	if n, err := j.Prune(ctx, time.Now().Add(-journalRetention)); err != nil {
		logger.Warn("failed to prune journal", "error", err)
	} else if n > 0 {
		logger.Debug("pruned journal", "passes", n)
	}
	return j, nil
}
