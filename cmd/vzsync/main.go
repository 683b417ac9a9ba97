// Command vzsync keeps a workspace document in sync with a directory.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vzcode/vzsync/internal/config"
	"github.com/vzcode/vzsync/internal/logging"
	"github.com/vzcode/vzsync/internal/ui"
)

var (
	configFile string
	noColor    bool

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

// flagKeys maps configuration keys to the flags that may set them.
// Commands without a given flag leave the key to lower layers.
var flagKeys = map[string]string{
	config.KeyDebounce:      "debounce",
	config.KeyThrottle:      "throttle",
	config.KeyWatch:         "watch",
	config.KeyWatchDebounce: "watch-debounce",
	config.KeyFeedAddr:      "addr",
	config.KeyJournalPath:   "journal",
	config.KeyLogLevel:      "log-level",
	config.KeyLogFile:       "log-file",
}

var rootCmd = &cobra.Command{
	Use:   "vzsync",
	Short: "Workspace synchronization engine",
	Long: `vzsync keeps an in-memory workspace document synchronized with a
directory on disk and turns every change into a minimal patch.

Settings come from flags, VZSYNC_* environment variables, and an optional
vzsync.yaml, vzsync.toml or vzsync.json in the working directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.New()
		if err := config.BindFlags(v, cmd.Flags(), flagKeys); err != nil {
			return err
		}
		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded

		l, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return err
		}
		logger, logCloser = l, closer
		slog.SetDefault(logger)

		if noColor {
			ui.DisableColor()
		} else {
			ui.Setup(cmd.OutOrStdout())
		}
		if cfg.File != "" {
			logger.Debug("loaded config", "file", cfg.File)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ./vzsync.{yaml,toml,json})")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Also write JSON logs to this file, rotated by size")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
