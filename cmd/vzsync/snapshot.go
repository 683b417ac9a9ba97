package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vzcode/vzsync/internal/loader"
	"github.com/vzcode/vzsync/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot [root]",
	GroupID: "inspect",
	Short:   "Print the workspace document loaded from a directory",
	Long: `Load the directory tree at root with the configured ignore rules and print
the resulting workspace document.

Formats:
  json   the wire format exchanged with clients
  yaml   a manifest of entries sorted by path
  toml   the same manifest as TOML

Snapshots can be compared with 'vzsync diff' and applied with 'vzsync replay'.

Example usage:
  vzsync snapshot                         # JSON to stdout
  vzsync snapshot ./site --format yaml
  vzsync snapshot -o before.toml          # format from the extension`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringP("format", "f", "", "Output format: json, yaml or toml (default: from --output, else json)")
	snapshotCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	root := cfg.Root
	if len(args) == 1 {
		root = args[0]
	}
	formatName, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	format := snapshot.FormatJSON
	switch {
	case formatName != "":
		f, err := snapshot.ParseFormat(formatName)
		if err != nil {
			return err
		}
		format = f
	case output != "":
		f, err := snapshot.FormatFromPath(output)
		if err != nil {
			return err
		}
		format = f
	}

	doc, err := loader.LoadDir(root, loader.Options{
		Base:         cfg.BaseIgnore,
		FilePatterns: cfg.IgnoreFilePatterns,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", root, err)
	}

	if output == "" {
		return snapshot.Encode(cmd.OutOrStdout(), doc, format)
	}
	data, err := snapshot.Marshal(doc, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	logger.Info("wrote snapshot", "path", output, "entries", len(doc.Files), "format", string(format))
	return nil
}
