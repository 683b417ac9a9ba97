package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vzcode/vzsync/internal/snapshot"
	"github.com/vzcode/vzsync/internal/workspace"
)

// execute runs the root command with args in dir and returns its output.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(dir)
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 6, 5, 15, 0, 0, 0, time.UTC)

	got, err := parseSince("2h", now)
	if err != nil {
		t.Fatalf("parseSince(2h) failed: %v", err)
	}
	if want := now.Add(-2 * time.Hour); !got.Equal(want) {
		t.Errorf("parseSince(2h) = %v, want %v", got, want)
	}

	got, err = parseSince("", now)
	if err != nil || !got.IsZero() {
		t.Errorf("parseSince(\"\") = %v, %v, want zero time", got, err)
	}

	got, err = parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parseSince(yesterday) failed: %v", err)
	}
	if !got.Before(now) {
		t.Errorf("parseSince(yesterday) = %v, want before %v", got, now)
	}

	if _, err := parseSince("zzz", now); err == nil {
		t.Error("parseSince(zzz) succeeded, want error")
	}
}

func TestSnapshotCommand(t *testing.T) {
	dir := t.TempDir()
	site := filepath.Join(dir, "site")
	if err := os.MkdirAll(filepath.Join(site, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(site, "docs", "a.txt"), []byte("alpha"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, dir, "snapshot", "site", "--format", "yaml")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	for _, want := range []string{"docs/a.txt", "alpha"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, dir, "snapshot", "site", "-o", "before.toml"); err != nil {
		t.Fatalf("snapshot -o failed: %v", err)
	}
	doc, err := snapshot.ReadFile(filepath.Join(dir, "before.toml"))
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if _, e, ok := doc.Lookup("docs/a.txt"); !ok || e.Text != "alpha" {
		t.Errorf("written snapshot lookup = %+v, %v", e, ok)
	}
}

func TestDiffCommand(t *testing.T) {
	dir := t.TempDir()
	prev := workspace.New()
	id := prev.Add(workspace.File("a.txt", "one"))
	next := prev.Clone()
	next.Files[id] = workspace.File("b.txt", "one")

	for name, doc := range map[string]*workspace.Document{"prev.json": prev, "next.json": next} {
		if err := snapshot.WriteFile(filepath.Join(dir, name), doc); err != nil {
			t.Fatal(err)
		}
	}

	out, err := execute(t, dir, "diff", "prev.json", "prev.json")
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	if !strings.Contains(out, "no changes") {
		t.Errorf("identical snapshots output = %q", out)
	}

	out, err = execute(t, dir, "diff", "prev.json", "next.json")
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	if !strings.Contains(out, `"name"`) || strings.Contains(out, "no changes") {
		t.Errorf("patch output does not touch the name:\n%s", out)
	}

	out, err = execute(t, dir, "diff", "prev.json", "next.json", "--plan")
	if err != nil {
		t.Fatalf("diff --plan failed: %v", err)
	}
	if !strings.Contains(out, "a.txt") || !strings.Contains(out, "b.txt") || !strings.Contains(out, "1 rename") {
		t.Errorf("plan output:\n%s", out)
	}
}

func TestReplayCommand(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "out")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	cur := workspace.New()
	cur.Add(workspace.File("notes/todo.md", "- ship it"))
	if err := snapshot.WriteFile(filepath.Join(dir, "empty.json"), workspace.New()); err != nil {
		t.Fatal(err)
	}
	if err := snapshot.WriteFile(filepath.Join(dir, "cur.json"), cur); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, dir, "replay", "empty.json", "cur.json", "--root", "out", "--yes"); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "notes", "todo.md"))
	if err != nil {
		t.Fatalf("replayed file missing: %v", err)
	}
	if string(data) != "- ship it" {
		t.Errorf("replayed content = %q", data)
	}
}

func TestStatusWithoutJournal(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, dir, "status", "--journal", filepath.Join(dir, "missing.db"))
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "No journal") {
		t.Errorf("output = %q", out)
	}
}
