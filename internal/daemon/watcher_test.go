package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vzcode/vzsync/internal/loader"
)

// waitFor returns the first event for path, failing after a timeout.
// Other events are collected into seen.
func waitFor(t *testing.T, fw *FileWatcher, path string, seen *[]FileEvent) FileEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event := <-fw.Events():
			if event.Path == path {
				return event
			}
			if seen != nil {
				*seen = append(*seen, event)
			}
		case <-timeout:
			t.Fatalf("Timeout waiting for event on %s", path)
			return FileEvent{}
		}
	}
}

func startWatcher(t *testing.T, root string, skip SkipFunc) *FileWatcher {
	t.Helper()
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	t.Cleanup(func() { _ = fw.Stop() })
	if err := fw.Start(root, skip); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return fw
}

// TestNewFileWatcher verifies that creating a new FileWatcher succeeds.
func TestNewFileWatcher(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if fw.IsRunning() {
		t.Error("Newly created watcher should not be running")
	}
}

// TestFileWatcher_StartStop verifies that the watcher can start and stop cleanly.
func TestFileWatcher_StartStop(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	if err := fw.Start(t.TempDir(), nil); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !fw.IsRunning() {
		t.Error("Watcher should be running after Start()")
	}
	if err := fw.Start(t.TempDir(), nil); err == nil {
		t.Error("Second Start() should fail when watcher is already running")
	}
	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("Watcher should not be running after Stop()")
	}
	if _, ok := <-fw.Events(); ok {
		t.Error("Events() should be closed after Stop()")
	}
}

func TestFileWatcher_StartMissingRoot(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()
	if err := fw.Start(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Fatal("Start() on a missing root should fail")
	}
}

func TestFileWatcher_FileLifecycle(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "existing.txt")
	if err := os.WriteFile(existing, []byte("one"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	fw := startWatcher(t, root, nil)

	if err := os.WriteFile(filepath.Join(root, "new.txt"), []byte("hi"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if ev := waitFor(t, fw, "new.txt", nil); ev.Op != OpCreate {
		t.Errorf("Expected OpCreate, got %v", ev.Op)
	}

	if err := os.WriteFile(existing, []byte("two"), 0644); err != nil {
		t.Fatalf("Failed to update file: %v", err)
	}
	if ev := waitFor(t, fw, "existing.txt", nil); ev.Op != OpModify {
		t.Errorf("Expected OpModify, got %v", ev.Op)
	}

	if err := os.Remove(existing); err != nil {
		t.Fatalf("Failed to delete file: %v", err)
	}
	for {
		if ev := waitFor(t, fw, "existing.txt", nil); ev.Op == OpDelete {
			break
		}
	}
}

func TestFileWatcher_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	fw := startWatcher(t, root, nil)

	if err := os.Mkdir(filepath.Join(root, "src"), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if ev := waitFor(t, fw, "src", nil); ev.Op != OpCreate {
		t.Errorf("Expected OpCreate, got %v", ev.Op)
	}

	if err := os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	waitFor(t, fw, "src/main.go", nil)
}

func TestFileWatcher_SkippedPaths(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "node_modules"), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	skip := func(rel string) bool {
		return rel == "node_modules/" || strings.HasSuffix(rel, ".tmp")
	}
	fw := startWatcher(t, root, skip)

	for _, name := range []string{"node_modules/dep.js", "scratch.tmp", "keep.txt"} {
		if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(name)), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	var seen []FileEvent
	waitFor(t, fw, "keep.txt", &seen)
	for _, ev := range seen {
		t.Errorf("unexpected event %s %s", ev.Op, ev.Path)
	}
}

func TestFileWatcher_NestedIgnoreFiles(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"dist", "src/gen"} {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("dist/\n*.log\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", ".vzignore"), []byte("gen/\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rules := loader.NewDirRules(root, loader.Options{})
	fw := startWatcher(t, root, rules.Ignores)

	for _, name := range []string{"dist/bundle.js", "src/gen/api.go", "debug.log", "src/main.go"} {
		if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(name)), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	var seen []FileEvent
	waitFor(t, fw, "src/main.go", &seen)
	for _, ev := range seen {
		t.Errorf("unexpected event %s %s", ev.Op, ev.Path)
	}
}

func TestEventOp_String(t *testing.T) {
	tests := []struct {
		op   EventOp
		want string
	}{
		{OpCreate, "create"},
		{OpModify, "modify"},
		{OpDelete, "delete"},
		{EventOp(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}
