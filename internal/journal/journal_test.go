package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vzcode/vzsync/internal/reconcile"
)

// openTest returns an initialized journal in a temp dir.
func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	if err := j.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return j
}

func result(started time.Time, outcomes ...reconcile.Outcome) *reconcile.Result {
	return &reconcile.Result{Started: started, Duration: 1500 * time.Microsecond, Outcomes: outcomes}
}

func TestInitSchema_Idempotent(t *testing.T) {
	j := openTest(t)
	if err := j.InitSchema(); err != nil {
		t.Fatalf("second InitSchema() failed: %v", err)
	}
	for _, table := range []string{"passes", "failures"} {
		var count int
		err := j.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestRecordPass(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	res := result(now,
		reconcile.Outcome{Step: reconcile.Step{Action: reconcile.ActionCreate, Path: "a.txt"}},
		reconcile.Outcome{Step: reconcile.Step{Action: reconcile.ActionRename, Path: "c.txt", From: "b.txt"}},
		reconcile.Outcome{Step: reconcile.Step{Action: reconcile.ActionDelete, Path: "old", Dir: true}, Err: errors.New("permission denied")},
	)
	id, err := j.RecordPass(ctx, "/ws", res)
	if err != nil {
		t.Fatalf("RecordPass() failed: %v", err)
	}
	if id <= 0 {
		t.Errorf("RecordPass() id = %d", id)
	}

	passes, err := j.RecentPasses(ctx, "/ws", now.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("RecentPasses() failed: %v", err)
	}
	if len(passes) != 1 {
		t.Fatalf("RecentPasses() returned %d passes, want 1", len(passes))
	}
	p := passes[0]
	if p.Steps != 3 || p.Creates != 1 || p.Renames != 1 || p.Deletes != 0 || p.Failures != 1 {
		t.Errorf("pass counts = %+v", p)
	}
	if !p.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", p.StartedAt, now)
	}
	if p.Duration != 1500*time.Microsecond {
		t.Errorf("Duration = %v, want 1.5ms", p.Duration)
	}

	failures, err := j.Failures(ctx, "", time.Time{}, 0)
	if err != nil {
		t.Fatalf("Failures() failed: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("Failures() returned %d, want 1", len(failures))
	}
	f := failures[0]
	if f.PassID != id || f.Path != "old" || !f.Dir || f.Action != "delete" || f.Error != "permission denied" {
		t.Errorf("failure = %+v", f)
	}
}

func TestRecentPasses_Filters(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	for i := 0; i < 5; i++ {
		if _, err := j.RecordPass(ctx, "/a", result(base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("RecordPass() failed: %v", err)
		}
	}
	if _, err := j.RecordPass(ctx, "/b", result(base)); err != nil {
		t.Fatalf("RecordPass() failed: %v", err)
	}

	tests := []struct {
		name  string
		root  string
		since time.Time
		limit int
		want  int
	}{
		{"all roots", "", time.Time{}, 0, 6},
		{"one root", "/a", time.Time{}, 0, 5},
		{"since", "/a", base.Add(3 * time.Minute), 0, 2},
		{"limit", "", time.Time{}, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.RecentPasses(ctx, tt.root, tt.since, tt.limit)
			if err != nil {
				t.Fatalf("RecentPasses() failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("RecentPasses() returned %d, want %d", len(got), tt.want)
			}
		})
	}

	newest, _ := j.RecentPasses(ctx, "/a", time.Time{}, 1)
	if len(newest) != 1 || !newest[0].StartedAt.Equal(base.Add(4*time.Minute)) {
		t.Errorf("RecentPasses() is not newest first: %+v", newest)
	}
}

func TestPrune(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	failing := reconcile.Outcome{Step: reconcile.Step{Action: reconcile.ActionUpdate, Path: "x"}, Err: errors.New("boom")}
	if _, err := j.RecordPass(ctx, "/ws", result(old, failing)); err != nil {
		t.Fatal(err)
	}
	if _, err := j.RecordPass(ctx, "/ws", result(time.Now())); err != nil {
		t.Fatal(err)
	}

	n, err := j.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d passes, want 1", n)
	}
	failures, _ := j.Failures(ctx, "", time.Time{}, 0)
	if len(failures) != 0 {
		t.Errorf("failures of pruned passes survived: %v", failures)
	}
}

func TestClose_Twice(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "j.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}
