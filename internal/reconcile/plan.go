package reconcile

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/vzcode/vzsync/internal/workspace"
)

// Action is what a step does to the filesystem.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionRename Action = "rename"
	ActionDelete Action = "delete"
)

// Step is one planned filesystem change.
type Step struct {
	ID     workspace.FileID
	Action Action
	Dir    bool

	// Path is the destination, or the path being removed for deletes.
	Path string

	// From is the previous path of a rename.
	From string

	// Text is the entry text to write for file creates, updates and
	// renames with changed content.
	Text string

	// Write is set on file renames whose content changed too.
	Write bool
}

// String describes the step for logs.
func (s Step) String() string {
	name := s.Path
	if s.Dir {
		name += "/"
	}
	if s.Action == ActionRename {
		from := s.From
		if s.Dir {
			from += "/"
		}
		return fmt.Sprintf("rename %s -> %s", from, name)
	}
	return fmt.Sprintf("%s %s", s.Action, name)
}

// Plan computes the steps turning prev into cur on disk. Stage one steps
// come first, then deletions.
func Plan(prev, cur *workspace.Document) []Step {
	if prev == nil {
		prev = workspace.New()
	}
	if cur == nil {
		cur = workspace.New()
	}

	var stage1, removals []Step
	for _, id := range cur.IDs() {
		next := cur.Files[id]
		old, existed := prev.Files[id]

		switch {
		case !existed:
			stage1 = append(stage1, create(id, next))

		case old.Kind != next.Kind && old.Path == next.Path:
			// The old entry is in the way of the new one.
			stage1 = append(stage1, Step{ID: id, Action: ActionDelete, Dir: old.IsDir(), Path: old.Path})
			stage1 = append(stage1, create(id, next))

		case old.Kind != next.Kind:
			stage1 = append(stage1, create(id, next))
			removals = append(removals, Step{ID: id, Action: ActionDelete, Dir: old.IsDir(), Path: old.Path})

		case old.Path != next.Path && next.IsDir():
			stage1 = append(stage1, Step{ID: id, Action: ActionRename, Dir: true, Path: next.Path, From: old.Path})
			removals = append(removals, Step{ID: id, Action: ActionDelete, Dir: true, Path: old.Path})

		case old.Path != next.Path:
			stage1 = append(stage1, Step{
				ID:     id,
				Action: ActionRename,
				Path:   next.Path,
				From:   old.Path,
				Text:   next.Text,
				Write:  old.Text != next.Text,
			})

		case !next.IsDir() && old.Text != next.Text:
			stage1 = append(stage1, Step{ID: id, Action: ActionUpdate, Path: next.Path, Text: next.Text})
		}
	}

	for _, id := range prev.IDs() {
		if _, ok := cur.Files[id]; ok {
			continue
		}
		old := prev.Files[id]
		removals = append(removals, Step{ID: id, Action: ActionDelete, Dir: old.IsDir(), Path: old.Path})
	}

	sort.SliceStable(stage1, func(i, j int) bool {
		return stage1[i].Path < stage1[j].Path
	})
	stage1 = orderMoves(stage1)

	claimed := claimedPaths(cur)
	var files, dirs []Step
	for _, s := range removals {
		if claimed[s.Path] {
			continue
		}
		if s.Dir {
			dirs = append(dirs, s)
		} else {
			files = append(files, s)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := depth(dirs[i].Path), depth(dirs[j].Path)
		if di != dj {
			return di > dj
		}
		return dirs[i].Path < dirs[j].Path
	})

	steps := make([]Step, 0, len(stage1)+len(files)+len(dirs))
	steps = append(steps, stage1...)
	steps = append(steps, files...)
	steps = append(steps, dirs...)
	return steps
}

// orderMoves reorders path-sorted stage one steps so that no step writes
// to a path before the file rename moving the old file away from it has
// run. Cycles of renames are broken by moving one file to a temporary
// name first.
func orderMoves(steps []Step) []Step {
	// Each path is the source of at most one file rename, so every step
	// waits for at most one other.
	source := make(map[string]int)
	for i, s := range steps {
		if s.Action == ActionRename && !s.Dir {
			source[s.From] = i
		}
	}
	if len(source) == 0 {
		return steps
	}

	waitsFor := make([]int, len(steps))
	waiting := make([][]int, len(steps))
	for i, s := range steps {
		waitsFor[i] = -1
		if j, ok := source[s.Path]; ok && j != i {
			waitsFor[i] = j
			waiting[j] = append(waiting[j], i)
		}
	}

	out := make([]Step, 0, len(steps)+1)
	done := make([]bool, len(steps))
	var emit func(i int)
	emit = func(i int) {
		done[i] = true
		out = append(out, steps[i])
		for _, k := range waiting[i] {
			if !done[k] {
				emit(k)
			}
		}
	}

	for i := range steps {
		if !done[i] && waitsFor[i] < 0 {
			emit(i)
		}
	}
	for i := range steps {
		if done[i] || !inCycle(waitsFor, i) {
			continue
		}
		tmp := tempName(steps[i])
		out = append(out, Step{ID: steps[i].ID, Action: ActionRename, Path: tmp, From: steps[i].From})
		steps[i].From = tmp
		// The source is free now; whatever waited on it can run, and the
		// cycle unwinds back to steps[i].
		for _, k := range waiting[i] {
			if !done[k] {
				emit(k)
			}
		}
		if !done[i] {
			emit(i)
		}
	}
	return out
}

// inCycle reports whether following waitsFor from i leads back to i.
func inCycle(waitsFor []int, i int) bool {
	for j, n := waitsFor[i], 0; j >= 0 && n < len(waitsFor); j, n = waitsFor[j], n+1 {
		if j == i {
			return true
		}
	}
	return false
}

func tempName(s Step) string {
	return path.Join(path.Dir(s.From), fmt.Sprintf(".%s.vzsync-%s", path.Base(s.From), s.ID))
}

func create(id workspace.FileID, e workspace.Entry) Step {
	if e.IsDir() {
		return Step{ID: id, Action: ActionCreate, Dir: true, Path: e.Path}
	}
	return Step{ID: id, Action: ActionCreate, Path: e.Path, Text: e.Text}
}

// claimedPaths returns every path the document occupies: entry paths and
// all of their parent directories.
func claimedPaths(doc *workspace.Document) map[string]bool {
	claimed := make(map[string]bool, len(doc.Files)*2)
	for _, e := range doc.Files {
		for p := e.Path; p != "." && p != "" && !claimed[p]; p = path.Dir(p) {
			claimed[p] = true
		}
	}
	return claimed
}

func depth(p string) int {
	return strings.Count(p, "/")
}
