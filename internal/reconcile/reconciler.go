package reconcile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/vzcode/vzsync/internal/workspace"
)

// Reconciler mirrors document changes onto a directory tree.
//
// Reconcile is best effort: individual step failures are recorded in the
// Result and logged, and never stop the pass.
type Reconciler interface {
	// Reconcile plans and applies the changes from prev to cur.
	Reconcile(prev, cur *workspace.Document) *Result
}

// Outcome is the result of one step.
type Outcome struct {
	Step Step
	Err  error
}

// Result summarizes a reconciliation pass.
type Result struct {
	Started  time.Time
	Duration time.Duration
	Outcomes []Outcome
}

// Failures returns the outcomes that carry an error.
func (r *Result) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Counts returns the number of successful steps per action.
func (r *Result) Counts() map[Action]int {
	counts := make(map[Action]int)
	for _, o := range r.Outcomes {
		if o.Err == nil {
			counts[o.Step.Action]++
		}
	}
	return counts
}

// Changed reports whether the pass had anything to do.
func (r *Result) Changed() bool {
	return len(r.Outcomes) > 0
}

const (
	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
)

// reconciler implements the Reconciler interface.
type reconciler struct {
	fs     afero.Fs
	logger *slog.Logger
}

// New returns a Reconciler writing to fsys, whose root is the workspace
// root.
//
// If logger is nil, slog.Default is used.
func New(fsys afero.Fs, logger *slog.Logger) Reconciler {
	if logger == nil {
		logger = slog.Default().With("component", "reconcile")
	}
	return &reconciler{fs: fsys, logger: logger}
}

// NewOS returns a Reconciler confined to root on the local filesystem.
func NewOS(root string, logger *slog.Logger) Reconciler {
	return New(afero.NewBasePathFs(afero.NewOsFs(), root), logger)
}

// Reconcile implements Reconciler.Reconcile.
func (r *reconciler) Reconcile(prev, cur *workspace.Document) *Result {
	res := &Result{Started: time.Now()}
	for _, step := range Plan(prev, cur) {
		err := r.apply(step)
		if err != nil {
			r.logger.Warn("failed to sync entry", "step", step.String(), "error", err)
		} else {
			r.logger.Debug("synced entry", "step", step.String())
		}
		res.Outcomes = append(res.Outcomes, Outcome{Step: step, Err: err})
	}
	res.Duration = time.Since(res.Started)
	return res
}

func (r *reconciler) apply(s Step) error {
	target, err := localPath(s.Path)
	if err != nil {
		return err
	}

	switch s.Action {
	case ActionCreate:
		if s.Dir {
			return r.mkdir(target)
		}
		return r.write(target, s)

	case ActionUpdate:
		return r.write(target, s)

	case ActionRename:
		if s.Dir {
			// Children are moved one by one; the old directory is removed in
			// the deletion stage.
			return r.mkdir(target)
		}
		from, err := localPath(s.From)
		if err != nil {
			return err
		}
		if err := r.ensureParent(target); err != nil {
			return err
		}
		if err := r.fs.Rename(from, target); err != nil {
			return fmt.Errorf("failed to rename: %w", err)
		}
		if s.Write {
			return r.write(target, s)
		}
		return nil

	case ActionDelete:
		if s.Dir {
			if err := r.fs.RemoveAll(target); err != nil {
				return fmt.Errorf("failed to remove directory: %w", err)
			}
			return nil
		}
		if err := r.fs.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove file: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
}

func (r *reconciler) write(target string, s Step) error {
	data, err := workspace.File(s.Path, s.Text).Content()
	if err != nil {
		return err
	}
	if err := r.ensureParent(target); err != nil {
		return err
	}
	if err := afero.WriteFile(r.fs, target, data, filePerm); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (r *reconciler) mkdir(target string) error {
	if err := r.fs.MkdirAll(target, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// ensureParent creates the parent of target if it does not exist yet.
func (r *reconciler) ensureParent(target string) error {
	parent := filepath.Dir(target)
	if parent == "." {
		return nil
	}
	if ok, err := afero.DirExists(r.fs, parent); err == nil && ok {
		return nil
	}
	return r.mkdir(parent)
}

func localPath(p string) (string, error) {
	native := filepath.FromSlash(p)
	if p == "" || !filepath.IsLocal(native) {
		return "", fmt.Errorf("%w: %q", ErrNotLocal, p)
	}
	return native, nil
}
