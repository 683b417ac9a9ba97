// Package loader builds a workspace document from a directory tree.
//
// The walk is depth-first with an explicit stack. Each stack frame carries
// the ignore matcher inherited from its ancestors; the ignore files found
// in a directory extend that matcher before the directory's own entries
// are filtered. Every surviving directory gets a placeholder entry so that
// empty directories can be represented and renamed.
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/vzcode/vzsync/internal/ignore"
	"github.com/vzcode/vzsync/internal/workspace"
)

// Options configures a load.
type Options struct {
	// Base is the always-active ignore set. Nil means ignore.DefaultBase.
	Base []string

	// FilePatterns selects which files hold ignore rules. Nil means
	// ignore.DefaultFilePatterns.
	FilePatterns []string

	// Logger receives debug output about skipped entries.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Base == nil {
		o.Base = ignore.DefaultBase
	}
	if o.FilePatterns == nil {
		o.FilePatterns = ignore.DefaultFilePatterns
	}
	if o.Logger == nil {
		o.Logger = slog.Default().With("component", "loader")
	}
	return o
}

type frame struct {
	dir     string
	matcher *ignore.Matcher
}

// LoadDir loads the tree rooted at root on the local filesystem.
func LoadDir(root string, opts Options) (*workspace.Document, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}
	return Load(afero.NewBasePathFs(afero.NewOsFs(), root), opts)
}

// Load walks fsys from its root and returns the resulting document. Any
// read error aborts the load.
func Load(fsys afero.Fs, opts Options) (*workspace.Document, error) {
	opts = opts.withDefaults()
	names := ignore.Compile(opts.FilePatterns)
	doc := workspace.New()

	stack := []frame{{dir: "", matcher: ignore.Compile(opts.Base)}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		infos, err := afero.ReadDir(fsys, fsPath(f.dir))
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %q: %w", f.dir, err)
		}

		m, err := extend(fsys, names, f.matcher, f.dir, infos)
		if err != nil {
			return nil, err
		}

		for _, info := range infos {
			rel := join(f.dir, info.Name())

			isDir := info.IsDir()
			if info.Mode()&os.ModeSymlink != 0 {
				target, err := fsys.Stat(fsPath(rel))
				if err != nil {
					opts.Logger.Debug("skipping dangling symlink", "path", rel, "error", err)
					continue
				}
				if target.IsDir() {
					opts.Logger.Debug("skipping symlinked directory", "path", rel)
					continue
				}
				isDir = false
			} else if !isDir && !info.Mode().IsRegular() {
				opts.Logger.Debug("skipping special file", "path", rel, "mode", info.Mode().String())
				continue
			}

			if isDir {
				if m.Ignores(rel + "/") {
					continue
				}
				doc.Add(workspace.Directory(rel))
				stack = append(stack, frame{dir: rel, matcher: m})
				continue
			}

			if m.Ignores(rel) {
				continue
			}
			data, err := afero.ReadFile(fsys, fsPath(rel))
			if err != nil {
				return nil, fmt.Errorf("failed to read file %q: %w", rel, err)
			}
			doc.Add(workspace.File(rel, workspace.EncodeContent(rel, data)))
		}
	}

	return doc, nil
}

// extend layers the ignore files found among infos, the listing of dir,
// on top of m.
func extend(fsys afero.Fs, names, m *ignore.Matcher, dir string, infos []os.FileInfo) (*ignore.Matcher, error) {
	for _, info := range infos {
		if !info.Mode().IsRegular() || !names.Ignores(info.Name()) {
			continue
		}
		rel := join(dir, info.Name())
		data, err := afero.ReadFile(fsys, fsPath(rel))
		if err != nil {
			return nil, fmt.Errorf("failed to read ignore file %q: %w", rel, err)
		}
		m = m.Extend(ignore.ParseLines(string(data)), dir)
	}
	return m, nil
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}

func fsPath(rel string) string {
	if rel == "" {
		return "."
	}
	return filepath.FromSlash(rel)
}
