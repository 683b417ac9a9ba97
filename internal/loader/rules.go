package loader

import (
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/vzcode/vzsync/internal/ignore"
)

// Rules answers ignore queries for single paths outside of a full load,
// applying the same base set and nested ignore files as Load. Matchers are
// built per directory on first use and cached until Reset.
//
// Rules is safe for concurrent use.
type Rules struct {
	fs    afero.Fs
	opts  Options
	names *ignore.Matcher

	mu    sync.Mutex
	cache map[string]*ignore.Matcher
}

// NewRules returns Rules reading ignore files from fsys.
func NewRules(fsys afero.Fs, opts Options) *Rules {
	opts = opts.withDefaults()
	return &Rules{
		fs:    fsys,
		opts:  opts,
		names: ignore.Compile(opts.FilePatterns),
		cache: make(map[string]*ignore.Matcher),
	}
}

// NewDirRules returns Rules for the tree rooted at root on the local
// filesystem.
func NewDirRules(root string, opts Options) *Rules {
	return NewRules(afero.NewBasePathFs(afero.NewOsFs(), root), opts)
}

// Ignores reports whether rel is excluded. Directories must be passed with
// a trailing slash. A path below an ignored directory is ignored too.
func (r *Rules) Ignores(rel string) bool {
	rel = strings.TrimPrefix(rel, "/")
	name := strings.TrimSuffix(rel, "/")
	if name == "" || name == "." {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := parent(name)
	for d := dir; d != ""; d = parent(d) {
		if r.matcher(parent(d)).Ignores(d + "/") {
			return true
		}
	}
	return r.matcher(dir).Ignores(rel)
}

// IsIgnoreFile reports whether name is the base name of an ignore file.
func (r *Rules) IsIgnoreFile(name string) bool {
	return r.names.Ignores(path.Base(name))
}

// Reset drops the cached matchers, so that edited ignore files take
// effect.
func (r *Rules) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

// matcher returns the matcher in effect for entries of dir. Callers hold
// r.mu. Unreadable directories contribute no rules.
func (r *Rules) matcher(dir string) *ignore.Matcher {
	if m, ok := r.cache[dir]; ok {
		return m
	}
	var m *ignore.Matcher
	if dir == "" {
		m = ignore.Compile(r.opts.Base)
	} else {
		m = r.matcher(parent(dir))
	}
	if infos, err := afero.ReadDir(r.fs, fsPath(dir)); err == nil {
		if ext, err := extend(r.fs, r.names, m, dir, infos); err == nil {
			m = ext
		} else {
			r.opts.Logger.Debug("skipping unreadable ignore file", "dir", dir, "error", err)
		}
	}
	r.cache[dir] = m
	return m
}

func parent(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}
