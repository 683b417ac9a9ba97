// Package ignore decides which workspace paths are excluded from the
// document, following gitignore rules.
//
// Matchers are immutable. Extend returns a child matcher that layers the
// rules of one ignore file, scoped to the directory holding it, on top of
// everything inherited from parent directories and the base set. Sibling
// directories never see each other's rules.
//
// Pattern evaluation is delegated to go-git's gitignore implementation:
//   - a pattern without a slash (ignoring a trailing one) matches a name at
//     any depth below its scope
//   - a pattern with a slash is anchored to its scope
//   - a leading "!" re-includes
//   - a trailing "/" only matches directories
//   - the last matching pattern wins
//
// Scopes are compared component by component, so glob metacharacters in
// the scope directory's own name are taken literally.
package ignore

import (
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultBase is the base ignore set used when none is configured.
var DefaultBase = []string{".git/", "node_modules/"}

// DefaultFilePatterns names the files whose contents are ignore rules.
var DefaultFilePatterns = []string{".vzignore", ".ignore", ".gitignore"}

// Matcher answers whether a root-relative path is ignored.
type Matcher struct {
	patterns []gitignore.Pattern
	m        gitignore.Matcher
}

// Compile builds a root-scoped matcher from patterns.
func Compile(patterns []string) *Matcher {
	return (&Matcher{}).Extend(patterns, "")
}

// Extend returns a new matcher with patterns added, scoped to the
// root-relative directory scope ("" for the root). m is left untouched.
func (m *Matcher) Extend(patterns []string, scope string) *Matcher {
	domain := splitPath(scope)
	ps := make([]gitignore.Pattern, len(m.patterns), len(m.patterns)+len(patterns))
	copy(ps, m.patterns)
	for _, p := range patterns {
		p = strings.TrimRight(p, "\r")
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(p, domain))
	}
	return &Matcher{patterns: ps, m: gitignore.NewMatcher(ps)}
}

// Ignores reports whether rel is excluded. Directories must be passed
// with a trailing slash.
func (m *Matcher) Ignores(rel string) bool {
	if m == nil || m.m == nil {
		return false
	}
	isDir := strings.HasSuffix(rel, "/")
	parts := splitPath(rel)
	if len(parts) == 0 {
		return false
	}
	return m.m.Match(parts, isDir)
}

// Len returns the number of active patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

var lineSep = regexp.MustCompile(`\r?\n`)

// ParseLines splits ignore file content into patterns, dropping blank
// lines and comments.
func ParseLines(content string) []string {
	var out []string
	for _, line := range lineSep.Split(content, -1) {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func splitPath(p string) []string {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}
