package daemon

import (
	"sort"

	"github.com/vzcode/vzsync/internal/workspace"
)

// mergeExternal finds the paths whose disk state differs from base, the
// document last written to disk, and applies them to copies of live and
// base. Paths are compared by kind and content, so the daemon's own
// writes never show up as changes.
//
// A base path missing from disk only counts as deleted when exists
// reports it gone; the loader leaves out ignored paths that still exist.
func mergeExternal(base, disk, live *workspace.Document, exists func(rel string) bool) (desired, saved *workspace.Document, changed []string) {
	baseByPath := byPath(base)
	diskByPath := byPath(disk)

	for p, b := range baseByPath {
		if k, ok := diskByPath[p]; ok {
			if k.Kind == b.Kind && k.Text == b.Text {
				continue
			}
		} else if exists(p) {
			continue
		}
		changed = append(changed, p)
	}
	for p := range diskByPath {
		if _, ok := baseByPath[p]; !ok {
			changed = append(changed, p)
		}
	}
	if len(changed) == 0 {
		return live, base, nil
	}
	sort.Strings(changed)

	desired = live.Clone()
	saved = base.Clone()
	for _, p := range changed {
		if id, _, ok := saved.Lookup(p); ok {
			delete(saved.Files, id)
		}
		id, _, inLive := desired.Lookup(p)
		k, onDisk := diskByPath[p]
		switch {
		case !onDisk && inLive:
			delete(desired.Files, id)
		case onDisk && inLive:
			desired.Files[id] = k
			saved.Files[id] = k
		case onDisk:
			id = freeID(desired, saved)
			desired.Files[id] = k
			saved.Files[id] = k
		}
	}
	return desired, saved, changed
}

func byPath(doc *workspace.Document) map[string]workspace.Entry {
	m := make(map[string]workspace.Entry, len(doc.Files))
	for _, e := range doc.Files {
		m[e.Path] = e
	}
	return m
}

// freeID returns an ID used in neither document.
func freeID(docs ...*workspace.Document) workspace.FileID {
	for {
		id := workspace.NewFileID()
		taken := false
		for _, d := range docs {
			if _, ok := d.Files[id]; ok {
				taken = true
			}
		}
		if !taken {
			return id
		}
	}
}
