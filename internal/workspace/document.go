package workspace

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
)

// FileID is an opaque, randomly generated key of the files map.
type FileID string

// NewFileID returns 8 random decimal digits. Uniqueness is only enforced
// by Document.Add.
func NewFileID() FileID {
	return FileID(fmt.Sprintf("%08d", rand.IntN(100_000_000)))
}

// Document is the workspace shared with the convergence engine.
type Document struct {
	Files map[FileID]Entry `json:"files"`

	// IsInteracting is set by clients while the user is actively
	// manipulating something (dragging a slider, for instance). It picks
	// the save policy.
	IsInteracting bool `json:"isInteracting,omitempty"`
}

// New returns an empty document.
func New() *Document {
	return &Document{Files: make(map[FileID]Entry)}
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := &Document{
		Files:         make(map[FileID]Entry, len(d.Files)),
		IsInteracting: d.IsInteracting,
	}
	for id, e := range d.Files {
		c.Files[id] = e
	}
	return c
}

// Add stores e under a fresh ID not yet used in d and returns the ID.
func (d *Document) Add(e Entry) FileID {
	if d.Files == nil {
		d.Files = make(map[FileID]Entry)
	}
	for {
		id := NewFileID()
		if _, taken := d.Files[id]; !taken {
			d.Files[id] = e
			return id
		}
	}
}

// Lookup finds the entry with the given path.
func (d *Document) Lookup(p string) (FileID, Entry, bool) {
	p = CleanPath(p)
	for id, e := range d.Files {
		if e.Path == p {
			return id, e, true
		}
	}
	return "", Entry{}, false
}

// IDs returns the file IDs in ascending order.
func (d *Document) IDs() []FileID {
	ids := make([]FileID, 0, len(d.Files))
	for id := range d.Files {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sorted returns all entries ordered by path, directories before files of
// the same path.
func (d *Document) Sorted() []Entry {
	out := make([]Entry, 0, len(d.Files))
	for _, e := range d.Files {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Kind > out[j].Kind
	})
	return out
}

// Value returns the generic JSON value of d (maps, strings, nil), the form
// consumed by the patch package.
func (d *Document) Value() (any, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode document value: %w", err)
	}
	return v, nil
}

// FromValue converts a generic JSON value back into a document.
func FromValue(v any) (*Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document value: %w", err)
	}
	d := New()
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if d.Files == nil {
		d.Files = make(map[FileID]Entry)
	}
	return d, nil
}
