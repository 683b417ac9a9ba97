// Package host holds the live workspace document and applies patches to
// it. It stands in for the replicated convergence engine: every accepted
// patch is applied to the current document and then announced to
// subscribers, one submission at a time.
package host

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vzcode/vzsync/internal/patch"
	"github.com/vzcode/vzsync/internal/workspace"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("host is closed")

// Event is delivered to subscribers after a patch is applied.
type Event struct {
	Patch    patch.Patch
	Document *workspace.Document
	Version  uint64

	// Origin is the tag given to SubmitFrom, empty for Submit.
	Origin string
}

// Listener receives change events. Listeners run synchronously on the
// submitting goroutine, in subscription order.
type Listener func(Event)

// Host owns the live document.
type Host struct {
	submitMu sync.Mutex

	mu        sync.RWMutex
	doc       *workspace.Document
	version   uint64
	listeners map[int]Listener
	nextID    int
	closed    bool
}

// New returns a Host holding doc.
func New(doc *workspace.Document) *Host {
	if doc == nil {
		doc = workspace.New()
	}
	return &Host{doc: doc.Clone(), listeners: make(map[int]Listener)}
}

// Snapshot returns a copy of the current document.
func (h *Host) Snapshot() *workspace.Document {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doc.Clone()
}

// Version returns the number of patches applied so far.
func (h *Host) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Subscribe registers fn and returns a function that removes it.
func (h *Host) Subscribe(fn Listener) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// Submit applies p to the document and notifies subscribers. A nil patch
// is accepted and ignored.
func (h *Host) Submit(p patch.Patch) error {
	return h.SubmitFrom("", p)
}

// SubmitFrom is Submit with an origin tag passed on to subscribers, so
// they can tell where a change came from.
func (h *Host) SubmitFrom(origin string, p patch.Patch) error {
	if p == nil {
		return nil
	}
	return h.UpdateFrom(origin, func(*workspace.Document) (patch.Patch, error) {
		return p, nil
	})
}

// UpdateFrom computes a patch from the live document and applies it as
// one submission: no other patch can be applied between fn seeing the
// document and its patch taking effect. fn receives a copy it may keep.
// A nil patch from fn is not applied and notifies nobody.
//
// fn and the listeners run with the submission lock held, so locks taken
// inside fn must also be taken in the same order by listeners.
func (h *Host) UpdateFrom(origin string, fn func(live *workspace.Document) (patch.Patch, error)) error {
	h.submitMu.Lock()
	defer h.submitMu.Unlock()

	h.mu.RLock()
	closed := h.closed
	live := h.doc.Clone()
	h.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	p, err := fn(live)
	if err != nil || p == nil {
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	v, err := h.doc.Value()
	if err != nil {
		h.mu.Unlock()
		return err
	}
	next, err := patch.Apply(v, p)
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("failed to apply patch: %w", err)
	}
	doc, err := workspace.FromValue(next)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.doc = doc
	h.version++
	ev := Event{Patch: p, Document: doc.Clone(), Version: h.version, Origin: origin}
	listeners := h.sortedListeners()
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
	return nil
}

// Close rejects further submissions.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *Host) sortedListeners() []Listener {
	out := make([]Listener, 0, len(h.listeners))
	for id := 0; id < h.nextID; id++ {
		if fn, ok := h.listeners[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
