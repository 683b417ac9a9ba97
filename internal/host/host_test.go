package host

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vzcode/vzsync/internal/patch"
	"github.com/vzcode/vzsync/internal/workspace"
)

func TestHost_SubmitNotifies(t *testing.T) {
	doc := workspace.New()
	id := doc.Add(workspace.File("a.txt", "one"))
	h := New(doc)

	var events []Event
	unsubscribe := h.Subscribe(func(ev Event) { events = append(events, ev) })

	next := h.Snapshot()
	next.Files[id] = workspace.File("a.txt", "one two")
	p, err := patch.DiffDocuments(h.Snapshot(), next)
	if err != nil {
		t.Fatalf("DiffDocuments() failed: %v", err)
	}
	if err := h.Submit(p); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Version != 1 || h.Version() != 1 {
		t.Errorf("version = %d/%d, want 1", events[0].Version, h.Version())
	}
	if got := h.Snapshot().Files[id].Text; got != "one two" {
		t.Errorf("text = %q, want %q", got, "one two")
	}
	if got := events[0].Document.Files[id].Text; got != "one two" {
		t.Errorf("event document text = %q", got)
	}

	unsubscribe()
	if err := h.Submit(patch.Patch{{Path: patch.Path{"isInteracting"}, Kind: patch.Insert, Value: true}}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("unsubscribed listener still called")
	}
	if !h.Snapshot().IsInteracting {
		t.Error("IsInteracting not applied")
	}
}

func TestHost_NilPatch(t *testing.T) {
	h := New(nil)
	called := false
	h.Subscribe(func(Event) { called = true })
	if err := h.Submit(nil); err != nil {
		t.Fatalf("Submit(nil) failed: %v", err)
	}
	if called || h.Version() != 0 {
		t.Error("nil patch should not notify or bump the version")
	}
}

func TestHost_BadPatchLeavesDocument(t *testing.T) {
	doc := workspace.New()
	doc.Add(workspace.File("a.txt", "x"))
	h := New(doc)

	err := h.Submit(patch.Patch{{Path: patch.Path{"files", "missing", "text"}, Kind: patch.Edit}})
	if !errors.Is(err, patch.ErrInvalidPath) {
		t.Fatalf("Submit() error = %v, want %v", err, patch.ErrInvalidPath)
	}
	if len(h.Snapshot().Files) != 1 || h.Version() != 0 {
		t.Error("failed patch changed the document")
	}
}

func TestHost_ListenerCanReadSnapshot(t *testing.T) {
	h := New(nil)
	var seen int
	h.Subscribe(func(Event) { seen = len(h.Snapshot().Files) })

	err := h.Submit(patch.Patch{{
		Path:  patch.Path{"files", "12345678"},
		Kind:  patch.Insert,
		Value: map[string]any{"name": "new.txt", "text": "hi"},
	}})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if seen != 1 {
		t.Errorf("listener saw %d files, want 1", seen)
	}
}

func TestHost_ConcurrentSubmits(t *testing.T) {
	h := New(nil)
	var mu sync.Mutex
	versions := make(map[uint64]bool)
	h.Subscribe(func(ev Event) {
		mu.Lock()
		versions[ev.Version] = true
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(workspace.NewFileID())
			_ = h.Submit(patch.Patch{{
				Path:  patch.Path{"files", id},
				Kind:  patch.Insert,
				Value: map[string]any{"name": id + ".txt", "text": ""},
			}})
		}()
	}
	wg.Wait()

	if h.Version() != 20 || len(versions) != 20 {
		t.Errorf("version = %d, distinct event versions = %d, want 20", h.Version(), len(versions))
	}
}

func TestHost_Closed(t *testing.T) {
	h := New(nil)
	h.Close()
	err := h.Submit(patch.Patch{{Path: patch.Path{"isInteracting"}, Kind: patch.Insert, Value: true}})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Close() error = %v, want %v", err, ErrClosed)
	}
}

func TestHost_SubmitFromOrigin(t *testing.T) {
	h := New(nil)
	var origins []string
	h.Subscribe(func(ev Event) { origins = append(origins, ev.Origin) })

	op := patch.Patch{{Path: patch.Path{"isInteracting"}, Kind: patch.Insert, Value: true}}
	if err := h.SubmitFrom("disk", op); err != nil {
		t.Fatalf("SubmitFrom() failed: %v", err)
	}
	if err := h.Submit(patch.Patch{{Path: patch.Path{"isInteracting"}, Kind: patch.Remove}}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if len(origins) != 2 || origins[0] != "disk" || origins[1] != "" {
		t.Errorf("origins = %q, want [disk \"\"]", origins)
	}
}

func TestHost_UpdateFrom(t *testing.T) {
	doc := workspace.New()
	id := doc.Add(workspace.File("a.txt", "one"))
	h := New(doc)

	var events []Event
	h.Subscribe(func(ev Event) { events = append(events, ev) })

	err := h.UpdateFrom("disk", func(live *workspace.Document) (patch.Patch, error) {
		next := live.Clone()
		next.Files[id] = workspace.File("a.txt", live.Files[id].Text+" two")
		return patch.DiffDocuments(live, next)
	})
	if err != nil {
		t.Fatalf("UpdateFrom() failed: %v", err)
	}
	if got := h.Snapshot().Files[id].Text; got != "one two" {
		t.Errorf("text = %q, want %q", got, "one two")
	}
	if len(events) != 1 || events[0].Origin != "disk" {
		t.Fatalf("events = %+v, want one from disk", events)
	}

	// A nil patch is not applied.
	if err := h.UpdateFrom("disk", func(*workspace.Document) (patch.Patch, error) { return nil, nil }); err != nil {
		t.Fatalf("UpdateFrom() failed: %v", err)
	}
	if len(events) != 1 || h.Version() != 1 {
		t.Errorf("nil patch notified or bumped the version")
	}

	wantErr := errors.New("boom")
	if err := h.UpdateFrom("", func(*workspace.Document) (patch.Patch, error) { return nil, wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("UpdateFrom() error = %v, want %v", err, wantErr)
	}
}

func TestHost_UpdateFromExcludesSubmits(t *testing.T) {
	h := New(nil)
	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- h.UpdateFrom("", func(live *workspace.Document) (patch.Patch, error) {
			close(inside)
			<-release
			return patch.Patch{{Path: patch.Path{"isInteracting"}, Kind: patch.Insert, Value: true}}, nil
		})
	}()
	<-inside

	submitted := make(chan error, 1)
	go func() {
		submitted <- h.Submit(patch.Patch{{Path: patch.Path{"isInteracting"}, Kind: patch.Remove}})
	}()
	select {
	case <-submitted:
		t.Fatal("Submit() ran while UpdateFrom was computing its patch")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("UpdateFrom() failed: %v", err)
	}
	if err := <-submitted; err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if h.Snapshot().IsInteracting || h.Version() != 2 {
		t.Errorf("submissions were not applied in order")
	}
}
