package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/vzcode/vzsync/internal/clock"
	"github.com/vzcode/vzsync/internal/host"
	"github.com/vzcode/vzsync/internal/ignore"
	"github.com/vzcode/vzsync/internal/journal"
	"github.com/vzcode/vzsync/internal/loader"
	"github.com/vzcode/vzsync/internal/metrics"
	"github.com/vzcode/vzsync/internal/patch"
	"github.com/vzcode/vzsync/internal/reconcile"
	"github.com/vzcode/vzsync/internal/workspace"
)

// Config holds configuration for the daemon.
type Config struct {
	// BaseIgnore patterns apply to the whole tree (default: .git/ and
	// node_modules/).
	BaseIgnore []string

	// IgnoreFilePatterns name the files holding scoped ignore rules.
	IgnoreFilePatterns []string

	// Debounce is the quiet period before a non-interactive change is
	// saved.
	Debounce time.Duration

	// Throttle is the minimum spacing of saves while interacting.
	Throttle time.Duration

	// Watch enables picking up changes made on disk by other programs.
	Watch bool

	// WatchDebounce batches rapid disk events together.
	WatchDebounce time.Duration

	// Clock drives the save scheduler (default: wall clock).
	Clock clock.Clock

	// Logger for daemon activity
	Logger *slog.Logger

	// Journal, when set, records every save pass.
	Journal *journal.Journal

	// Metrics, when set, receives patch and save measurements.
	Metrics *metrics.Metrics

	// OnSave is called after every save pass that did something.
	OnSave func(*reconcile.Result)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseIgnore:         append([]string(nil), ignore.DefaultBase...),
		IgnoreFilePatterns: append([]string(nil), ignore.DefaultFilePatterns...),
		Debounce:           DefaultDebounce,
		Throttle:           DefaultThrottle,
		Watch:              true,
		WatchDebounce:      150 * time.Millisecond,
		Clock:              clock.Real(),
		Logger:             slog.Default().With("component", "daemon"),
	}
}

// OriginDisk tags patches carrying changes read from disk.
const OriginDisk = "disk"

// Daemon keeps a workspace document and a directory in sync.
type Daemon struct {
	root   string
	config *Config
	logger *slog.Logger

	fs         afero.Fs
	host       *host.Host
	scheduler  *Scheduler
	reconciler reconcile.Reconciler

	// saveMu serializes save passes and disk syncs. saved is the document
	// as last written to disk; saves counts passes that touched it. A disk
	// sync takes the host's submission lock before saveMu, like a save
	// triggered from inside a submit.
	saveMu sync.Mutex
	saved  *workspace.Document
	saves  atomic.Uint64

	unsubscribe func()

	watcher       *FileWatcher
	rules         *loader.Rules
	changeQueue   map[string]time.Time // path -> timestamp
	changeQueueMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Daemon for the directory at root with default settings.
func New(root string) (*Daemon, error) {
	return NewWithConfig(root, DefaultConfig())
}

// NewWithConfig loads the tree at root and creates a daemon with custom
// configuration. Load errors are returned; nothing is written to disk
// until the document changes.
func NewWithConfig(root string, config *Config) (*Daemon, error) {
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.BaseIgnore == nil {
		config.BaseIgnore = defaults.BaseIgnore
	}
	if config.IgnoreFilePatterns == nil {
		config.IgnoreFilePatterns = defaults.IgnoreFilePatterns
	}
	if config.WatchDebounce <= 0 {
		config.WatchDebounce = defaults.WatchDebounce
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	fsys := afero.NewBasePathFs(afero.NewOsFs(), abs)
	doc, err := loader.LoadDir(abs, loader.Options{
		Base:         config.BaseIgnore,
		FilePatterns: config.IgnoreFilePatterns,
		Logger:       config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		root:   abs,
		config: config,
		logger: config.Logger,
		fs:     fsys,
		host:   host.New(doc),
		scheduler: NewScheduler(SchedulerConfig{
			Debounce: config.Debounce,
			Throttle: config.Throttle,
			Clock:    config.Clock,
		}),
		reconciler:  reconcile.New(fsys, config.Logger),
		saved:       doc.Clone(),
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}
	d.unsubscribe = d.host.Subscribe(d.onPatch)
	d.recordEntries(doc)

	d.logger.Info("workspace loaded", "root", abs, "entries", len(doc.Files))
	return d, nil
}

// Root returns the absolute workspace directory.
func (d *Daemon) Root() string { return d.root }

// Host returns the live document holder. Patches submitted to it are
// saved like any other change.
func (d *Daemon) Host() *host.Host { return d.host }

// Snapshot returns a copy of the live document.
func (d *Daemon) Snapshot() *workspace.Document { return d.host.Snapshot() }

// Submit applies a patch to the live document.
func (d *Daemon) Submit(p patch.Patch) error {
	return d.host.Submit(p)
}

// Edit lets fn modify a copy of the live document and submits the
// difference. Nothing is submitted when fn changes nothing. No other patch
// is applied while fn runs, so fn must not submit itself.
func (d *Daemon) Edit(fn func(doc *workspace.Document)) error {
	return d.host.UpdateFrom("", func(live *workspace.Document) (patch.Patch, error) {
		next := live.Clone()
		fn(next)
		p, err := patch.DiffDocuments(live, next)
		if err != nil {
			return nil, fmt.Errorf("failed to diff documents: %w", err)
		}
		return p, nil
	})
}

// onPatch runs after every applied patch.
func (d *Daemon) onPatch(ev host.Event) {
	if m := d.config.Metrics; m != nil {
		kinds := make([]string, len(ev.Patch))
		for i, op := range ev.Patch {
			kinds[i] = string(op.Kind)
		}
		m.RecordPatch(kinds)
	}
	d.recordEntries(ev.Document)

	// Changes read from disk are already there.
	if ev.Origin == OriginDisk {
		return
	}
	d.scheduler.Schedule(d.save, ev.Document.IsInteracting)
}

func (d *Daemon) recordEntries(doc *workspace.Document) {
	m := d.config.Metrics
	if m == nil {
		return
	}
	var files, dirs int
	for _, e := range doc.Files {
		if e.IsDir() {
			dirs++
		} else {
			files++
		}
	}
	m.SetEntries(files, dirs)
}

// save reconciles the disk with the live document.
func (d *Daemon) save() {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()

	cur := d.host.Snapshot()
	res := d.reconciler.Reconcile(d.saved, cur)
	d.saved = cur

	if !res.Changed() {
		return
	}
	d.saves.Add(1)

	failures := len(res.Failures())
	if failures > 0 {
		d.logger.Warn("saved with failures", "steps", len(res.Outcomes), "failures", failures, "duration", res.Duration)
	} else {
		d.logger.Info("saved", "steps", len(res.Outcomes), "duration", res.Duration)
	}

	if m := d.config.Metrics; m != nil {
		m.RecordSave(res)
	}
	if j := d.config.Journal; j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := j.RecordPass(ctx, d.root, res); err != nil {
			d.logger.Warn("failed to record save pass", "error", err)
		}
		cancel()
	}
	if d.config.OnSave != nil {
		d.config.OnSave(res)
	}
}

// Flush saves pending changes immediately.
func (d *Daemon) Flush() {
	d.scheduler.Flush()
}

// syncAttempts bounds how often a disk sync re-reads the tree because a
// save wrote to it during the read. The last attempt reads under the lock.
const syncAttempts = 3

// SyncFromDisk reloads the tree and submits the changes made on disk
// since the last save. It reports whether anything was submitted.
func (d *Daemon) SyncFromDisk() (bool, error) {
	for attempt := 1; ; attempt++ {
		submitted, stale, err := d.syncFromDisk(attempt == syncAttempts)
		if err != nil || !stale {
			return submitted, err
		}
		d.logger.Debug("tree changed by a save while reloading, retrying", "attempt", attempt)
	}
}

func (d *Daemon) load() (*workspace.Document, error) {
	doc, err := loader.LoadDir(d.root, loader.Options{
		Base:         d.config.BaseIgnore,
		FilePatterns: d.config.IgnoreFilePatterns,
		Logger:       d.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reload workspace: %w", err)
	}
	return doc, nil
}

// syncFromDisk runs one sync attempt. With loadLocked false the tree is
// read before taking any lock, and the attempt reports stale when a save
// ran in the meantime.
func (d *Daemon) syncFromDisk(loadLocked bool) (submitted, stale bool, err error) {
	var disk *workspace.Document
	gen := d.saves.Load()
	if !loadLocked {
		if disk, err = d.load(); err != nil {
			return false, false, err
		}
	}

	// saveMu is held until the patch is applied, so that no save pairs the
	// updated saved document with the old live one.
	locked := false
	defer func() {
		if locked {
			d.saveMu.Unlock()
		}
	}()

	var prevSaved *workspace.Document
	err = d.host.UpdateFrom(OriginDisk, func(live *workspace.Document) (patch.Patch, error) {
		d.saveMu.Lock()
		locked = true
		prevSaved = d.saved

		if loadLocked {
			var err error
			if disk, err = d.load(); err != nil {
				return nil, err
			}
		} else if d.saves.Load() != gen {
			stale = true
			return nil, nil
		}

		desired, saved, changed := mergeExternal(d.saved, disk, live, d.exists)
		if len(changed) == 0 {
			return nil, nil
		}
		p, err := patch.DiffDocuments(live, desired)
		if err != nil {
			return nil, fmt.Errorf("failed to diff documents: %w", err)
		}
		d.saved = saved
		if p == nil {
			return nil, nil
		}

		d.logger.Info("picked up external changes", "paths", changed)
		if m := d.config.Metrics; m != nil {
			m.RecordExternalChange()
		}
		submitted = true
		return p, nil
	})
	if err != nil {
		if locked {
			d.saved = prevSaved
		}
		return false, false, fmt.Errorf("failed to submit external changes: %w", err)
	}
	return submitted, stale, nil
}

func (d *Daemon) exists(rel string) bool {
	_, err := d.fs.Stat(filepath.FromSlash(rel))
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Start watching the tree for external changes, if enabled
// 2. Process disk changes with debouncing
//
// This blocks until ctx is cancelled, then stops the daemon.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("starting daemon", "root", d.root)

	if d.config.Watch {
		if err := d.startWatcher(); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		d.logger.Info("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

func (d *Daemon) startWatcher() error {
	fw, err := NewFileWatcher()
	if err != nil {
		return err
	}
	d.rules = loader.NewDirRules(d.root, loader.Options{
		Base:         d.config.BaseIgnore,
		FilePatterns: d.config.IgnoreFilePatterns,
		Logger:       d.logger,
	})
	if err := fw.Start(d.root, d.rules.Ignores); err != nil {
		_ = fw.Stop()
		return fmt.Errorf("failed to watch workspace: %w", err)
	}
	d.watcher = fw
	d.logger.Info("watching for external changes", "root", d.root)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()
	return nil
}

// Stop shuts the daemon down. Pending saves are written before it
// returns. Stop is idempotent.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.logger.Info("stopping daemon")

		d.cancel()
		if d.watcher != nil {
			if werr := d.watcher.Stop(); werr != nil {
				d.logger.Warn("error closing watcher", "error", werr)
			}
		}
		d.wg.Wait()

		d.host.Close()
		d.scheduler.Flush()
		d.scheduler.Stop()
		d.unsubscribe()

		d.logger.Info("daemon stopped")
	})
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if d.rules.IsIgnoreFile(event.Path) {
				d.rules.Reset()
			}
			d.logger.Debug("file event", "op", event.Op.String(), "path", event.Path)
			d.queueChange(event.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

// queueChange adds a path to the change queue.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue reloads the tree once queued changes have settled.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.WatchDebounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges syncs from disk when no change has been queued
// for the debounce interval.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	if len(d.changeQueue) == 0 {
		d.changeQueueMu.Unlock()
		return
	}
	now := time.Now()
	for _, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.WatchDebounce {
			d.changeQueueMu.Unlock()
			return
		}
	}
	n := len(d.changeQueue)
	clear(d.changeQueue)
	d.changeQueueMu.Unlock()

	d.logger.Debug("processing disk changes", "events", n)
	if _, err := d.SyncFromDisk(); err != nil {
		d.logger.Warn("failed to sync from disk", "error", err)
	}
}
