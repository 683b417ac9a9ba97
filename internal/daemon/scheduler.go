package daemon

import (
	"sync"
	"time"

	"github.com/vzcode/vzsync/internal/clock"
)

const (
	// DefaultDebounce is the quiet period before a non-interactive change is
	// saved.
	DefaultDebounce = 800 * time.Millisecond

	// DefaultThrottle is the minimum spacing of saves while the user is
	// interacting.
	DefaultThrottle = 100 * time.Millisecond
)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Debounce time.Duration
	Throttle time.Duration
	Clock    clock.Clock
}

// Scheduler rate-limits saves.
//
// Changes made while the user is interacting are throttled: at most one
// save per Throttle interval, with the last change of a window saved at
// the end of it. Other changes are debounced: a save runs once no change
// has arrived for Debounce.
//
// The two policies use separate timer slots, so switching between them
// never drops a pending save.
type Scheduler struct {
	clock    clock.Clock
	debounce time.Duration
	throttle time.Duration

	mu        sync.Mutex
	lastSaved time.Time
	debounced slot
	throttled slot
	stopped   bool
}

type slot struct {
	timer clock.Timer
	save  func()
	gen   uint64
}

// NewScheduler returns a Scheduler. Zero durations take the defaults.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Scheduler{
		clock:    cfg.Clock,
		debounce: cfg.Debounce,
		throttle: cfg.Throttle,
	}
}

// Schedule arranges for save to run according to the policy selected by
// interacting. A throttled save that is due runs before Schedule returns.
func (s *Scheduler) Schedule(save func(), interacting bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}

	if !interacting {
		s.arm(&s.debounced, s.debounce, save)
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	elapsed := now.Sub(s.lastSaved)
	if s.lastSaved.IsZero() || elapsed >= s.throttle {
		s.lastSaved = now
		s.disarm(&s.throttled)
		s.mu.Unlock()
		save()
		return
	}
	s.arm(&s.throttled, s.throttle-elapsed, save)
	s.mu.Unlock()
}

// arm replaces the slot's pending timer. Callers hold s.mu.
func (s *Scheduler) arm(sl *slot, d time.Duration, save func()) {
	if sl.timer != nil {
		sl.timer.Stop()
	}
	sl.gen++
	gen := sl.gen
	sl.save = save
	sl.timer = s.clock.AfterFunc(d, func() { s.fire(sl, gen) })
}

// disarm cancels the slot's pending timer. Callers hold s.mu.
func (s *Scheduler) disarm(sl *slot) func() {
	if sl.timer != nil {
		sl.timer.Stop()
	}
	sl.gen++
	save := sl.save
	sl.timer = nil
	sl.save = nil
	return save
}

func (s *Scheduler) fire(sl *slot, gen uint64) {
	s.mu.Lock()
	if sl.gen != gen || sl.save == nil {
		s.mu.Unlock()
		return
	}
	save := sl.save
	sl.save = nil
	sl.timer = nil
	s.lastSaved = s.clock.Now()
	s.mu.Unlock()

	save()
}

// Pending reports whether a save is waiting on a timer.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debounced.save != nil || s.throttled.save != nil
}

// Flush runs pending saves now instead of waiting for their timers.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	saves := []func(){s.disarm(&s.throttled), s.disarm(&s.debounced)}
	if saves[0] != nil || saves[1] != nil {
		s.lastSaved = s.clock.Now()
	}
	s.mu.Unlock()

	for _, save := range saves {
		if save != nil {
			save()
		}
	}
}

// Stop cancels pending saves and makes later Schedule calls no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.disarm(&s.throttled)
	s.disarm(&s.debounced)
}
