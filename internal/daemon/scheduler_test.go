package daemon

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/vzcode/vzsync/internal/clock"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// saveLog records the fake time of every save.
type saveLog struct {
	clock *clock.Fake
	times []time.Duration
}

func (l *saveLog) save() {
	l.times = append(l.times, l.clock.Now().Sub(epoch))
}

// drive schedules n changes spaced by step, then lets all timers run.
func drive(s *Scheduler, c *clock.Fake, l *saveLog, n int, step time.Duration, interacting bool) time.Duration {
	var last time.Duration
	for i := 0; i < n; i++ {
		last = c.Now().Sub(epoch)
		s.Schedule(l.save, interacting)
		c.Advance(step)
	}
	c.Advance(5 * time.Second)
	return last
}

func TestScheduler_Throttle(t *testing.T) {
	c := clock.NewFake(epoch)
	l := &saveLog{clock: c}
	s := NewScheduler(SchedulerConfig{Debounce: 800 * time.Millisecond, Throttle: 100 * time.Millisecond, Clock: c})

	lastEvent := drive(s, c, l, 100, 10*time.Millisecond, true)

	if n := len(l.times); n < 9 || n > 11 {
		t.Fatalf("got %d saves over 1s of changes, want 9..11: %v", n, l.times)
	}
	if l.times[0] != 0 {
		t.Errorf("first save at %v, want immediately", l.times[0])
	}
	for i := 1; i < len(l.times); i++ {
		if gap := l.times[i] - l.times[i-1]; gap < 100*time.Millisecond {
			t.Errorf("saves %d and %d only %v apart", i-1, i, gap)
		}
	}
	if final := l.times[len(l.times)-1]; final < lastEvent {
		t.Errorf("final save at %v precedes last change at %v", final, lastEvent)
	}
}

func TestScheduler_Debounce(t *testing.T) {
	c := clock.NewFake(epoch)
	l := &saveLog{clock: c}
	s := NewScheduler(SchedulerConfig{Debounce: 800 * time.Millisecond, Throttle: 100 * time.Millisecond, Clock: c})

	lastEvent := drive(s, c, l, 100, 10*time.Millisecond, false)

	if len(l.times) != 1 {
		t.Fatalf("got %d saves, want exactly 1: %v", len(l.times), l.times)
	}
	if l.times[0]-lastEvent < 800*time.Millisecond {
		t.Errorf("save at %v, want at least 800ms after last change at %v", l.times[0], lastEvent)
	}
	if l.times[0] != 1790*time.Millisecond {
		t.Errorf("save at %v, want 1.79s", l.times[0])
	}
}

func TestScheduler_ModeSwitchKeepsPendingSaves(t *testing.T) {
	c := clock.NewFake(epoch)
	var throttled, debounced int
	s := NewScheduler(SchedulerConfig{Clock: c})

	s.Schedule(func() { throttled++ }, true) // immediate
	c.Advance(10 * time.Millisecond)
	s.Schedule(func() { throttled++ }, true) // pending until 100ms
	s.Schedule(func() { debounced++ }, false)

	if !s.Pending() {
		t.Fatal("Pending() = false with two armed timers")
	}
	c.Advance(time.Second)

	if throttled != 2 {
		t.Errorf("throttled saves = %d, want 2", throttled)
	}
	if debounced != 1 {
		t.Errorf("debounced saves = %d, want 1", debounced)
	}
	if s.Pending() {
		t.Error("Pending() = true after all timers fired")
	}
}

func TestScheduler_Flush(t *testing.T) {
	c := clock.NewFake(epoch)
	var saves int
	s := NewScheduler(SchedulerConfig{Clock: c})

	s.Schedule(func() { saves++ }, false)
	s.Flush()
	if saves != 1 {
		t.Fatalf("Flush() ran %d saves, want 1", saves)
	}

	c.Advance(time.Second)
	if saves != 1 {
		t.Errorf("flushed timer fired again: %d saves", saves)
	}

	s.Flush()
	if saves != 1 {
		t.Errorf("Flush() with nothing pending ran a save")
	}
}

func TestScheduler_Stop(t *testing.T) {
	c := clock.NewFake(epoch)
	var saves int
	s := NewScheduler(SchedulerConfig{Clock: c})

	s.Schedule(func() { saves++ }, false)
	s.Stop()
	c.Advance(time.Second)
	s.Schedule(func() { saves++ }, true)

	if saves != 0 {
		t.Errorf("saves after Stop() = %d, want 0", saves)
	}
}

func TestScheduler_RealClock(t *testing.T) {
	var saves atomic.Int32
	s := NewScheduler(SchedulerConfig{Debounce: 20 * time.Millisecond, Throttle: 10 * time.Millisecond})

	for i := 0; i < 5; i++ {
		s.Schedule(func() { saves.Add(1) }, false)
	}

	deadline := time.Now().Add(2 * time.Second)
	for saves.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	if got := saves.Load(); got != 1 {
		t.Errorf("saves = %d, want 1", got)
	}
}
