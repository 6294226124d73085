package janitor

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ciclofficina/tuneup/internal/monitor"
)

type fakeStore struct {
	mu        sync.Mutex
	size      int64
	capacity  int64
	sweeps    int
	sweepRet  int
	sweepWait time.Duration
	shrinks   []float64
}

func (f *fakeStore) SweepExpired() int {
	f.mu.Lock()
	f.sweeps++
	wait := f.sweepWait
	ret := f.sweepRet
	f.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	return ret
}

func (f *fakeStore) ShrinkTo(fraction float64) (int, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.shrinks = append(f.shrinks, fraction)
	target := int64(fraction * float64(f.capacity))
	if f.size <= target {
		return 0, 0
	}
	freed := f.size - target
	f.size = target
	return int(freed), freed
}

func (f *fakeStore) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

func (f *fakeStore) Capacity() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity
}

func (f *fakeStore) Utilization() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capacity <= 0 {
		return 0
	}
	return float64(f.size) / float64(f.capacity)
}

func (f *fakeStore) sweepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func (f *fakeStore) shrinkCalls() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.shrinks))
	copy(out, f.shrinks)
	return out
}

type fakeSampler struct {
	mu    sync.Mutex
	level monitor.Level
	stale bool
	calls int
}

func (f *fakeSampler) Sample(ctx context.Context) monitor.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return monitor.Sample{
		Time:  time.Now(),
		Level: f.level,
		Stale: f.stale,
	}
}

func (f *fakeSampler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestJanitor(store *fakeStore, sampler *fakeSampler, interval time.Duration) *Janitor {
	return New(store, sampler, Config{
		Interval:           interval,
		AggressiveFraction: 0.5,
		ModerateFraction:   0.8,
	}, quietLogger())
}

func TestJanitor_StartStop(t *testing.T) {
	store := &fakeStore{capacity: 10}
	sampler := &fakeSampler{}
	j := newTestJanitor(store, sampler, 10*time.Millisecond)

	if j.Running() {
		t.Fatal("janitor should not run before Start")
	}

	j.Start()
	if !j.Running() {
		t.Fatal("janitor should run after Start")
	}

	// Idempotent Start
	j.Start()

	time.Sleep(35 * time.Millisecond)

	j.Stop()
	if j.Running() {
		t.Fatal("janitor should not run after Stop")
	}

	// Idempotent Stop
	j.Stop()

	// No further ticks after Stop returned
	calls := sampler.callCount()
	time.Sleep(40 * time.Millisecond)
	if sampler.callCount() != calls {
		t.Errorf("janitor kept ticking after Stop: %d -> %d", calls, sampler.callCount())
	}
}

func TestJanitor_FirstTickIsImmediate(t *testing.T) {
	store := &fakeStore{capacity: 10}
	sampler := &fakeSampler{}
	j := newTestJanitor(store, sampler, time.Second)

	j.Start()
	defer j.Stop()

	time.Sleep(50 * time.Millisecond)
	if sampler.callCount() < 1 {
		t.Error("first tick should run without waiting a full interval")
	}
}

func TestJanitor_SweepsEveryTick(t *testing.T) {
	store := &fakeStore{capacity: 10, sweepRet: 2}
	sampler := &fakeSampler{}
	j := newTestJanitor(store, sampler, 15*time.Millisecond)

	j.Start()
	time.Sleep(80 * time.Millisecond)
	j.Stop()

	if got := store.sweepCount(); got < 3 {
		t.Errorf("expected at least 3 sweeps, got %d", got)
	}

	stats := j.Stats()
	if stats.Ticks < 3 {
		t.Errorf("expected at least 3 ticks, got %d", stats.Ticks)
	}
	if stats.Swept != int64(store.sweepCount()*2) {
		t.Errorf("Swept = %d, want %d", stats.Swept, store.sweepCount()*2)
	}
	if stats.LastTick.IsZero() {
		t.Error("LastTick not recorded")
	}
}

func TestJanitor_HighPressureShrinksAggressively(t *testing.T) {
	store := &fakeStore{capacity: 10, size: 10}
	sampler := &fakeSampler{level: monitor.LevelHigh}
	j := newTestJanitor(store, sampler, time.Second)

	j.Start()
	time.Sleep(50 * time.Millisecond)
	j.Stop()

	calls := store.shrinkCalls()
	if len(calls) == 0 {
		t.Fatal("high pressure should trigger a shrink")
	}
	if calls[0] != 0.5 {
		t.Errorf("shrink fraction = %v, want 0.5", calls[0])
	}
	if store.Size() > 5 {
		t.Errorf("size after aggressive shrink = %d, want <= 5", store.Size())
	}

	if j.Stats().Shrinks != 1 {
		t.Errorf("Shrinks = %d, want 1", j.Stats().Shrinks)
	}
}

func TestJanitor_MediumPressureTrimsWhenAboveTarget(t *testing.T) {
	store := &fakeStore{capacity: 10, size: 9}
	sampler := &fakeSampler{level: monitor.LevelMedium}
	j := newTestJanitor(store, sampler, time.Second)

	j.Start()
	time.Sleep(50 * time.Millisecond)
	j.Stop()

	calls := store.shrinkCalls()
	if len(calls) == 0 {
		t.Fatal("medium pressure above target should trigger a trim")
	}
	if calls[0] != 0.8 {
		t.Errorf("shrink fraction = %v, want 0.8", calls[0])
	}
	if store.Size() > 8 {
		t.Errorf("size after moderate trim = %d, want <= 8", store.Size())
	}
}

func TestJanitor_MediumPressureLeavesSmallStoreAlone(t *testing.T) {
	store := &fakeStore{capacity: 10, size: 5}
	sampler := &fakeSampler{level: monitor.LevelMedium}
	j := newTestJanitor(store, sampler, time.Second)

	j.Start()
	time.Sleep(50 * time.Millisecond)
	j.Stop()

	if calls := store.shrinkCalls(); len(calls) != 0 {
		t.Errorf("no shrink expected below the moderate target, got %v", calls)
	}
	if store.Size() != 5 {
		t.Errorf("size changed to %d, want 5", store.Size())
	}
}

func TestJanitor_LowPressureNeverShrinks(t *testing.T) {
	store := &fakeStore{capacity: 10, size: 10}
	sampler := &fakeSampler{level: monitor.LevelLow}
	j := newTestJanitor(store, sampler, 10*time.Millisecond)

	j.Start()
	time.Sleep(60 * time.Millisecond)
	j.Stop()

	if calls := store.shrinkCalls(); len(calls) != 0 {
		t.Errorf("no shrink expected under low pressure, got %v", calls)
	}
}

func TestJanitor_StaleSamplerKeepsLoopAlive(t *testing.T) {
	store := &fakeStore{capacity: 10}
	sampler := &fakeSampler{stale: true}
	j := newTestJanitor(store, sampler, 15*time.Millisecond)

	j.Start()
	time.Sleep(80 * time.Millisecond)
	j.Stop()

	// A failing probe must not stop the maintenance loop
	if got := store.sweepCount(); got < 3 {
		t.Errorf("expected the loop to keep sweeping, got %d sweeps", got)
	}
}

func TestJanitor_StopWaitsForInflightTick(t *testing.T) {
	store := &fakeStore{capacity: 10, sweepWait: 60 * time.Millisecond}
	sampler := &fakeSampler{}
	j := newTestJanitor(store, sampler, 10*time.Millisecond)

	j.Start()
	time.Sleep(20 * time.Millisecond) // a tick is now mid-sweep
	j.Stop()

	// After Stop returns no tick may still be running
	count := store.sweepCount()
	time.Sleep(100 * time.Millisecond)
	if store.sweepCount() != count {
		t.Errorf("tick still running after Stop: %d -> %d", count, store.sweepCount())
	}
}

func TestJanitor_RestartAfterStop(t *testing.T) {
	store := &fakeStore{capacity: 10}
	sampler := &fakeSampler{}
	j := newTestJanitor(store, sampler, 10*time.Millisecond)

	j.Start()
	time.Sleep(25 * time.Millisecond)
	j.Stop()

	before := sampler.callCount()

	j.Start()
	time.Sleep(25 * time.Millisecond)
	j.Stop()

	if sampler.callCount() <= before {
		t.Error("restarted janitor should tick again")
	}
}
