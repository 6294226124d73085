// Package janitor runs the background maintenance loop of the cache
// engine: on a fixed interval it samples resource pressure, sweeps
// expired entries, and shrinks the store when the pressure level calls
// for it.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/ciclofficina/tuneup/internal/monitor"
)

// Store is the cache surface the janitor maintains.
type Store interface {
	SweepExpired() int
	ShrinkTo(fraction float64) (evicted int, freed int64)
	Size() int64
	Capacity() int64
	Utilization() float64
}

// Sampler provides pressure readings.
type Sampler interface {
	Sample(ctx context.Context) monitor.Sample
}

// Config holds scheduler settings.
type Config struct {
	// Interval between maintenance ticks
	Interval time.Duration

	// AggressiveFraction is the shrink target under high pressure
	AggressiveFraction float64

	// ModerateFraction is the shrink target under medium pressure,
	// applied only when utilization already exceeds it
	ModerateFraction float64
}

// Stats counts what the loop has done so far.
type Stats struct {
	Ticks    int64
	Swept    int64     // expired entries removed
	Shrinks  int64     // shrink passes that evicted something
	LastTick time.Time
}

// Janitor owns the background loop. Start and Stop are idempotent; a
// failure inside a tick is logged and the loop keeps going — only Stop
// ends it.
type Janitor struct {
	store   Store
	sampler Sampler
	cfg     Config
	logger  *log.Logger

	// Loop control
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	ticker  *time.Ticker
	wg      sync.WaitGroup

	// Throttles repeated stale-probe warnings
	staleWarn *rate.Limiter

	// Counters
	statsMu sync.Mutex
	stats   Stats
}

// New creates a janitor around the given store and sampler.
func New(store Store, sampler Sampler, cfg Config, logger *log.Logger) *Janitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Janitor{
		store:     store,
		sampler:   sampler,
		cfg:       cfg,
		logger:    logger,
		staleWarn: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
}

// Start launches the background loop. The first tick runs immediately so
// the pressure reading is fresh right after startup. Starting a running
// janitor is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}
	j.running = true
	j.stop = make(chan struct{})
	j.ticker = time.NewTicker(j.cfg.Interval)

	stop := j.stop
	ticker := j.ticker

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		j.tick()
		for {
			select {
			case <-ticker.C:
				j.tick()
			case <-stop:
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight tick to finish. Stopping
// a stopped janitor is a no-op.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}
	j.running = false

	close(j.stop)
	j.wg.Wait()
	j.ticker.Stop()
}

// Running reports whether the loop is active.
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.running
}

// Stats returns loop counters.
func (j *Janitor) Stats() Stats {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()

	return j.stats
}

// tick runs one maintenance pass: sample, sweep, then shrink according to
// the pressure level.
func (j *Janitor) tick() {
	j.statsMu.Lock()
	j.stats.Ticks++
	j.stats.LastTick = time.Now()
	j.statsMu.Unlock()

	smp := j.sampler.Sample(context.Background())
	if smp.Stale && j.staleWarn.Allow() {
		j.logger.Warn("pressure sample is stale, reusing previous reading",
			"level", smp.Level)
	}

	swept := j.store.SweepExpired()
	if swept > 0 {
		j.logger.Debug("swept expired cache entries", "count", swept)
		j.statsMu.Lock()
		j.stats.Swept += int64(swept)
		j.statsMu.Unlock()
	}

	switch smp.Level {
	case monitor.LevelHigh:
		evicted, freed := j.store.ShrinkTo(j.cfg.AggressiveFraction)
		if evicted > 0 {
			j.noteShrink()
			j.logger.Warn("high resource pressure, cache shrunk",
				"cpu", smp.CPUPercent,
				"memory", smp.MemoryPercent,
				"disk_free", humanize.IBytes(smp.DiskFreeBytes),
				"evicted", evicted,
				"freed_units", humanize.Comma(freed))
		}

	case monitor.LevelMedium:
		// Trim only when the store is already above the target;
		// otherwise a medium reading would cause needless churn
		if j.store.Utilization() > j.cfg.ModerateFraction {
			evicted, freed := j.store.ShrinkTo(j.cfg.ModerateFraction)
			if evicted > 0 {
				j.noteShrink()
				j.logger.Info("moderate resource pressure, cache trimmed",
					"cpu", smp.CPUPercent,
					"memory", smp.MemoryPercent,
					"evicted", evicted,
					"freed_units", humanize.Comma(freed))
			}
		}
	}
}

func (j *Janitor) noteShrink() {
	j.statsMu.Lock()
	j.stats.Shrinks++
	j.statsMu.Unlock()
}
