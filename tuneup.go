package tuneup

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ciclofficina/tuneup/internal/janitor"
	"github.com/ciclofficina/tuneup/internal/monitor"
	"github.com/ciclofficina/tuneup/internal/store"
	"golang.org/x/sync/singleflight"
)

// Level classifies resource scarcity.
type Level int

const (
	// LevelLow means resources are plentiful; only expiry sweeps run.
	LevelLow Level = iota

	// LevelMedium means resources are getting scarce; the cache is
	// trimmed when it is mostly full.
	LevelMedium

	// LevelHigh means resources are scarce; the cache is cut down
	// aggressively.
	LevelHigh
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalText renders the level name, keeping snapshots readable.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "low":
		*l = LevelLow
	case "medium":
		*l = LevelMedium
	case "high":
		*l = LevelHigh
	default:
		return fmt.Errorf("unknown pressure level %q", text)
	}
	return nil
}

// Pressure is a point-in-time resource reading. Stale marks a reading
// carried over from an earlier sample because the last measurement
// failed or timed out.
type Pressure struct {
	Time          time.Time `json:"time"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskFreeBytes uint64    `json:"disk_free_bytes"`
	Level         Level     `json:"level"`
	Stale         bool      `json:"stale"`
}

func pressureFromSample(s monitor.Sample) Pressure {
	return Pressure{
		Time:          s.Time,
		CPUPercent:    s.CPUPercent,
		MemoryPercent: s.MemoryPercent,
		DiskFreeBytes: s.DiskFreeBytes,
		Level:         Level(s.Level),
		Stale:         s.Stale,
	}
}

// Stats aggregates cache, loader, and cleanup counters.
type Stats struct {
	Capacity     int64   `json:"capacity"`
	Size         int64   `json:"size"`
	Entries      int64   `json:"entries"`
	Utilization  float64 `json:"utilization"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Evictions    int64   `json:"evictions"`
	Expired      int64   `json:"expired"`
	NegativeHits int64   `json:"negative_hits"`
	HitRate      float64 `json:"hit_rate"`

	Loads        int64 `json:"loads"`
	LoadFailures int64 `json:"load_failures"`

	CleanupTicks int64     `json:"cleanup_ticks"`
	Swept        int64     `json:"swept"`
	Shrinks      int64     `json:"shrinks"`
	LastCleanup  time.Time `json:"last_cleanup"`
}

// Engine composes the cache store, the resource sampler, and the cleanup
// scheduler behind one facade. All methods are safe for concurrent use.
type Engine struct {
	cfg    Config
	logger *log.Logger
	probe  monitor.Probe

	store   *store.Store
	sampler *monitor.Sampler
	janitor *janitor.Janitor
	group   singleflight.Group

	negTTL time.Duration

	loads        atomic.Int64
	loadFailures atomic.Int64

	mu    sync.Mutex
	watch *assetWatcher
}

// Option adjusts an Engine at construction.
type Option func(*Engine)

// WithLogger routes engine logging to l instead of the package default.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// withProbe substitutes the resource probe, for tests.
func withProbe(p monitor.Probe) Option {
	return func(e *Engine) { e.probe = p }
}

// New validates cfg and builds an Engine around it. The configuration is
// fixed for the Engine's lifetime. Background cleanup does not run until
// Start is called; the cache itself is usable immediately.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// The engine keeps its own copy of the kind table so later changes to
	// the caller's map cannot reconfigure a live engine.
	cfg.KindTTLs = maps.Clone(cfg.KindTTLs)

	e := &Engine{
		cfg:    cfg,
		logger: log.Default(),
		negTTL: cfg.EffectiveNegativeTTL(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.store = store.New(cfg.Capacity)

	sampler, err := monitor.New(monitor.Config{
		Thresholds: monitor.Thresholds{
			MediumCPU:    cfg.MediumCPUPercent,
			HighCPU:      cfg.HighCPUPercent,
			MediumMemory: cfg.MediumMemoryPercent,
			HighMemory:   cfg.HighMemoryPercent,
			LowDiskFree:  cfg.LowDiskFreeBytes,
		},
		Timeout:     cfg.SampleTimeout,
		DiskPath:    cfg.DiskPath,
		HistorySize: cfg.PressureHistory,
		Probe:       e.probe,
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("creating sampler: %w", err)
	}
	e.sampler = sampler

	e.janitor = janitor.New(e.store, e.sampler, janitor.Config{
		Interval:           cfg.SweepInterval,
		AggressiveFraction: cfg.AggressiveShrink,
		ModerateFraction:   cfg.ModerateShrink,
	}, e.logger)

	return e, nil
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.KindTTLs = maps.Clone(e.cfg.KindTTLs)
	return cfg
}

// Start launches background cleanup. Starting a running engine is a
// no-op.
func (e *Engine) Start() {
	e.janitor.Start()
}

// Stop halts background cleanup, waiting for an in-flight pass to
// finish. The cache itself stays usable. Stopping a stopped engine is a
// no-op.
func (e *Engine) Stop() {
	e.janitor.Stop()
}

// Running reports whether background cleanup is active.
func (e *Engine) Running() bool {
	return e.janitor.Running()
}

// Close stops background cleanup and tears down the asset watcher, if
// any. The engine should not be used afterwards.
func (e *Engine) Close() error {
	e.Stop()

	e.mu.Lock()
	w := e.watch
	e.watch = nil
	e.mu.Unlock()

	if w != nil {
		return w.close()
	}
	return nil
}

// CurrentPressure reports the most recent background reading. It never
// measures on the caller path; before the first cleanup pass it reports
// a stale zero reading.
func (e *Engine) CurrentPressure() Pressure {
	return pressureFromSample(e.sampler.Last())
}

// Invalidate removes an entry unconditionally, reporting whether the key
// was present.
func (e *Engine) Invalidate(key string) bool {
	return e.store.Delete(key)
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns the number removed.
func (e *Engine) InvalidatePrefix(prefix string) int {
	return e.store.DeletePrefix(prefix)
}

// Contains reports whether key holds an unexpired entry, without
// touching its recency.
func (e *Engine) Contains(key string) bool {
	return e.store.Contains(key)
}

// Stats returns a point-in-time aggregate across the store, the loader,
// and the cleanup scheduler.
func (e *Engine) Stats() Stats {
	ss := e.store.Stats()
	js := e.janitor.Stats()
	return Stats{
		Capacity:     ss.Capacity,
		Size:         ss.Size,
		Entries:      ss.Entries,
		Utilization:  e.store.Utilization(),
		Hits:         ss.Hits,
		Misses:       ss.Misses,
		Evictions:    ss.Evictions,
		Expired:      ss.Expired,
		NegativeHits: ss.NegativeHits,
		HitRate:      ss.HitRate,
		Loads:        e.loads.Load(),
		LoadFailures: e.loadFailures.Load(),
		CleanupTicks: js.Ticks,
		Swept:        js.Swept,
		Shrinks:      js.Shrinks,
		LastCleanup:  js.LastTick,
	}
}
