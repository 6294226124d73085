package tuneup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every engine setting. It is read once by New and treated
// as immutable afterwards. Start from DefaultConfig and override fields,
// or build the full stack with LoadConfig.
type Config struct {
	// Capacity is the store's total size budget, in size units. What a
	// unit means is up to the sizing of the entries: with the default
	// sizer a unit is one byte for byte/string payloads and one whole
	// entry for everything else.
	Capacity int64 `env:"TUNEUP_CAPACITY" yaml:"capacity" mapstructure:"capacity"`

	// DefaultTTL applies to entries stored without an explicit TTL.
	// Zero means entries never expire by time.
	DefaultTTL time.Duration `env:"TUNEUP_DEFAULT_TTL" yaml:"default_ttl" mapstructure:"default_ttl"`

	// NegativeTTL bounds how long a load failure is remembered. Zero
	// derives DefaultTTL/10 with a one-second floor.
	NegativeTTL time.Duration `env:"TUNEUP_NEGATIVE_TTL" yaml:"negative_ttl" mapstructure:"negative_ttl"`

	// SweepInterval is the cleanup cadence; sampling rides the same tick.
	SweepInterval time.Duration `env:"TUNEUP_SWEEP_INTERVAL" yaml:"sweep_interval" mapstructure:"sweep_interval"`

	// AggressiveShrink is the utilization the store is cut down to under
	// High pressure; ModerateShrink the same under Medium pressure, applied
	// only when utilization already exceeds it.
	AggressiveShrink float64 `env:"TUNEUP_AGGRESSIVE_SHRINK" yaml:"aggressive_shrink" mapstructure:"aggressive_shrink"`
	ModerateShrink   float64 `env:"TUNEUP_MODERATE_SHRINK" yaml:"moderate_shrink" mapstructure:"moderate_shrink"`

	// Pressure thresholds, in percent of process CPU and memory.
	MediumCPUPercent    float64 `env:"TUNEUP_MEDIUM_CPU" yaml:"medium_cpu_percent" mapstructure:"medium_cpu_percent"`
	HighCPUPercent      float64 `env:"TUNEUP_HIGH_CPU" yaml:"high_cpu_percent" mapstructure:"high_cpu_percent"`
	MediumMemoryPercent float64 `env:"TUNEUP_MEDIUM_MEMORY" yaml:"medium_memory_percent" mapstructure:"medium_memory_percent"`
	HighMemoryPercent   float64 `env:"TUNEUP_HIGH_MEMORY" yaml:"high_memory_percent" mapstructure:"high_memory_percent"`

	// LowDiskFreeBytes forces at least Medium pressure when the volume
	// holding DiskPath has less free space than this.
	LowDiskFreeBytes uint64 `env:"TUNEUP_LOW_DISK_FREE" yaml:"low_disk_free_bytes" mapstructure:"low_disk_free_bytes"`
	DiskPath         string `env:"TUNEUP_DISK_PATH" yaml:"disk_path" mapstructure:"disk_path"`

	// SampleTimeout bounds a single resource measurement.
	SampleTimeout time.Duration `env:"TUNEUP_SAMPLE_TIMEOUT" yaml:"sample_timeout" mapstructure:"sample_timeout"`

	// PressureHistory is how many samples the report window keeps.
	PressureHistory int `env:"TUNEUP_PRESSURE_HISTORY" yaml:"pressure_history" mapstructure:"pressure_history"`

	// PreloadConcurrency caps how many loaders Preload runs at once.
	PreloadConcurrency int `env:"TUNEUP_PRELOAD_CONCURRENCY" yaml:"preload_concurrency" mapstructure:"preload_concurrency"`

	// KindTTLs overrides DefaultTTL per resource kind.
	KindTTLs map[string]time.Duration `yaml:"kind_ttls" mapstructure:"kind_ttls"`
}

// DefaultConfig returns the settings used when no file or environment
// overrides are present.
func DefaultConfig() Config {
	return Config{
		Capacity:            1000,
		DefaultTTL:          time.Hour,
		SweepInterval:       30 * time.Second,
		AggressiveShrink:    0.5,
		ModerateShrink:      0.8,
		MediumCPUPercent:    70,
		HighCPUPercent:      90,
		MediumMemoryPercent: 80,
		HighMemoryPercent:   95,
		LowDiskFreeBytes:    512 * 1024 * 1024,
		DiskPath:            ".",
		SampleTimeout:       2 * time.Second,
		PressureHistory:     100,
		PreloadConcurrency:  5,
		KindTTLs: map[string]time.Duration{
			KindQuery: 30 * time.Minute,
			KindAsset: time.Hour,
			KindUI:    time.Hour,
		},
	}
}

// EffectiveNegativeTTL resolves the negative-caching window: the
// configured NegativeTTL, or DefaultTTL/10 with a one-second floor.
func (c Config) EffectiveNegativeTTL() time.Duration {
	if c.NegativeTTL > 0 {
		return c.NegativeTTL
	}
	ttl := c.DefaultTTL / 10
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// Validate checks the configuration and returns the first problem found.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("default TTL must not be negative, got %v", c.DefaultTTL)
	}
	if c.NegativeTTL < 0 {
		return fmt.Errorf("negative TTL must not be negative, got %v", c.NegativeTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", c.SweepInterval)
	}
	if c.AggressiveShrink <= 0 || c.AggressiveShrink > 1 {
		return fmt.Errorf("aggressive shrink must be in (0,1], got %.2f", c.AggressiveShrink)
	}
	if c.ModerateShrink <= 0 || c.ModerateShrink > 1 {
		return fmt.Errorf("moderate shrink must be in (0,1], got %.2f", c.ModerateShrink)
	}
	if c.MediumCPUPercent < 0 || c.HighCPUPercent > 100 {
		return fmt.Errorf("cpu thresholds must be within 0-100, got %.0f/%.0f", c.MediumCPUPercent, c.HighCPUPercent)
	}
	if c.MediumCPUPercent > c.HighCPUPercent {
		return fmt.Errorf("cpu thresholds inverted: medium %.0f above high %.0f", c.MediumCPUPercent, c.HighCPUPercent)
	}
	if c.MediumMemoryPercent < 0 || c.HighMemoryPercent > 100 {
		return fmt.Errorf("memory thresholds must be within 0-100, got %.0f/%.0f", c.MediumMemoryPercent, c.HighMemoryPercent)
	}
	if c.MediumMemoryPercent > c.HighMemoryPercent {
		return fmt.Errorf("memory thresholds inverted: medium %.0f above high %.0f", c.MediumMemoryPercent, c.HighMemoryPercent)
	}
	if c.DiskPath == "" {
		return fmt.Errorf("disk path must not be empty")
	}
	if c.SampleTimeout <= 0 {
		return fmt.Errorf("sample timeout must be positive, got %v", c.SampleTimeout)
	}
	if c.PressureHistory <= 0 {
		return fmt.Errorf("pressure history must be positive, got %d", c.PressureHistory)
	}
	if c.PreloadConcurrency <= 0 {
		return fmt.Errorf("preload concurrency must be positive, got %d", c.PreloadConcurrency)
	}
	for kind, ttl := range c.KindTTLs {
		if ttl < 0 {
			return fmt.Errorf("TTL for kind %q must not be negative, got %v", kind, ttl)
		}
	}
	return nil
}

// ConfigFromEnv applies TUNEUP_* environment overrides on top of the
// defaults.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// LoadConfig builds the effective configuration: defaults, then the given
// YAML file (or the first tuneup.yml found in the working directory and
// the user config scope when path is empty), then TUNEUP_* environment
// variables. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	file, err := resolveConfigFile(path)
	if err != nil {
		return cfg, err
	}
	if file != "" {
		v := viper.New()
		v.SetConfigType("yaml")
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", file, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", file, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolveConfigFile picks the config file to read: the explicit path with
// ~ expanded, or the first existing default location, or "" when nothing
// is found and the defaults stand alone.
func resolveConfigFile(path string) (string, error) {
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return "", fmt.Errorf("expanding config path: %w", err)
		}
		if _, err := os.Stat(expanded); err != nil {
			return "", fmt.Errorf("config file %s: %w", expanded, err)
		}
		return expanded, nil
	}
	for _, candidate := range DefaultConfigPaths() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// DefaultConfigPaths lists where LoadConfig searches for tuneup.yml: the
// working directory first, then the user config scope.
func DefaultConfigPaths() []string {
	paths := []string{"tuneup.yml"}
	scope := gap.NewScope(gap.User, "tuneup")
	if dirs, err := scope.ConfigDirs(); err == nil {
		for _, dir := range dirs {
			paths = append(paths, filepath.Join(dir, "tuneup.yml"))
		}
	}
	return paths
}

// WriteFile persists the configuration as YAML, creating parent
// directories as needed.
func (c Config) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
