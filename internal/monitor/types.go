package monitor

import (
	"context"
	"time"
)

// Level classifies current resource scarcity.
type Level int

const (
	// LevelLow means resources are comfortable; no action needed
	LevelLow Level = iota

	// LevelMedium means resources are tightening; trim opportunistically
	LevelMedium

	// LevelHigh means resources are scarce; free capacity aggressively
	LevelHigh
)

// String returns the string representation of the pressure level
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

// Thresholds holds the classification boundaries. CPU and memory values
// are percentages, the disk floor is in bytes of free space.
type Thresholds struct {
	MediumCPU    float64
	HighCPU      float64
	MediumMemory float64
	HighMemory   float64
	LowDiskFree  uint64
}

// Classify derives the pressure level for one reading. It is a pure
// function of the reading and the thresholds: High when any high boundary
// is reached, otherwise Medium when any medium boundary is reached, with
// scarce disk forcing at least Medium.
func (t Thresholds) Classify(r Raw) Level {
	level := LevelLow
	if r.CPUPercent >= t.MediumCPU || r.MemoryPercent >= t.MediumMemory {
		level = LevelMedium
	}
	if r.DiskFreeBytes < t.LowDiskFree {
		level = LevelMedium
	}
	if r.CPUPercent >= t.HighCPU || r.MemoryPercent >= t.HighMemory {
		level = LevelHigh
	}
	return level
}

// Sample is one classified measurement. Stale samples repeat the previous
// values because the probe failed or timed out.
type Sample struct {
	Time          time.Time
	CPUPercent    float64
	MemoryPercent float64
	DiskFreeBytes uint64
	Level         Level
	Stale         bool
}

// Raw is one uninterpreted probe reading.
type Raw struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskFreeBytes uint64
}

// Probe takes one raw measurement of the process and host.
type Probe func(ctx context.Context) (Raw, error)

// Report aggregates the retained measurement history.
type Report struct {
	Current     Sample
	AvgCPU      float64
	AvgMemory   float64
	PeakCPU     float64
	PeakMemory  float64
	MinDiskFree uint64
	Samples     int
}

// Config holds sampler settings.
type Config struct {
	Thresholds Thresholds

	// Timeout bounds a single measurement
	Timeout time.Duration

	// DiskPath names the volume whose free space is measured
	DiskPath string

	// HistorySize is the number of samples retained for Report
	HistorySize int

	// Probe overrides the OS probe; tests use this
	Probe Probe
}
