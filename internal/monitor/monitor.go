// Package monitor measures process and host resource usage and classifies
// it into a coarse pressure level that drives cache cleanup.
package monitor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"
)

// Sampler takes bounded-time resource measurements. It never fails the
// caller: when the OS query errors or exceeds the timeout, the previous
// sample's values are returned marked stale.
type Sampler struct {
	cfg    Config
	probe  Probe
	logger *log.Logger

	// Last reading and retained history
	mu      sync.Mutex
	last    Sample
	hasLast bool
	history []Sample
}

// New creates a sampler. Zero config fields fall back to defaults
// (2s timeout, 100-sample history, the working directory's volume).
func New(cfg Config, logger *log.Logger) (*Sampler, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "."
	}

	probe := cfg.Probe
	if probe == nil {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return nil, fmt.Errorf("failed to attach to own process: %w", err)
		}
		probe = systemProbe(proc, cfg.DiskPath)
	}

	return &Sampler{
		cfg:    cfg,
		probe:  probe,
		logger: logger,
	}, nil
}

// systemProbe reads CPU, memory and disk through gopsutil.
func systemProbe(proc *process.Process, diskPath string) Probe {
	return func(ctx context.Context) (Raw, error) {
		cpu, err := proc.CPUPercentWithContext(ctx)
		if err != nil {
			return Raw{}, fmt.Errorf("cpu: %w", err)
		}

		mem, err := proc.MemoryPercentWithContext(ctx)
		if err != nil {
			return Raw{}, fmt.Errorf("memory: %w", err)
		}

		usage, err := disk.UsageWithContext(ctx, diskPath)
		if err != nil {
			return Raw{}, fmt.Errorf("disk %s: %w", diskPath, err)
		}

		return Raw{
			CPUPercent:    min(cpu, 100),
			MemoryPercent: min(float64(mem), 100),
			DiskFreeBytes: usage.Free,
		}, nil
	}
}

// Sample takes one measurement, blocking at most the configured timeout.
func (s *Sampler) Sample(ctx context.Context) Sample {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type result struct {
		raw Raw
		err error
	}

	// Buffered so a late probe can finish without anyone waiting
	done := make(chan result, 1)
	go func() {
		raw, err := s.probe(ctx)
		done <- result{raw, err}
	}()

	var smp Sample
	fresh := false

	select {
	case res := <-done:
		if res.err != nil {
			s.logger.Warn("resource probe failed", "err", res.err)
			smp = s.stale()
		} else {
			smp = Sample{
				Time:          time.Now(),
				CPUPercent:    res.raw.CPUPercent,
				MemoryPercent: res.raw.MemoryPercent,
				DiskFreeBytes: res.raw.DiskFreeBytes,
				Level:         s.cfg.Thresholds.Classify(res.raw),
			}
			fresh = true
		}

	case <-ctx.Done():
		s.logger.Warn("resource probe timed out", "timeout", s.cfg.Timeout)
		smp = s.stale()
	}

	s.mu.Lock()
	s.last = smp
	s.hasLast = true
	if fresh {
		// Only real measurements enter the history; repeated stale
		// copies would skew the report averages
		s.history = append(s.history, smp)
		if len(s.history) > s.cfg.HistorySize {
			s.history = s.history[1:]
		}
	}
	s.mu.Unlock()

	return smp
}

// stale returns the previous sample's values marked stale. With no prior
// sample the metrics stay zero and the level stays Low: an unknown disk
// reading must not force pressure handling.
func (s *Sampler) stale() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	smp := s.last
	smp.Time = time.Now()
	smp.Stale = true
	return smp
}

// Last returns the most recent sample without measuring. Before the first
// measurement it returns a zero sample marked stale.
func (s *Sampler) Last() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasLast {
		return Sample{Stale: true}
	}
	return s.last
}

// History returns the retained real measurements, oldest first.
func (s *Sampler) History() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, len(s.history))
	copy(out, s.history)
	return out
}

// Report aggregates the retained history with the latest reading.
func (s *Sampler) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Report{Samples: len(s.history)}
	if s.hasLast {
		r.Current = s.last
	}
	if len(s.history) == 0 {
		return r
	}

	var sumCPU, sumMem float64
	r.MinDiskFree = s.history[0].DiskFreeBytes
	for _, smp := range s.history {
		sumCPU += smp.CPUPercent
		sumMem += smp.MemoryPercent
		if smp.CPUPercent > r.PeakCPU {
			r.PeakCPU = smp.CPUPercent
		}
		if smp.MemoryPercent > r.PeakMemory {
			r.PeakMemory = smp.MemoryPercent
		}
		if smp.DiskFreeBytes < r.MinDiskFree {
			r.MinDiskFree = smp.DiskFreeBytes
		}
	}
	r.AvgCPU = sumCPU / float64(len(s.history))
	r.AvgMemory = sumMem / float64(len(s.history))

	return r
}
