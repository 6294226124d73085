package tuneup

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Report summarizes the recent sampling window.
type Report struct {
	AvgCPUPercent     float64 `json:"avg_cpu_percent"`
	AvgMemoryPercent  float64 `json:"avg_memory_percent"`
	PeakCPUPercent    float64 `json:"peak_cpu_percent"`
	PeakMemoryPercent float64 `json:"peak_memory_percent"`
	MinDiskFreeBytes  uint64  `json:"min_disk_free_bytes"`
	Samples           int     `json:"samples"`
}

// Report aggregates the sampler's history: averages and peaks over the
// last Config.PressureHistory samples.
func (e *Engine) Report() Report {
	r := e.sampler.Report()
	return Report{
		AvgCPUPercent:     r.AvgCPU,
		AvgMemoryPercent:  r.AvgMemory,
		PeakCPUPercent:    r.PeakCPU,
		PeakMemoryPercent: r.PeakMemory,
		MinDiskFreeBytes:  r.MinDiskFree,
		Samples:           r.Samples,
	}
}

// EntryInfo describes one cached entry. Values are never included.
type EntryInfo struct {
	Key            string    `json:"key"`
	Status         string    `json:"status"`
	Size           int64     `json:"size"`
	Hits           int64     `json:"hits"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Snapshot is an exportable diagnostic view: counters, the latest
// pressure reading, the sampling report, and per-entry metadata ordered
// most recently used first. Cached values themselves are never exported.
type Snapshot struct {
	Time     time.Time   `json:"time"`
	Stats    Stats       `json:"stats"`
	Pressure Pressure    `json:"pressure"`
	Report   Report      `json:"report"`
	Entries  []EntryInfo `json:"entries"`
}

// Snapshot assembles the current diagnostic view.
func (e *Engine) Snapshot() Snapshot {
	infos := e.store.Entries()
	entries := make([]EntryInfo, len(infos))
	for i, info := range infos {
		entries[i] = EntryInfo{
			Key:            info.Key,
			Status:         info.Status,
			Size:           info.Size,
			Hits:           info.Hits,
			CreatedAt:      info.CreatedAt,
			LastAccessedAt: info.LastAccessedAt,
			ExpiresAt:      info.ExpiresAt,
		}
	}
	return Snapshot{
		Time:     time.Now(),
		Stats:    e.Stats(),
		Pressure: e.CurrentPressure(),
		Report:   e.Report(),
		Entries:  entries,
	}
}

// WriteSnapshot writes the current Snapshot to path as indented JSON,
// atomically (temp file, then rename). A path ending in ".zst" is
// compressed with zstd.
func (e *Engine) WriteSnapshot(path string) error {
	data, err := json.MarshalIndent(e.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		if err := enc.Close(); err != nil {
			return fmt.Errorf("closing zstd encoder: %w", err)
		}
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	e.logger.Debug("snapshot written", "path", path, "bytes", len(data))
	return nil
}

// writeFileAtomic writes to a temp file and renames it into place so a
// reader never observes a partial snapshot.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}
