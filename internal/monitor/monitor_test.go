package monitor

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func testThresholds() Thresholds {
	return Thresholds{
		MediumCPU:    70,
		HighCPU:      90,
		MediumMemory: 80,
		HighMemory:   95,
		LowDiskFree:  512 * 1024 * 1024,
	}
}

func TestThresholds_Classify(t *testing.T) {
	th := testThresholds()
	gib := uint64(1024 * 1024 * 1024)

	cases := []struct {
		name string
		raw  Raw
		want Level
	}{
		{"all clear", Raw{CPUPercent: 10, MemoryPercent: 20, DiskFreeBytes: 10 * gib}, LevelLow},
		{"cpu at medium", Raw{CPUPercent: 70, MemoryPercent: 20, DiskFreeBytes: 10 * gib}, LevelMedium},
		{"memory at medium", Raw{CPUPercent: 10, MemoryPercent: 80, DiskFreeBytes: 10 * gib}, LevelMedium},
		{"cpu at high", Raw{CPUPercent: 90, MemoryPercent: 20, DiskFreeBytes: 10 * gib}, LevelHigh},
		{"memory at high", Raw{CPUPercent: 10, MemoryPercent: 95, DiskFreeBytes: 10 * gib}, LevelHigh},
		{"disk scarcity alone forces medium", Raw{CPUPercent: 10, MemoryPercent: 20, DiskFreeBytes: 100 * 1024 * 1024}, LevelMedium},
		{"disk scarcity does not mask high", Raw{CPUPercent: 95, MemoryPercent: 20, DiskFreeBytes: 100 * 1024 * 1024}, LevelHigh},
		{"just under medium", Raw{CPUPercent: 69.9, MemoryPercent: 79.9, DiskFreeBytes: 10 * gib}, LevelLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := th.Classify(tc.raw); got != tc.want {
				t.Errorf("Classify(%+v) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestLevel_String(t *testing.T) {
	if LevelLow.String() != "low" || LevelMedium.String() != "medium" || LevelHigh.String() != "high" {
		t.Error("Level string representations are wrong")
	}
	if Level(42).String() != "unknown" {
		t.Errorf("Unexpected string for out-of-range level: %s", Level(42).String())
	}
}

func TestSampler_Sample(t *testing.T) {
	raw := Raw{CPUPercent: 42, MemoryPercent: 33, DiskFreeBytes: 8 * 1024 * 1024 * 1024}
	s, err := New(Config{
		Thresholds: testThresholds(),
		Probe: func(ctx context.Context) (Raw, error) {
			return raw, nil
		},
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	smp := s.Sample(context.Background())

	if smp.Stale {
		t.Error("sample should not be stale")
	}
	if smp.CPUPercent != raw.CPUPercent || smp.MemoryPercent != raw.MemoryPercent {
		t.Errorf("metrics not propagated: %+v", smp)
	}
	if smp.DiskFreeBytes != raw.DiskFreeBytes {
		t.Errorf("disk free not propagated: %d", smp.DiskFreeBytes)
	}
	if smp.Level != LevelLow {
		t.Errorf("Level = %v, want %v", smp.Level, LevelLow)
	}
	if smp.Time.IsZero() {
		t.Error("sample time not set")
	}

	if got := s.Last(); got != smp {
		t.Errorf("Last() = %+v, want %+v", got, smp)
	}
	if len(s.History()) != 1 {
		t.Errorf("history length = %d, want 1", len(s.History()))
	}
}

func TestSampler_StaleFallback(t *testing.T) {
	calls := 0
	s, err := New(Config{
		Thresholds: testThresholds(),
		Probe: func(ctx context.Context) (Raw, error) {
			calls++
			if calls == 1 {
				return Raw{CPUPercent: 75, MemoryPercent: 50, DiskFreeBytes: 4 * 1024 * 1024 * 1024}, nil
			}
			return Raw{}, errors.New("probe broke")
		},
	}, quietLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first := s.Sample(context.Background())
	if first.Stale {
		t.Fatal("first sample should be fresh")
	}
	if first.Level != LevelMedium {
		t.Fatalf("first level = %v, want %v", first.Level, LevelMedium)
	}

	second := s.Sample(context.Background())
	if !second.Stale {
		t.Error("second sample should be stale")
	}
	if second.CPUPercent != first.CPUPercent || second.MemoryPercent != first.MemoryPercent {
		t.Errorf("stale sample should repeat previous values: %+v", second)
	}
	if second.Level != first.Level {
		t.Errorf("stale sample should keep the previous level: %v", second.Level)
	}

	// Stale readings never enter the report history
	if len(s.History()) != 1 {
		t.Errorf("history length = %d, want 1", len(s.History()))
	}
}

func TestSampler_StaleWithoutPrior(t *testing.T) {
	s, err := New(Config{
		Thresholds: testThresholds(),
		Probe: func(ctx context.Context) (Raw, error) {
			return Raw{}, errors.New("no metrics here")
		},
	}, quietLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	smp := s.Sample(context.Background())
	if !smp.Stale {
		t.Error("sample should be stale")
	}

	// Zero disk free must not be classified into pressure
	if smp.Level != LevelLow {
		t.Errorf("Level = %v, want %v", smp.Level, LevelLow)
	}
}

func TestSampler_Timeout(t *testing.T) {
	s, err := New(Config{
		Thresholds: testThresholds(),
		Timeout:    30 * time.Millisecond,
		Probe: func(ctx context.Context) (Raw, error) {
			time.Sleep(300 * time.Millisecond)
			return Raw{CPUPercent: 5}, nil
		},
	}, quietLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	start := time.Now()
	smp := s.Sample(context.Background())
	elapsed := time.Since(start)

	if !smp.Stale {
		t.Error("timed-out sample should be stale")
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("Sample blocked %v, want well under the probe's sleep", elapsed)
	}
}

func TestSampler_HistoryBounded(t *testing.T) {
	n := 0
	s, err := New(Config{
		Thresholds:  testThresholds(),
		HistorySize: 5,
		Probe: func(ctx context.Context) (Raw, error) {
			n++
			return Raw{CPUPercent: float64(n), DiskFreeBytes: 10 * 1024 * 1024 * 1024}, nil
		},
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 8; i++ {
		s.Sample(context.Background())
	}

	hist := s.History()
	if len(hist) != 5 {
		t.Fatalf("history length = %d, want 5", len(hist))
	}
	if hist[0].CPUPercent != 4 {
		t.Errorf("oldest retained sample = %v, want cpu 4", hist[0].CPUPercent)
	}
	if hist[len(hist)-1].CPUPercent != 8 {
		t.Errorf("newest retained sample = %v, want cpu 8", hist[len(hist)-1].CPUPercent)
	}
}

func TestSampler_Report(t *testing.T) {
	readings := []Raw{
		{CPUPercent: 10, MemoryPercent: 40, DiskFreeBytes: 3000},
		{CPUPercent: 20, MemoryPercent: 60, DiskFreeBytes: 1000},
		{CPUPercent: 30, MemoryPercent: 50, DiskFreeBytes: 2000},
	}
	i := 0
	s, err := New(Config{
		Thresholds: Thresholds{MediumCPU: 70, HighCPU: 90, MediumMemory: 80, HighMemory: 95, LowDiskFree: 1},
		Probe: func(ctx context.Context) (Raw, error) {
			r := readings[i]
			i++
			return r, nil
		},
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for range readings {
		s.Sample(context.Background())
	}

	r := s.Report()
	if r.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", r.Samples)
	}
	if r.AvgCPU != 20 {
		t.Errorf("AvgCPU = %v, want 20", r.AvgCPU)
	}
	if r.AvgMemory != 50 {
		t.Errorf("AvgMemory = %v, want 50", r.AvgMemory)
	}
	if r.PeakCPU != 30 {
		t.Errorf("PeakCPU = %v, want 30", r.PeakCPU)
	}
	if r.PeakMemory != 60 {
		t.Errorf("PeakMemory = %v, want 60", r.PeakMemory)
	}
	if r.MinDiskFree != 1000 {
		t.Errorf("MinDiskFree = %v, want 1000", r.MinDiskFree)
	}
	if r.Current.CPUPercent != 30 {
		t.Errorf("Current.CPUPercent = %v, want 30", r.Current.CPUPercent)
	}
}

func TestSampler_LastBeforeFirstSample(t *testing.T) {
	s, err := New(Config{Thresholds: testThresholds()}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	last := s.Last()
	if !last.Stale {
		t.Error("Last before any sample should be stale")
	}
	if last.Level != LevelLow {
		t.Errorf("Level = %v, want %v", last.Level, LevelLow)
	}
}

func TestSampler_SystemProbe(t *testing.T) {
	// Exercises the real gopsutil probe against this process
	s, err := New(Config{Thresholds: testThresholds()}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	smp := s.Sample(context.Background())
	if smp.Stale {
		t.Skip("resource metrics unavailable in this environment")
	}

	if smp.CPUPercent < 0 || smp.CPUPercent > 100 {
		t.Errorf("CPUPercent out of range: %v", smp.CPUPercent)
	}
	if smp.MemoryPercent < 0 || smp.MemoryPercent > 100 {
		t.Errorf("MemoryPercent out of range: %v", smp.MemoryPercent)
	}
	if smp.DiskFreeBytes == 0 {
		t.Error("DiskFreeBytes is zero on a live volume")
	}
}

func BenchmarkSampler_Classify(b *testing.B) {
	th := testThresholds()
	raws := make([]Raw, 4)
	for i := range raws {
		raws[i] = Raw{
			CPUPercent:    float64(i * 30),
			MemoryPercent: float64(i * 25),
			DiskFreeBytes: uint64(i) * 1024 * 1024 * 1024,
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = th.Classify(raws[i%len(raws)])
	}
}

func BenchmarkSampler_Sample(b *testing.B) {
	s, err := New(Config{
		Thresholds: testThresholds(),
		Probe: func(ctx context.Context) (Raw, error) {
			return Raw{CPUPercent: 50, MemoryPercent: 50, DiskFreeBytes: 1 << 30}, nil
		},
	}, nil)
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Sample(context.Background())
	}
}
