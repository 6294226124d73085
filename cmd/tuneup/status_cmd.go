package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ciclofficina/tuneup"
	"github.com/ciclofficina/tuneup/internal/monitor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current resource pressure",
	Long: paragraph(
		fmt.Sprintf("\nTake one resource measurement and show the %s level the engine would act on, together with the raw CPU, memory, and disk readings.", keyword("pressure")),
	),
	Example: paragraph("tuneup status\ntuneup status --config path/to/tuneup.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := tuneup.LoadConfig(configFile)
		if err != nil {
			return err
		}

		sampler, err := monitor.New(monitor.Config{
			Thresholds: monitor.Thresholds{
				MediumCPU:    cfg.MediumCPUPercent,
				HighCPU:      cfg.HighCPUPercent,
				MediumMemory: cfg.MediumMemoryPercent,
				HighMemory:   cfg.HighMemoryPercent,
				LowDiskFree:  cfg.LowDiskFreeBytes,
			},
			Timeout:  cfg.SampleTimeout,
			DiskPath: cfg.DiskPath,
		}, log.Default())
		if err != nil {
			return err
		}

		// The first CPU reading primes gopsutil's usage delta and always
		// reports zero; measure, wait a beat, measure again.
		sampler.Sample(cmd.Context())
		time.Sleep(250 * time.Millisecond)
		smp := sampler.Sample(cmd.Context())

		level := levelText(tuneup.Level(smp.Level))
		if smp.Stale {
			level += " " + subtle("(stale)")
		}

		fmt.Println()
		fmt.Println(label("Pressure"), level)
		fmt.Println(label("CPU"), fmt.Sprintf("%.1f%%", smp.CPUPercent))
		fmt.Println(label("Memory"), fmt.Sprintf("%.1f%%", smp.MemoryPercent))
		fmt.Println(label("Disk free"), humanize.IBytes(smp.DiskFreeBytes), subtle("("+cfg.DiskPath+")"))
		fmt.Println()
		return nil
	},
}
