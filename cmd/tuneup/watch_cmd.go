package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ciclofficina/tuneup"
)

var (
	watchFill     int
	watchEvery    time.Duration
	watchSnapshot string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the engine and report its stats until interrupted",
	Long: paragraph(
		fmt.Sprintf("\nRun a live engine with background cleanup and print its counters on an interval. With %s, synthetic entries are loaded each round so eviction and sweeping are visible without an application attached.", keyword("--fill")),
	),
	Example: paragraph("tuneup watch\ntuneup watch --fill 50 --snapshot tuneup-snapshot.json.zst"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := tuneup.LoadConfig(configFile)
		if err != nil {
			return err
		}
		engine, err := tuneup.New(cfg)
		if err != nil {
			return err
		}
		defer engine.Close() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine.Start()
		log.Info("engine started",
			"capacity", cfg.Capacity,
			"default_ttl", cfg.DefaultTTL,
			"sweep_interval", cfg.SweepInterval)

		ticker := time.NewTicker(watchEvery)
		defer ticker.Stop()

		seq := 0
		for {
			select {
			case <-ctx.Done():
				fmt.Println()
				if watchSnapshot != "" {
					if err := engine.WriteSnapshot(watchSnapshot); err != nil {
						return err
					}
					fmt.Println("Wrote snapshot to:", watchSnapshot)
				}
				return nil

			case <-ticker.C:
				for range watchFill {
					seq++
					key := fmt.Sprintf("synthetic/%d", seq)
					if _, err := engine.GetOrLoad(ctx, key, syntheticLoad); err != nil {
						log.Warn("synthetic load rejected", "key", key, "error", err)
					}
				}
				printStats(engine)
			}
		}
	},
}

// syntheticLoad fabricates a short payload with a little latency, standing
// in for a real asset decode.
func syntheticLoad(ctx context.Context, _ string) (any, error) {
	select {
	case <-time.After(time.Duration(rand.Intn(5)) * time.Millisecond): //nolint:gosec
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return make([]byte, 16+rand.Intn(48)), nil //nolint:gosec
}

// printStats renders one stats line plus the current pressure reading.
func printStats(engine *tuneup.Engine) {
	stats := engine.Stats()
	pressure := engine.CurrentPressure()

	fmt.Printf("%s  %s  %s  %s  %s\n",
		label("pressure")+levelText(pressure.Level),
		fmt.Sprintf("entries %s", humanize.Comma(stats.Entries)),
		fmt.Sprintf("util %.0f%%", stats.Utilization*100),
		fmt.Sprintf("hit rate %.0f%%", stats.HitRate*100),
		subtle(fmt.Sprintf("evicted %d, swept %d", stats.Evictions, stats.Swept)),
	)
}

func init() {
	watchCmd.Flags().IntVar(&watchFill, "fill", 0, "synthetic entries to load each round")
	watchCmd.Flags().DurationVar(&watchEvery, "every", 2*time.Second, "reporting interval")
	watchCmd.Flags().StringVar(&watchSnapshot, "snapshot", "", "write a diagnostic snapshot here on exit (.zst compresses)")
}
