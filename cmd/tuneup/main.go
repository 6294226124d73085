// Package main provides the entry point for the tuneup CLI.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	logLevel   string
	logFile    string

	// logCloser flushes the log file, when one is open.
	logCloser = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "tuneup",
		Short: "Cache engine and resource monitor for the workshop app",
		Long: paragraph(
			fmt.Sprintf("\nKeep the shop floor responsive: %s caches expensive resources behind a TTL store and trims them as the host runs low on CPU, memory, or disk.", keyword("tuneup")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setupLog()
		},
	}
)

// setupLog applies the logging flags: level, and an optional log file so
// the engine's output does not interleave with command output.
func setupLog() error {
	if v := viper.GetString("log_level"); v != "" {
		logLevel = v
	}
	if v := viper.GetString("log_file"); v != "" {
		logFile = v
	}

	lvl, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	log.SetLevel(lvl)

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("unable to open log file: %w", err)
		}
		log.SetOutput(f)
		log.SetReportTimestamp(true)
		logCloser = f.Close
	}
	return nil
}

func main() {
	err := rootCmd.Execute()
	_ = logCloser()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	if Version == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
			Version = info.Main.Version
		} else {
			Version = "unknown (built from source)"
		}
	}
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: tuneup.yml in the working directory or user config scope)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append logs to this file instead of stderr")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.SetEnvPrefix("tuneup")
	viper.AutomaticEnv()

	rootCmd.AddCommand(statusCmd, watchCmd, configCmd, manCmd)
}
