package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
)

const defaultConfig = `# Total cache capacity, in size units. With the default sizing a unit is
# one byte for byte/string payloads and one whole entry otherwise.
capacity: 1000

# How long entries live; 0 keeps them until evicted or invalidated.
default_ttl: 1h

# How long a failed load is remembered. 0 derives default_ttl/10, with a
# one-second floor.
negative_ttl: 0s

# Cleanup cadence. Each tick sweeps expired entries and samples pressure.
sweep_interval: 30s

# Shrink targets as fractions of capacity: aggressive_shrink applies under
# high pressure, moderate_shrink under medium pressure when the store is
# already above it.
aggressive_shrink: 0.5
moderate_shrink: 0.8

# Pressure thresholds, in percent of process CPU and memory.
medium_cpu_percent: 70
high_cpu_percent: 90
medium_memory_percent: 80
high_memory_percent: 95

# Free space below this on the disk_path volume forces at least medium
# pressure.
low_disk_free_bytes: 536870912
disk_path: "."

# Upper bound on a single resource measurement.
sample_timeout: 2s

# Samples kept for the pressure report.
pressure_history: 100

# Concurrent loads during preloading.
preload_concurrency: 5

# Per-kind TTL overrides.
kind_ttls:
  query: 30m
  asset: 1h
  ui: 1h
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the tuneup config file",
	Long:    paragraph(fmt.Sprintf("\n%s the tuneup config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("tuneup config\ntuneup config --config path/to/tuneup.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Tuneup", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// ensureConfigFile resolves the config path, defaulting to tuneup.yml in
// the user config scope, and writes the commented defaults when the file
// does not exist yet.
func ensureConfigFile() error {
	if configFile == "" {
		scope := gap.NewScope(gap.User, "tuneup")
		dirs, err := scope.ConfigDirs()
		if err != nil || len(dirs) == 0 {
			return fmt.Errorf("could not find configuration directory: %w", err)
		}
		configFile = filepath.Join(dirs[0], "tuneup.yml")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable to create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
