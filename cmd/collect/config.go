package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"BikeDS/internal/bike"
	"BikeDS/internal/scheduler"
)

// Config holds the collection run configuration.
type Config struct {
	// Dir is the run directory holding key.txt and the checkpoints.
	Dir string

	// KeyPath is the key corpus file; defaults to Dir/key.txt.
	KeyPath string

	// KeyIndex selects the key within the corpus.
	KeyIndex int

	// Level is the BIKE parameter level name.
	Level string

	// Trials is the total number of encapsulation/decapsulation cycles.
	Trials int

	// Workers is the number of parallel workers (0 = all CPUs).
	Workers int

	// Interval is the number of trials per checkpoint record.
	Interval int

	// Fixed is the number of consecutive e0 positions forced by the
	// perturbation (0 = none).
	Fixed int

	// Seed seeds the per-worker perturbation (0 = time based).
	Seed uint64

	// Text also appends every record to Dir/data.txt.
	Text bool

	// LogLevel is the minimum log level.
	LogLevel string
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Dir, "dir", "", "Run directory (required)")
	flag.StringVar(&cfg.KeyPath, "key", "", "Key corpus file (default <dir>/key.txt)")
	flag.IntVar(&cfg.KeyIndex, "key-index", 0, "Index of the key within the corpus")
	flag.StringVar(&cfg.Level, "level", "l1", fmt.Sprintf("Parameter level %v", bike.LevelNames()))
	flag.IntVar(&cfg.Trials, "trials", 1_000_000, "Total number of trials")
	flag.IntVar(&cfg.Workers, "workers", 0, "Parallel workers (0 = all CPUs)")
	flag.IntVar(&cfg.Interval, "interval", scheduler.DefaultInterval, "Trials per checkpoint record")
	flag.IntVar(&cfg.Fixed, "fixed", 0, "Consecutive e0 positions forced per trial (0 = no perturbation)")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "Perturbation seed (0 = time based)")
	flag.BoolVar(&cfg.Text, "text", false, "Also append records to <dir>/data.txt")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if cfg.KeyPath == "" && cfg.Dir != "" {
		cfg.KeyPath = filepath.Join(cfg.Dir, "key.txt")
	}

	return cfg
}

// validate checks the configuration against the selected level.
func (c *Config) validate(l bike.Level) error {
	switch {
	case c.Dir == "":
		return fmt.Errorf("-dir is required")
	case c.Trials <= 0:
		return fmt.Errorf("-trials must be positive, got %d", c.Trials)
	case c.Workers < 0:
		return fmt.Errorf("-workers must not be negative, got %d", c.Workers)
	case c.Interval <= 0:
		return fmt.Errorf("-interval must be positive, got %d", c.Interval)
	case c.Fixed < 0 || c.Fixed > l.T:
		return fmt.Errorf("-fixed must be in [0, %d], got %d", l.T, c.Fixed)
	case c.KeyIndex < 0:
		return fmt.Errorf("-key-index must not be negative, got %d", c.KeyIndex)
	}

	return nil
}
