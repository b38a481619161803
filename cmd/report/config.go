package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"BikeDS/internal/bike"
)

// Config holds the report configuration.
type Config struct {
	// Dir is the run directory written by collect.
	Dir string

	// Level is the BIKE parameter level the run used.
	Level string

	// Top is the number of ranked distances printed per half.
	Top int

	// HTMLPath is where the spectrum chart is written ("" = none).
	HTMLPath string

	// Text reads Dir/data.txt instead of the checkpoint store.
	Text bool
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Dir, "dir", "", "Run directory (required)")
	flag.StringVar(&cfg.Level, "level", "l1", fmt.Sprintf("Parameter level %v", bike.LevelNames()))
	flag.IntVar(&cfg.Top, "top", 10, "Distances listed per half")
	flag.StringVar(&cfg.HTMLPath, "html", "", "Chart output path (default <dir>/spectrum.html, \"none\" to skip)")
	flag.BoolVar(&cfg.Text, "text", false, "Read <dir>/data.txt instead of the checkpoint store")
	flag.Parse()

	switch cfg.HTMLPath {
	case "":
		if cfg.Dir != "" {
			cfg.HTMLPath = filepath.Join(cfg.Dir, "spectrum.html")
		}
	case "none":
		cfg.HTMLPath = ""
	}

	return cfg
}
