package main

import (
	"flag"
	"fmt"

	"BikeDS/internal/bike"
)

// Config holds the key generation configuration.
type Config struct {
	// OutPath is the key corpus file keys are appended to.
	OutPath string

	// Level is the BIKE parameter level name.
	Level string

	// Count is the number of keys to generate.
	Count int

	// W0 and W1 override the weights of h0 and h1 (0 = level weight).
	W0 int
	W1 int
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.OutPath, "out", "", "Key corpus file to append to (required)")
	flag.StringVar(&cfg.Level, "level", "l1", fmt.Sprintf("Parameter level %v", bike.LevelNames()))
	flag.IntVar(&cfg.Count, "count", 1, "Number of keys to generate")
	flag.IntVar(&cfg.W0, "w0", 0, "Weight of h0, must be odd (0 = level weight)")
	flag.IntVar(&cfg.W1, "w1", 0, "Weight of h1 (0 = level weight)")
	flag.Parse()

	return cfg
}

// weights resolves the block weights for the level.
func (c *Config) weights(l bike.Level) (int, int) {
	w0, w1 := c.W0, c.W1
	if w0 == 0 {
		w0 = l.D
	}
	if w1 == 0 {
		w1 = l.D
	}

	return w0, w1
}
