package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"BikeDS/internal/bike"
	"BikeDS/internal/checkpoint"
	"BikeDS/internal/logger"
	"BikeDS/internal/report"
)

func main() {
	logger.Init(slog.LevelInfo)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg := parseFlags()

	if cfg.Dir == "" {
		return fmt.Errorf("-dir is required")
	}

	level, err := bike.LevelByName(cfg.Level)
	if err != nil {
		return err
	}

	totals, err := loadTotals(cfg, level)
	if err != nil {
		return fmt.Errorf("sum records:\n%w", err)
	}

	if totals.Records == 0 {
		return fmt.Errorf("no records in %s", cfg.Dir)
	}

	report.Summary(os.Stdout, totals, cfg.Top)

	if cfg.HTMLPath == "" {
		return nil
	}

	if err := writeChart(cfg.HTMLPath, totals, level); err != nil {
		return fmt.Errorf("write chart:\n%w", err)
	}

	logger.Info("chart written", "path", cfg.HTMLPath)

	return nil
}

// loadTotals sums the records from the store or from data.txt.
func loadTotals(cfg *Config, level bike.Level) (*checkpoint.Totals, error) {
	if cfg.Text {
		f, err := os.Open(filepath.Join(cfg.Dir, "data.txt"))
		if err != nil {
			return nil, err
		}
		defer f.Close()

		records, err := checkpoint.ReadText(f, level.RBits)
		if err != nil {
			return nil, err
		}

		return checkpoint.Sum(records, level.RBits)
	}

	path := filepath.Join(cfg.Dir, "checkpoints")
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	store, err := checkpoint.OpenStore(path, level.RBits)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return checkpoint.Sum(store, level.RBits)
}

// writeChart renders the spectrum chart to path.
func writeChart(path string, totals *checkpoint.Totals, level bike.Level) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("BIKE %s distance spectrum", level.Name)
	if err := report.Chart(f, totals, title); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
