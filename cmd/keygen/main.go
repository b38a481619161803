package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"BikeDS/internal/bike"
	"BikeDS/internal/keyfile"
	"BikeDS/internal/logger"
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

	if cfg.OutPath == "" {
		return fmt.Errorf("-out is required")
	}

	if cfg.Count <= 0 {
		return fmt.Errorf("-count must be positive, got %d", cfg.Count)
	}

	level, err := bike.LevelByName(cfg.Level)
	if err != nil {
		return err
	}

	scheme, err := bike.NewScheme(level)
	if err != nil {
		return err
	}

	w0, w1 := cfg.weights(level)
	if w0 != level.D || w1 != level.D {
		logger.Warn("generating faulty keys", "w0", w0, "w1", w1, "d", level.D)
	}

	records := make([]keyfile.Record, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		pk, sk, err := scheme.GenerateFaultyKey(w0, w1)
		if err != nil {
			return fmt.Errorf("generate key %d:\n%w", i, err)
		}

		rec, err := keyfile.FromSecretKey(sk, level)
		if err != nil {
			return fmt.Errorf("encode key %d:\n%w", i, err)
		}

		records = append(records, rec)
		logger.Info("generated key", "index", i, "pk", hex.EncodeToString(pk[:8]))
	}

	if err := keyfile.Append(cfg.OutPath, records); err != nil {
		return fmt.Errorf("write %s:\n%w", cfg.OutPath, err)
	}

	logger.Info("keys saved", "path", cfg.OutPath, "count", len(records), "level", level.Name)

	return nil
}
