package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"BikeDS/internal/bike"
	"BikeDS/internal/checkpoint"
	"BikeDS/internal/keyfile"
	"BikeDS/internal/logger"
	"BikeDS/internal/perturb"
	"BikeDS/internal/scheduler"
	"BikeDS/internal/trial"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg := parseFlags()

	logLevel, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(logLevel)

	level, err := bike.LevelByName(cfg.Level)
	if err != nil {
		return err
	}

	if err := cfg.validate(level); err != nil {
		return err
	}

	keys, err := loadKey(cfg, level)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	scheme, err := bike.NewScheme(level)
	if err != nil {
		return err
	}

	sink, closeSink, err := openSink(cfg, level)
	if err != nil {
		return fmt.Errorf("open checkpoint store:\n%w", err)
	}
	defer closeSink()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(ctx, cancel)

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	printStartupInfo(cfg, level, seed)

	res, err := scheduler.Run(ctx, scheduler.Job{
		KEM:      scheme,
		Keys:     keys,
		RBits:    level.RBits,
		Limit:    level.T,
		Trials:   cfg.Trials,
		Workers:  cfg.Workers,
		Interval: cfg.Interval,
		Perturb:  perturb.Config{Fixed: cfg.Fixed},
		Seed:     seed,
		Sink:     sink,
	})
	if errors.Is(err, scheduler.ErrStopped) {
		logger.Warn("run interrupted", "checkpointed", res.Checkpointed, "records", res.Records)
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("collection complete",
		"trials", res.Checkpointed,
		"successes", res.Successes,
		"failures", res.Checkpointed-res.Successes,
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)

	return nil
}

// loadKey reads the selected key and checks that it parses for the level
// before any trial runs.
func loadKey(cfg *Config, level bike.Level) (trial.KeyPair, error) {
	records, err := keyfile.Load(cfg.KeyPath, level)
	if err != nil {
		return trial.KeyPair{}, err
	}

	if len(records) > 1 {
		logger.Warn("key corpus holds several keys", "count", len(records), "using", cfg.KeyIndex)
	}

	if cfg.KeyIndex >= len(records) {
		return trial.KeyPair{}, fmt.Errorf("key index %d out of range (%d keys)", cfg.KeyIndex, len(records))
	}

	rec := records[cfg.KeyIndex]
	keys := trial.KeyPair{Public: rec.PublicKey(), Secret: rec.SecretKey()}

	if _, err := bike.ParseSecretKey(level, keys.Secret); err != nil {
		return trial.KeyPair{}, fmt.Errorf("key %d:\n%w", cfg.KeyIndex, err)
	}

	return keys, nil
}

// openSink opens the checkpoint store and, with -text, the data.txt mirror.
func openSink(cfg *Config, level bike.Level) (checkpoint.Sink, func(), error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, err
	}

	store, err := checkpoint.OpenStore(filepath.Join(cfg.Dir, "checkpoints"), level.RBits)
	if err != nil {
		return nil, nil, err
	}

	if store.Len() > 0 {
		logger.Info("resuming checkpoint store", "records", store.Len(), "trials", store.Trials())
	}

	if !cfg.Text {
		return store, func() { store.Close() }, nil
	}

	text, err := checkpoint.OpenText(filepath.Join(cfg.Dir, "data.txt"))
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	closeAll := func() {
		text.Close()
		store.Close()
	}

	return checkpoint.Tee{store, text}, closeAll, nil
}

// waitForSignal cancels the run on SIGINT or SIGTERM. Workers finish and
// flush their current batch before stopping.
func waitForSignal(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("stopping after current batches", "signal", sig.String())
		cancel()
	case <-ctx.Done():
	}
}

// printStartupInfo logs the run configuration.
func printStartupInfo(cfg *Config, level bike.Level, seed uint64) {
	logger.Info("starting collection",
		"dir", cfg.Dir,
		"key", cfg.KeyPath,
		"key_index", cfg.KeyIndex,
		"level", level.Name,
		"r", level.RBits,
		"trials", cfg.Trials,
		"interval", cfg.Interval,
		"fixed", cfg.Fixed,
		"seed", seed,
		"text", cfg.Text,
	)
}
