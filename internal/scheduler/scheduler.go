package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"BikeDS/internal/checkpoint"
	"BikeDS/internal/logger"
	"BikeDS/internal/perturb"
	"BikeDS/internal/spectrum"
	"BikeDS/internal/trial"
)

// DefaultInterval is the number of trials per checkpoint record.
const DefaultInterval = 100000

// abortCheck is the number of trials between checks for a failed sibling
// worker inside a batch.
const abortCheck = 256

var (
	// ErrStopped is returned when the context is cancelled before all trials
	// ran. Every batch that started was still flushed.
	ErrStopped = errors.New("run stopped before completion")

	// ErrInvalidJob is returned for a job missing required fields.
	ErrInvalidJob = errors.New("invalid job")

	// ErrAborted is returned by a worker that dropped its batch because
	// another worker failed.
	ErrAborted = errors.New("aborted after another worker failed")
)

// Job describes one collection run against a single key pair.
type Job struct {
	KEM  trial.KEM     // shared by all workers, must be safe for concurrent use
	Keys trial.KeyPair // copied into each worker

	RBits int // ring size of the scheme
	Limit int // set-bit sanity bound per half, see spectrum.NewAccumulator

	Trials   int // total trial budget
	Workers  int // 0 means GOMAXPROCS
	Interval int // trials per checkpoint record, 0 means DefaultInterval

	Perturb perturb.Config
	Seed    uint64 // base seed for per-worker perturbation

	Sink checkpoint.Sink
}

// Result summarizes a run. It is meaningful even when Run returns an error.
type Result struct {
	Workers      int
	Records      uint64 // records appended to the sink
	Checkpointed uint64 // trials covered by appended records
	Successes    uint64 // successful trials among them
	Elapsed      time.Duration
}

// Workers returns the number of workers to start: requested, or
// GOMAXPROCS when zero, clamped to GOMAXPROCS and to budget.
func Workers(requested, budget int) int {
	available := runtime.GOMAXPROCS(0)

	n := requested
	if n <= 0 || n > available {
		n = available
	}

	return max(min(n, budget), 0)
}

// Partition splits budget across workers evenly; worker 0 also takes the
// remainder.
func Partition(budget, workers int) []int {
	if workers <= 0 {
		return nil
	}

	parts := make([]int, workers)
	for i := range parts {
		parts[i] = budget / workers
	}
	parts[0] += budget % workers

	return parts
}

// run holds the state shared by the workers of one Run call.
type run struct {
	job      Job
	interval int
	total    int

	sinkMu  sync.Mutex
	aborted atomic.Bool

	records      atomic.Uint64
	checkpointed atomic.Uint64
	successes    atomic.Uint64
}

// Run executes the job on a fixed pool of workers and returns once all of
// them have finished. Each worker runs its share in batches and appends one
// record per batch to the sink.
//
// The context is checked between batches only. The first worker error
// aborts the others within abortCheck trials, dropping their unfinished
// batches; the returned error states how many trials were checkpointed.
// A record that reached the primary sink of a checkpoint.Tee counts as
// checkpointed even when a mirror sink failed.
func Run(ctx context.Context, job Job) (Result, error) {
	if job.KEM == nil || job.Sink == nil {
		return Result{}, fmt.Errorf("%w: KEM and Sink are required", ErrInvalidJob)
	}

	if job.RBits <= 0 || job.Trials < 0 {
		return Result{}, fmt.Errorf("%w: ring size %d, trials %d", ErrInvalidJob, job.RBits, job.Trials)
	}

	r := &run{job: job, interval: job.Interval, total: job.Trials}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}

	workers := Workers(job.Workers, job.Trials)
	parts := Partition(job.Trials, workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	errs := make([]error, workers)

	logger.Info("run started",
		"trials", job.Trials,
		"workers", workers,
		"interval", r.interval,
		"fixed", job.Perturb.Fixed,
	)

	var wg sync.WaitGroup
	for id := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := r.worker(ctx, id, parts[id]); err != nil {
				errs[id] = err
				r.aborted.Store(true)
				cancel()
			}
		}()
	}

	wg.Wait()

	res := Result{
		Workers:      workers,
		Records:      r.records.Load(),
		Checkpointed: r.checkpointed.Load(),
		Successes:    r.successes.Load(),
		Elapsed:      time.Since(start),
	}

	var fatal []error
	for id, err := range errs {
		if errors.Is(err, ErrAborted) {
			logger.Debug("worker aborted", "worker", id)
			continue
		}
		fatal = append(fatal, err)
	}

	if err := errors.Join(fatal...); err != nil {
		return res, fmt.Errorf("run halted with %d of %d trials checkpointed:\n%w", res.Checkpointed, job.Trials, err)
	}

	if res.Checkpointed < uint64(job.Trials) {
		return res, fmt.Errorf("%w: %d of %d trials checkpointed", ErrStopped, res.Checkpointed, job.Trials)
	}

	logger.Info("run finished",
		"trials", res.Checkpointed,
		"successes", res.Successes,
		"records", res.Records,
		logger.Timed(start),
	)

	return res, nil
}

// worker runs budget trials in batches of at most r.interval.
func (r *run) worker(ctx context.Context, id, budget int) error {
	exec := &trial.Executor{
		KEM:  r.job.KEM,
		Keys: r.job.Keys.Clone(),
		Hook: perturb.New(r.job.Perturb, r.job.RBits, r.job.Seed+uint64(id)),
	}

	acc := spectrum.NewAccumulator(r.job.RBits, r.job.Limit)
	pair := spectrum.NewPair(r.job.RBits)
	prog := progress{}

	for batch := uint32(0); budget > 0; batch++ {
		if ctx.Err() != nil {
			return nil
		}

		size := min(budget, r.interval)
		started := time.Now()

		var successes uint64
		for i := 0; i < size; i++ {
			if i%abortCheck == 0 && r.aborted.Load() {
				return fmt.Errorf("worker %d batch %d trial %d: %w", id, batch, i, ErrAborted)
			}

			ok, err := exec.Step(acc, pair)
			if err != nil {
				return fmt.Errorf("worker %d batch %d trial %d:\n%w", id, batch, i, err)
			}

			if ok {
				successes++
			}
		}

		rec := &checkpoint.Record{
			Worker:    uint32(id),
			Batch:     batch,
			Successes: successes,
			Size:      uint64(size),
			Half:      [2]*spectrum.Spectrum{pair[0].Clone(), pair[1].Clone()},
		}

		if err := r.flush(rec); err != nil {
			return fmt.Errorf("worker %d batch %d flush:\n%w", id, batch, err)
		}

		pair.Reset()
		budget -= size

		if id == 0 {
			prog.batchDone(time.Since(started))
			r.report(prog, budget)
		}
	}

	return nil
}

// flush appends rec under the sink lock and updates the run counters.
// A mirror failure still counts the record before returning the error.
func (r *run) flush(rec *checkpoint.Record) error {
	r.sinkMu.Lock()
	err := r.job.Sink.Append(rec)
	r.sinkMu.Unlock()

	if err != nil && !errors.Is(err, checkpoint.ErrMirror) {
		return err
	}

	r.records.Add(1)
	r.checkpointed.Add(rec.Size)
	r.successes.Add(rec.Successes)

	logger.Debug("batch flushed",
		"worker", rec.Worker,
		"batch", rec.Batch,
		"size", rec.Size,
		"successes", rec.Successes,
	)

	if err != nil {
		logger.Warn("mirror sink failed", "worker", rec.Worker, "batch", rec.Batch, "error", err)
	}

	return err
}
