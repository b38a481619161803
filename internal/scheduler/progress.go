package scheduler

import (
	"time"

	"BikeDS/internal/logger"
)

// progress tracks batch timing on the reporting worker.
type progress struct {
	batches int
	spent   time.Duration
}

// batchDone records one completed batch.
func (p *progress) batchDone(d time.Duration) {
	p.batches++
	p.spent += d
}

// eta estimates the time left for remaining trials from the mean batch time.
func (p progress) eta(remaining, interval int) time.Duration {
	if p.batches == 0 || remaining <= 0 {
		return 0
	}

	left := (remaining + interval - 1) / interval
	mean := p.spent / time.Duration(p.batches)

	return mean * time.Duration(left)
}

// report logs run-wide progress. Only worker 0 calls it.
func (r *run) report(p progress, remaining int) {
	done := r.checkpointed.Load()

	logger.Info("progress",
		"done", done,
		"remaining", uint64(r.total)-min(done, uint64(r.total)),
		"successes", r.successes.Load(),
		"eta", p.eta(remaining, r.interval).Round(time.Second),
	)
}
