package validation

import (
	"context"
	"sort"
	"sync"

	"github.com/flanksource/commons/logger"
)

// Pair names one original/regenerated comparison in a batch.
type Pair struct {
	Original    string `json:"original" yaml:"original"`
	Regenerated string `json:"regenerated" yaml:"regenerated"`
}

// BatchRunner runs many comparisons under one config. With workers > 1 the
// pairs run on a worker pool; each worker owns its own pipeline so no
// comparison state is shared. Result order matches input order regardless of
// completion order. A cancelled context stops dispatching new pairs but
// in-flight comparisons finish.
type BatchRunner struct {
	cfg     Config
	factory func() *Pipeline
}

// NewBatchRunner builds a runner; factory must return a fresh pipeline per
// call.
func NewBatchRunner(cfg Config, factory func() *Pipeline) *BatchRunner {
	return &BatchRunner{cfg: cfg, factory: factory}
}

// Run validates all pairs, in parallel when workers > 1.
func (b *BatchRunner) Run(ctx context.Context, pairs []Pair, workers int) *ValidationReport {
	threshold := b.cfg.SSIMThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	report := NewReport(threshold)
	if len(pairs) == 0 {
		return report
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}

	type indexed struct {
		idx    int
		result ValidationResult
	}

	jobs := make(chan int)
	out := make(chan indexed, len(pairs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pipeline := b.factory()
			for idx := range jobs {
				pair := pairs[idx]
				// Validate recovers its own panics, so one poisoned
				// file never takes the worker down.
				out <- indexed{idx: idx, result: pipeline.Validate(ctx, pair.Original, pair.Regenerated)}
			}
		}()
	}

	dispatched := 0
dispatch:
	for idx := range pairs {
		select {
		case <-ctx.Done():
			logger.Warnf("batch cancelled after %d of %d pairs", dispatched, len(pairs))
			break dispatch
		case jobs <- idx:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()
	close(out)

	results := make([]indexed, 0, dispatched)
	for r := range out {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].idx < results[j].idx })
	for _, r := range results {
		report.Add(r.result)
	}
	return report
}
