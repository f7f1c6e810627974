package cascade

import (
	"context"
	"fmt"

	"github.com/neurotrace/connectome/internal/service"
)

// TaskError aggregates the failures of a batch.
type TaskError = service.TaskError

// BatchRunner runs several cascades on a bounded worker pool.
type BatchRunner struct {
	crawler *Crawler
	workers int
}

// NewBatchRunner creates a BatchRunner. Non-positive workers default to 4.
func NewBatchRunner(crawler *Crawler, workers int) *BatchRunner {
	if workers <= 0 {
		workers = 4
	}
	return &BatchRunner{crawler: crawler, workers: workers}
}

// Run executes every request. Reports are returned in request order; a failed request
// leaves a partial report and contributes to the returned *TaskError.
func (b *BatchRunner) Run(ctx context.Context, reqs []Request) ([]Report, error) {
	reports := make([]Report, len(reqs))
	err := service.RunPool(ctx, b.workers, len(reqs), func(idx int) error {
		report, err := b.crawler.Run(ctx, reqs[idx])
		reports[idx] = report
		if err != nil {
			return fmt.Errorf("cascade from %d: %w", reqs[idx].Start, err)
		}
		return nil
	})
	return reports, err
}
