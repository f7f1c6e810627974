package service

import (
	"context"
	"errors"
	"sync"

	"github.com/neurotrace/connectome/internal/repository"
)

// TaskError accumulates multiple errors produced by a worker pool.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := "multiple errors:"
	for _, err := range e.Errors {
		msg += " " + err.Error() + ";"
	}
	return msg
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *TaskError) Unwrap() []error {
	return e.Errors
}

func (e *TaskError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *TaskError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// GraphWriter is the storage contract required by BulkIngestor.
type GraphWriter interface {
	UpsertNeurons(ctx context.Context, neurons []repository.NeuronRecord) error
	UpsertConnections(ctx context.Context, edges []repository.EdgeRecord) error
}

// BulkIngestor loads neurons and connections into the graph in batches using a worker pool.
type BulkIngestor struct {
	writer    GraphWriter
	workers   int
	batchSize int
}

// NewBulkIngestor creates a new BulkIngestor with the provided concurrency and batch size.
func NewBulkIngestor(writer GraphWriter, workers, batchSize int) *BulkIngestor {
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &BulkIngestor{
		writer:    writer,
		workers:   workers,
		batchSize: batchSize,
	}
}

// IngestNeurons upserts neuron records concurrently.
func (bi *BulkIngestor) IngestNeurons(ctx context.Context, neurons []repository.NeuronRecord) error {
	batches := batchCount(len(neurons), bi.batchSize)
	return RunPool(ctx, bi.workers, batches, func(idx int) error {
		lo, hi := batchBounds(idx, bi.batchSize, len(neurons))
		return bi.writer.UpsertNeurons(ctx, neurons[lo:hi])
	})
}

// IngestConnections upserts connection records concurrently. Neurons must be ingested first
// for the edges to attach to annotated nodes.
func (bi *BulkIngestor) IngestConnections(ctx context.Context, edges []repository.EdgeRecord) error {
	batches := batchCount(len(edges), bi.batchSize)
	return RunPool(ctx, bi.workers, batches, func(idx int) error {
		lo, hi := batchBounds(idx, bi.batchSize, len(edges))
		return bi.writer.UpsertConnections(ctx, edges[lo:hi])
	})
}

func batchCount(total, size int) int {
	return (total + size - 1) / size
}

func batchBounds(idx, size, total int) (int, int) {
	lo := idx * size
	hi := lo + size
	if hi > total {
		hi = total
	}
	return lo, hi
}

// RunPool calls workerFn for every index in [0, total) on at most workers goroutines.
// Context errors are returned as-is; other failures are collected into a *TaskError.
func RunPool(ctx context.Context, workers, total int, workerFn func(idx int) error) error {
	if total == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	indexCh := make(chan int)
	errCh := make(chan error, total)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range indexCh {
			if err := workerFn(idx); err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}

Loop:
	for i := 0; i < total; i++ {
		select {
		case indexCh <- i:
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()
	close(errCh)

	var taskErr TaskError
	for err := range errCh {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		taskErr.append(err)
	}
	if err := ctx.Err(); err != nil && len(taskErr.Errors) == 0 {
		return err
	}
	return taskErr.asError()
}
