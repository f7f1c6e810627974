// Package cascade expands a start neuron layer by layer through its thresholded
// downstream partners, persisting one result table per expanded neuron.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neurotrace/connectome/internal/domain"
	"github.com/neurotrace/connectome/internal/memo"
	"github.com/neurotrace/connectome/internal/metrics"
	"github.com/neurotrace/connectome/internal/service"
	"github.com/neurotrace/connectome/internal/store"
)

// Source yields thresholded, ranked partner tables.
type Source interface {
	Partners(ctx context.Context, id domain.NeuronID, dir domain.Direction, th service.Thresholds) (domain.PartnerTable, error)
}

// Report summarises a finished run.
type Report struct {
	RunID   string              `json:"runId"`
	Run     string              `json:"run"`
	Request Request             `json:"request"`
	Layers  [][]domain.NeuronID `json:"layers"`
	// Frontier holds the candidates of the last expanded layer that the depth bound cut off.
	Frontier []domain.NeuronID `json:"frontier,omitempty"`
	Queried  int               `json:"queried"`
	Written  int               `json:"written"`
	Skipped  int               `json:"skipped"`
	Leaves   int               `json:"leaves"`
}

// Crawler runs cascades. Within a run neurons are expanded sequentially.
type Crawler struct {
	source  Source
	results store.Store
	memos   memo.Factory
	metrics *metrics.Cascade
	logger  *slog.Logger
}

// Option customises a Crawler.
type Option func(*Crawler)

// WithMemo replaces the default directory-listing memo.
func WithMemo(f memo.Factory) Option {
	return func(c *Crawler) {
		if f != nil {
			c.memos = f
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Cascade) Option {
	return func(c *Crawler) { c.metrics = m }
}

// WithLogger sets the progress logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCrawler constructs a Crawler writing to results.
func NewCrawler(source Source, results store.Store, opts ...Option) *Crawler {
	c := &Crawler{
		source:  source,
		results: results,
		memos:   memo.DirectoryFactory(results),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cascade")
	return c
}

// Run expands req.Start for at most req.MaxLayers layers. The next layer is the
// concatenation of the surviving partners of every neuron expanded in the current one;
// neurons the memo has already seen are skipped and contribute nothing. Any query or
// persistence failure aborts the run.
func (c *Crawler) Run(ctx context.Context, req Request) (Report, error) {
	report, err := c.run(ctx, req)
	c.metrics.Run(err)
	return report, err
}

func (c *Crawler) run(ctx context.Context, req Request) (Report, error) {
	if !req.Start.Valid() {
		return Report{}, fmt.Errorf("cascade start %d: %w", req.Start, domain.ErrInvalidNeuronID)
	}
	req, warn := req.Normalize()
	run := store.RunKey(req.Start, req.PercentageThreshold)
	report := Report{RunID: uuid.NewString(), Run: run, Request: req}
	logger := c.logger.With("run", run, "run_id", report.RunID)
	if warn {
		logger.Warn("requested depth is large; expect a long run", "max_layers", req.MaxLayers)
	}
	if req.MaxLayers == 0 {
		return report, nil
	}

	seen, err := c.memos(ctx, run)
	if err != nil {
		return report, fmt.Errorf("open memo for %s: %w", run, err)
	}

	th := req.Thresholds()
	layer := []domain.NeuronID{req.Start}
	for depth := 0; depth < req.MaxLayers && len(layer) > 0; depth++ {
		report.Layers = append(report.Layers, layer)
		c.metrics.Layer(len(layer))

		var next []domain.NeuronID
		for _, id := range layer {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			partners, err := c.expand(ctx, logger, seen, &report, run, id, th)
			if err != nil {
				c.metrics.Neuron(metrics.OutcomeError)
				return report, err
			}
			next = append(next, partners...)
		}
		layer = next
	}
	report.Frontier = layer
	logger.Info("cascade finished",
		"layers", len(report.Layers),
		"queried", report.Queried,
		"written", report.Written,
		"skipped", report.Skipped,
		"leaves", report.Leaves,
	)
	return report, nil
}

func (c *Crawler) expand(ctx context.Context, logger *slog.Logger, seen memo.Memo, report *Report, run string, id domain.NeuronID, th service.Thresholds) ([]domain.NeuronID, error) {
	done, err := seen.Seen(ctx, id)
	if err != nil {
		return nil, err
	}
	if done {
		logger.Info("result already exists", "neuron", id)
		report.Skipped++
		c.metrics.Neuron(metrics.OutcomeSkipped)
		return nil, nil
	}

	logger.Info("processing neuron", "neuron", id)
	started := time.Now()
	table, err := c.source.Partners(ctx, id, domain.Downstream, th)
	c.metrics.ObserveQuery(started, err)
	report.Queried++
	if err != nil {
		return nil, fmt.Errorf("downstream partners of %d: %w", id, err)
	}

	if table.Empty() {
		logger.Info("no partners survived", "neuron", id)
		report.Leaves++
		c.metrics.Neuron(metrics.OutcomeLeaf)
		return nil, seen.Mark(ctx, id)
	}

	if err := c.results.Write(ctx, run, table); err != nil {
		return nil, fmt.Errorf("write result for %d: %w", id, err)
	}
	if err := seen.Mark(ctx, id); err != nil {
		return nil, err
	}
	logger.Info("created result", "neuron", id, "file", store.FileName(id), "partners", len(table.Rows))
	report.Written++
	c.metrics.Neuron(metrics.OutcomeWritten)
	return table.Partners(), nil
}
