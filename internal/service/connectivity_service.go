package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/neurotrace/connectome/internal/annotation"
	"github.com/neurotrace/connectome/internal/domain"
)

const (
	// DefaultMinWeight is the raw synapse count a partner needs before percentages are computed.
	DefaultMinWeight int64 = 3
	// DefaultMinPercent is the share of the partner's input a connection needs to be kept.
	DefaultMinPercent = 0.5
)

// ConnectivitySource is the contract for a connectivity dataset (neuPrint or CAVE).
type ConnectivitySource interface {
	FetchDownstream(ctx context.Context, id domain.NeuronID) ([]domain.Connection, error)
	FetchUpstream(ctx context.Context, id domain.NeuronID) ([]domain.Connection, error)
	FetchTotalInputs(ctx context.Context, ids []domain.NeuronID) (map[domain.NeuronID]int64, error)
}

// Thresholds prunes partner lists. Zero values disable the respective filter.
type Thresholds struct {
	MinWeight  int64
	MinPercent float64
}

// DefaultThresholds returns the thresholds used when a caller supplies none.
func DefaultThresholds() Thresholds {
	return Thresholds{MinWeight: DefaultMinWeight, MinPercent: DefaultMinPercent}
}

// ConnectivityService computes thresholded, ranked partner tables.
type ConnectivityService struct {
	source    ConnectivitySource
	annotator annotation.Fetcher
}

// NewConnectivityService constructs a ConnectivityService. annotator may be nil.
func NewConnectivityService(source ConnectivitySource, annotator annotation.Fetcher) *ConnectivityService {
	return &ConnectivityService{source: source, annotator: annotator}
}

// Partners fetches the partners of id in the given direction, keeps those with
// weight >= MinWeight, computes the percent of each partner's total input, keeps those
// with percent >= MinPercent and ranks by percent descending.
//
// For upstream tables the percent is relative to id's own total input.
func (s *ConnectivityService) Partners(ctx context.Context, id domain.NeuronID, dir domain.Direction, th Thresholds) (domain.PartnerTable, error) {
	table := domain.PartnerTable{Neuron: id, Direction: dir}
	if !id.Valid() {
		return table, nil
	}

	var (
		conns []domain.Connection
		err   error
	)
	switch dir {
	case domain.Upstream:
		conns, err = s.source.FetchUpstream(ctx, id)
	default:
		table.Direction = domain.Downstream
		conns, err = s.source.FetchDownstream(ctx, id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidNeuronID) {
			return table, nil
		}
		return table, err
	}

	conns = FilterByWeight(conns, th.MinWeight)
	if len(conns) == 0 {
		return table, nil
	}

	totals, err := s.totalsFor(ctx, id, table.Direction, conns)
	if err != nil {
		return table, err
	}
	conns = ApplyPercent(conns, func(c domain.Connection) int64 {
		if table.Direction == domain.Upstream {
			return totals[id]
		}
		return totals[c.Partner]
	})
	conns = FilterByPercent(conns, th.MinPercent)
	RankByPercent(conns)

	if err := s.annotate(ctx, conns); err != nil {
		return table, err
	}
	table.Rows = conns
	return table, nil
}

// Summary fetches both directions concurrently.
func (s *ConnectivityService) Summary(ctx context.Context, id domain.NeuronID, th Thresholds) (domain.ConnectivitySummary, error) {
	summary := domain.ConnectivitySummary{Neuron: id}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		table, err := s.Partners(gctx, id, domain.Upstream, th)
		summary.Upstream = table
		return err
	})
	g.Go(func() error {
		table, err := s.Partners(gctx, id, domain.Downstream, th)
		summary.Downstream = table
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ConnectivitySummary{}, fmt.Errorf("connectivity summary of %d: %w", id, err)
	}
	return summary, nil
}

func (s *ConnectivityService) totalsFor(ctx context.Context, id domain.NeuronID, dir domain.Direction, conns []domain.Connection) (map[domain.NeuronID]int64, error) {
	ids := []domain.NeuronID{id}
	if dir == domain.Downstream {
		ids = make([]domain.NeuronID, 0, len(conns))
		for _, c := range conns {
			ids = append(ids, c.Partner)
		}
	}
	totals, err := s.source.FetchTotalInputs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("total inputs for partners of %d: %w", id, err)
	}
	return totals, nil
}

func (s *ConnectivityService) annotate(ctx context.Context, conns []domain.Connection) error {
	if s.annotator == nil {
		return nil
	}
	var missing []domain.NeuronID
	for _, c := range conns {
		if c.Type == "" || c.Type == domain.Unknown {
			missing = append(missing, c.Partner)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	idx, err := annotation.Build(ctx, s.annotator, missing)
	if err != nil {
		return fmt.Errorf("annotate partners: %w", err)
	}
	for i := range conns {
		if conns[i].Type == "" || conns[i].Type == domain.Unknown {
			conns[i].Type = idx.Type(conns[i].Partner)
		}
	}
	return nil
}

// FilterByWeight keeps connections with Weight >= min.
func FilterByWeight(conns []domain.Connection, min int64) []domain.Connection {
	kept := make([]domain.Connection, 0, len(conns))
	for _, c := range conns {
		if c.Weight >= min {
			kept = append(kept, c)
		}
	}
	return kept
}

// ApplyPercent sets Percent = Weight / total * 100. A zero or missing total yields 0.
func ApplyPercent(conns []domain.Connection, total func(domain.Connection) int64) []domain.Connection {
	out := make([]domain.Connection, len(conns))
	for i, c := range conns {
		if t := total(c); t > 0 {
			c.Percent = float64(c.Weight) / float64(t) * 100
		} else {
			c.Percent = 0
		}
		out[i] = c
	}
	return out
}

// FilterByPercent keeps connections with Percent >= min.
func FilterByPercent(conns []domain.Connection, min float64) []domain.Connection {
	kept := make([]domain.Connection, 0, len(conns))
	for _, c := range conns {
		if c.Percent >= min {
			kept = append(kept, c)
		}
	}
	return kept
}

// RankByPercent sorts in place by Percent descending, keeping source order for ties.
func RankByPercent(conns []domain.Connection) {
	sort.SliceStable(conns, func(i, j int) bool {
		return conns[i].Percent > conns[j].Percent
	})
}

// TopN returns the first n connections of a ranked list. n <= 0 keeps all of them.
func TopN(conns []domain.Connection, n int) []domain.Connection {
	if n <= 0 || n >= len(conns) {
		return conns
	}
	return conns[:n]
}
