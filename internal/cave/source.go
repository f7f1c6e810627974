package cave

import (
	"context"
	"fmt"
	"sort"

	"github.com/neurotrace/connectome/internal/domain"
)

// Querier is the subset of Client used by Source.
type Querier interface {
	LiveQuery(ctx context.Context, filter map[string]any) ([]domain.Synapse, error)
}

// Source turns synapse rows into partner counts.
type Source struct {
	client Querier
	yLimit *float64
}

// NewSource wraps a live-query client.
func NewSource(client Querier) *Source {
	return &Source{client: client}
}

// WithYLimit keeps only synapses whose presynaptic site lies below limit on the Y axis.
func (s *Source) WithYLimit(limit float64) *Source {
	s.yLimit = &limit
	return s
}

// FetchDownstream counts synapses from id to each postsynaptic partner, strongest first.
func (s *Source) FetchDownstream(ctx context.Context, id domain.NeuronID) ([]domain.Connection, error) {
	if !id.Valid() {
		return nil, domain.ErrInvalidNeuronID
	}
	synapses, err := s.client.LiveQuery(ctx, map[string]any{ColumnPreRoot: int64(id)})
	if err != nil {
		return nil, fmt.Errorf("fetch downstream synapses of %d: %w", id, err)
	}
	return CountPartners(s.filter(synapses), func(syn domain.Synapse) domain.NeuronID { return syn.Post }), nil
}

// FetchUpstream counts synapses onto id from each presynaptic partner, strongest first.
func (s *Source) FetchUpstream(ctx context.Context, id domain.NeuronID) ([]domain.Connection, error) {
	if !id.Valid() {
		return nil, domain.ErrInvalidNeuronID
	}
	synapses, err := s.client.LiveQuery(ctx, map[string]any{ColumnPostRoot: int64(id)})
	if err != nil {
		return nil, fmt.Errorf("fetch upstream synapses of %d: %w", id, err)
	}
	return CountPartners(s.filter(synapses), func(syn domain.Synapse) domain.NeuronID { return syn.Pre }), nil
}

// FetchTotalInputs counts every synapse onto each neuron. One query per neuron.
func (s *Source) FetchTotalInputs(ctx context.Context, ids []domain.NeuronID) (map[domain.NeuronID]int64, error) {
	totals := make(map[domain.NeuronID]int64, len(ids))
	for _, id := range ids {
		if _, done := totals[id]; done || !id.Valid() {
			continue
		}
		synapses, err := s.client.LiveQuery(ctx, map[string]any{ColumnPostRoot: int64(id)})
		if err != nil {
			return nil, fmt.Errorf("fetch total inputs of %d: %w", id, err)
		}
		totals[id] = int64(len(synapses))
	}
	return totals, nil
}

func (s *Source) filter(synapses []domain.Synapse) []domain.Synapse {
	if s.yLimit == nil {
		return synapses
	}
	return FilterYBelow(synapses, *s.yLimit)
}

// FilterYBelow keeps synapses whose presynaptic position has y < limit.
func FilterYBelow(synapses []domain.Synapse, limit float64) []domain.Synapse {
	kept := make([]domain.Synapse, 0, len(synapses))
	for _, syn := range synapses {
		if syn.PrePosition[1] < limit {
			kept = append(kept, syn)
		}
	}
	return kept
}

// CountPartners groups synapses by the partner key. Root 0 marks unsegmented
// fragments and is dropped. Ties are ordered by partner ID.
func CountPartners(synapses []domain.Synapse, key func(domain.Synapse) domain.NeuronID) []domain.Connection {
	counts := make(map[domain.NeuronID]int64)
	for _, syn := range synapses {
		partner := key(syn)
		if !partner.Valid() {
			continue
		}
		counts[partner]++
	}

	conns := make([]domain.Connection, 0, len(counts))
	for partner, n := range counts {
		conns = append(conns, domain.Connection{Partner: partner, Weight: n, Type: domain.Unknown})
	}
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].Weight != conns[j].Weight {
			return conns[i].Weight > conns[j].Weight
		}
		return conns[i].Partner < conns[j].Partner
	})
	return conns
}
