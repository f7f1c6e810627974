package generator

import (
	"context"
	"sort"

	"github.com/neurotrace/connectome/internal/domain"
)

// MemorySource serves a Dataset with the same contract as the remote connectivity
// sources, so cascades can run offline.
type MemorySource struct {
	neurons    map[domain.NeuronID]Neuron
	downstream map[domain.NeuronID][]domain.Connection
	upstream   map[domain.NeuronID][]domain.Connection
}

// NewMemorySource indexes ds.
func NewMemorySource(ds Dataset) *MemorySource {
	s := &MemorySource{
		neurons:    make(map[domain.NeuronID]Neuron, len(ds.Neurons)),
		downstream: make(map[domain.NeuronID][]domain.Connection),
		upstream:   make(map[domain.NeuronID][]domain.Connection),
	}
	for _, n := range ds.Neurons {
		s.neurons[n.ID] = n
	}
	for _, c := range ds.Connections {
		s.downstream[c.Pre] = append(s.downstream[c.Pre], domain.Connection{Partner: c.Post, Weight: c.Weight, Type: s.typeOf(c.Post)})
		s.upstream[c.Post] = append(s.upstream[c.Post], domain.Connection{Partner: c.Pre, Weight: c.Weight, Type: s.typeOf(c.Pre)})
	}
	for _, m := range []map[domain.NeuronID][]domain.Connection{s.downstream, s.upstream} {
		for _, conns := range m {
			sortByWeight(conns)
		}
	}
	return s
}

func (s *MemorySource) typeOf(id domain.NeuronID) string {
	if n, ok := s.neurons[id]; ok && n.Type != "" {
		return n.Type
	}
	return domain.Unknown
}

func (s *MemorySource) FetchDownstream(_ context.Context, id domain.NeuronID) ([]domain.Connection, error) {
	return append([]domain.Connection(nil), s.downstream[id]...), nil
}

func (s *MemorySource) FetchUpstream(_ context.Context, id domain.NeuronID) ([]domain.Connection, error) {
	return append([]domain.Connection(nil), s.upstream[id]...), nil
}

func (s *MemorySource) FetchTotalInputs(_ context.Context, ids []domain.NeuronID) (map[domain.NeuronID]int64, error) {
	out := make(map[domain.NeuronID]int64, len(ids))
	for _, id := range ids {
		if n, ok := s.neurons[id]; ok {
			out[id] = n.TotalInputs
		}
	}
	return out, nil
}

// FetchNeurons returns annotations in request order.
func (s *MemorySource) FetchNeurons(_ context.Context, ids []domain.NeuronID) ([]domain.NeuronInfo, error) {
	out := make([]domain.NeuronInfo, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.neurons[id]; ok {
			out = append(out, n.Info())
			continue
		}
		out = append(out, domain.UnknownNeuron(id))
	}
	return out, nil
}

func sortByWeight(conns []domain.Connection) {
	sort.SliceStable(conns, func(i, j int) bool {
		if conns[i].Weight != conns[j].Weight {
			return conns[i].Weight > conns[j].Weight
		}
		return conns[i].Partner < conns[j].Partner
	})
}
