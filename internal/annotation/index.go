// Package annotation holds read-only lookups from neuron identifiers to cell-type
// annotations.
package annotation

import (
	"context"
	"strings"

	"github.com/neurotrace/connectome/internal/domain"
)

// Fetcher returns annotations for a batch of neurons.
type Fetcher interface {
	FetchNeurons(ctx context.Context, ids []domain.NeuronID) ([]domain.NeuronInfo, error)
}

// Index is built once and never mutated. Missing keys resolve to domain.Unknown.
type Index struct {
	entries map[domain.NeuronID]domain.NeuronInfo
}

// NewIndex builds an index from already fetched annotations. Later entries win.
func NewIndex(infos []domain.NeuronInfo) *Index {
	entries := make(map[domain.NeuronID]domain.NeuronInfo, len(infos))
	for _, info := range infos {
		entries[info.ID] = normalize(info)
	}
	return &Index{entries: entries}
}

// Build fetches annotations for ids in a single request.
func Build(ctx context.Context, fetcher Fetcher, ids []domain.NeuronID) (*Index, error) {
	infos, err := fetcher.FetchNeurons(ctx, ids)
	if err != nil {
		return nil, err
	}
	return NewIndex(infos), nil
}

// Lookup returns the annotations for id, or an Unknown record.
func (x *Index) Lookup(id domain.NeuronID) domain.NeuronInfo {
	if x != nil {
		if info, ok := x.entries[id]; ok {
			return info
		}
	}
	return domain.UnknownNeuron(id)
}

// Has reports whether id was present in the source response.
func (x *Index) Has(id domain.NeuronID) bool {
	if x == nil {
		return false
	}
	_, ok := x.entries[id]
	return ok
}

// Type is shorthand for Lookup(id).Type.
func (x *Index) Type(id domain.NeuronID) string {
	return x.Lookup(id).Type
}

// Len returns the number of indexed neurons.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.entries)
}

func normalize(info domain.NeuronInfo) domain.NeuronInfo {
	info.Type = orUnknown(info.Type)
	info.Side = orUnknown(info.Side)
	info.Neurotransmitter = orUnknown(info.Neurotransmitter)
	return info
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Unknown
	}
	return s
}
