package annotation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurotrace/connectome/internal/domain"
)

type fetcherFunc func(ctx context.Context, ids []domain.NeuronID) ([]domain.NeuronInfo, error)

func (f fetcherFunc) FetchNeurons(ctx context.Context, ids []domain.NeuronID) ([]domain.NeuronInfo, error) {
	return f(ctx, ids)
}

func TestIndexLookup(t *testing.T) {
	idx := NewIndex([]domain.NeuronInfo{
		{ID: 1, Type: "IN08B", Side: "L", Neurotransmitter: ""},
	})

	info := idx.Lookup(1)
	assert.Equal(t, "IN08B", info.Type)
	assert.Equal(t, domain.Unknown, info.Neurotransmitter)
	assert.True(t, idx.Has(1))

	missing := idx.Lookup(2)
	assert.Equal(t, domain.UnknownNeuron(2), missing)
	assert.False(t, idx.Has(2))
	assert.Equal(t, domain.Unknown, idx.Type(2))
	assert.Equal(t, 1, idx.Len())
}

func TestNilIndexIsUsable(t *testing.T) {
	var idx *Index
	assert.Equal(t, domain.Unknown, idx.Type(5))
	assert.Equal(t, 0, idx.Len())
}

func TestBuild(t *testing.T) {
	idx, err := Build(context.Background(), fetcherFunc(func(_ context.Context, ids []domain.NeuronID) ([]domain.NeuronInfo, error) {
		return []domain.NeuronInfo{{ID: ids[0], Type: "DNg11"}}, nil
	}), []domain.NeuronID{7})
	require.NoError(t, err)
	assert.Equal(t, "DNg11", idx.Type(7))

	_, err = Build(context.Background(), fetcherFunc(func(context.Context, []domain.NeuronID) ([]domain.NeuronInfo, error) {
		return nil, errors.New("down")
	}), []domain.NeuronID{7})
	assert.Error(t, err)
}
