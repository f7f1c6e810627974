package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurotrace/connectome/internal/domain"
)

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := Config{NumNeurons: 50, MeanOutDegree: 4, Seed: 7}
	a, err := New(cfg).Generate(context.Background())
	require.NoError(t, err)
	b, err := New(cfg).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a.Neurons, 50)
}

func TestGenerateConsistentTotals(t *testing.T) {
	ds, err := New(Config{NumNeurons: 80, MeanOutDegree: 5, UntracedInputChance: 0, Seed: 3}).Generate(context.Background())
	require.NoError(t, err)

	seen := map[domain.NeuronID]bool{}
	for _, n := range ds.Neurons {
		assert.True(t, n.ID.Valid())
		assert.False(t, seen[n.ID], "duplicate id %d", n.ID)
		seen[n.ID] = true
		assert.Equal(t, domain.SpaceMANC, domain.SpaceOf(n.ID))
	}

	inputs := map[domain.NeuronID]int64{}
	for _, c := range ds.Connections {
		assert.NotEqual(t, c.Pre, c.Post)
		assert.GreaterOrEqual(t, c.Weight, int64(1))
		inputs[c.Post] += c.Weight
	}
	// untraced inputs only ever add synapses
	for _, n := range ds.Neurons {
		assert.GreaterOrEqual(t, n.TotalInputs, inputs[n.ID])
	}
}

func TestGenerateFANCSpace(t *testing.T) {
	ds, err := New(Config{NumNeurons: 5, Space: domain.SpaceFANC, Seed: 1}).Generate(context.Background())
	require.NoError(t, err)
	for _, n := range ds.Neurons {
		assert.Equal(t, domain.SpaceFANC, domain.SpaceOf(n.ID))
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{NumNeurons: 10, Seed: 1}).Generate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteAndReadDataset(t *testing.T) {
	ds, err := New(Config{NumNeurons: 20, Seed: 11}).Generate(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, WriteDataset(ds, dir))
	back, err := ReadDataset(dir)
	require.NoError(t, err)
	assert.Equal(t, ds, back)

	assert.Len(t, back.NeuronRecords(), 20)
	assert.Len(t, back.EdgeRecords(), len(ds.Connections))
}

func TestMemorySource(t *testing.T) {
	ds := Dataset{
		Neurons: []Neuron{
			{ID: 1, Type: "DNg11", TotalInputs: 10},
			{ID: 2, Type: "IN03A001", TotalInputs: 100},
			{ID: 3, TotalInputs: 50},
		},
		Connections: []Connection{
			{Pre: 1, Post: 3, Weight: 2},
			{Pre: 1, Post: 2, Weight: 5},
			{Pre: 2, Post: 3, Weight: 9},
		},
	}
	src := NewMemorySource(ds)
	ctx := context.Background()

	down, err := src.FetchDownstream(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Connection{
		{Partner: 2, Weight: 5, Type: "IN03A001"},
		{Partner: 3, Weight: 2, Type: domain.Unknown},
	}, down)

	up, err := src.FetchUpstream(ctx, 3)
	require.NoError(t, err)
	require.Len(t, up, 2)
	assert.Equal(t, domain.NeuronID(2), up[0].Partner)

	totals, err := src.FetchTotalInputs(ctx, []domain.NeuronID{2, 3, 99})
	require.NoError(t, err)
	assert.Equal(t, map[domain.NeuronID]int64{2: 100, 3: 50}, totals)

	infos, err := src.FetchNeurons(ctx, []domain.NeuronID{3, 1})
	require.NoError(t, err)
	assert.Equal(t, domain.Unknown, infos[0].Type)
	assert.True(t, strings.HasPrefix(infos[1].Type, "DN"))
}
