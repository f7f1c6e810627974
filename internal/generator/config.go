package generator

import "github.com/neurotrace/connectome/internal/domain"

// Config drives the synthetic connectome generator.
type Config struct {
	NumNeurons int
	// MeanOutDegree is the average number of downstream partners per neuron.
	MeanOutDegree int
	MaxWeight     int64
	// TypedChance is the probability that a neuron carries a cell type.
	TypedChance float64
	// InterneuronChance is the probability that a typed neuron is an interneuron.
	InterneuronChance float64
	// UntracedInputChance adds synapses from untraced fragments to each total input count.
	UntracedInputChance float64
	Space               domain.Space
	Seed                int64
}

// DefaultConfig returns a small ventral-nerve-cord-like dataset.
func DefaultConfig() Config {
	return Config{
		NumNeurons:          2000,
		MeanOutDegree:       12,
		MaxWeight:           120,
		TypedChance:         0.8,
		InterneuronChance:   0.6,
		UntracedInputChance: 0.3,
		Space:               domain.SpaceMANC,
		Seed:                42,
	}
}
