package generator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/neurotrace/connectome/internal/domain"
	"github.com/neurotrace/connectome/internal/repository"
)

const (
	mancBaseID domain.NeuronID = 10000
	fancBaseID domain.NeuronID = 648518346486610000
)

// Neuron is a generated neuron node.
type Neuron struct {
	ID               domain.NeuronID `json:"bodyId"`
	Type             string          `json:"type,omitempty"`
	Side             string          `json:"somaSide,omitempty"`
	Neurotransmitter string          `json:"predictedNt,omitempty"`
	TotalInputs      int64           `json:"post"`
}

// Connection is a generated weighted pre→post edge.
type Connection struct {
	Pre    domain.NeuronID `json:"pre"`
	Post   domain.NeuronID `json:"post"`
	Weight int64           `json:"weight"`
}

// Dataset contains the generated neurons and connections.
type Dataset struct {
	Neurons     []Neuron     `json:"neurons"`
	Connections []Connection `json:"connections"`
}

// NeuronRecords converts the neurons for graph ingestion.
func (d Dataset) NeuronRecords() []repository.NeuronRecord {
	out := make([]repository.NeuronRecord, 0, len(d.Neurons))
	for _, n := range d.Neurons {
		out = append(out, repository.NeuronRecord{Info: n.Info(), TotalInputs: n.TotalInputs})
	}
	return out
}

// EdgeRecords converts the connections for graph ingestion.
func (d Dataset) EdgeRecords() []repository.EdgeRecord {
	out := make([]repository.EdgeRecord, 0, len(d.Connections))
	for _, c := range d.Connections {
		out = append(out, repository.EdgeRecord{Pre: c.Pre, Post: c.Post, Weight: c.Weight})
	}
	return out
}

// Info returns the neuron's annotations with blanks reported as unknown.
func (n Neuron) Info() domain.NeuronInfo {
	info := domain.UnknownNeuron(n.ID)
	if n.Type != "" {
		info.Type = n.Type
	}
	if n.Side != "" {
		info.Side = n.Side
	}
	if n.Neurotransmitter != "" {
		info.Neurotransmitter = n.Neurotransmitter
	}
	return info
}

// Generator produces synthetic connectivity shaped like a neuPrint dataset.
type Generator struct {
	cfg  Config
	rand *rand.Rand
}

// New returns a configured Generator instance.
func New(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.NumNeurons <= 0 {
		cfg.NumNeurons = def.NumNeurons
	}
	if cfg.MeanOutDegree <= 0 {
		cfg.MeanOutDegree = def.MeanOutDegree
	}
	if cfg.MaxWeight <= 0 {
		cfg.MaxWeight = def.MaxWeight
	}
	if cfg.TypedChance <= 0 {
		cfg.TypedChance = def.TypedChance
	}
	if cfg.InterneuronChance <= 0 {
		cfg.InterneuronChance = def.InterneuronChance
	}
	if cfg.UntracedInputChance < 0 {
		cfg.UntracedInputChance = 0
	}
	if cfg.Space == "" {
		cfg.Space = def.Space
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Generator{
		cfg:  cfg,
		rand: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Generate synthesises neurons and connections. It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	base := mancBaseID
	if g.cfg.Space == domain.SpaceFANC {
		base = fancBaseID
	}

	neurons := make([]Neuron, g.cfg.NumNeurons)
	index := make(map[domain.NeuronID]int, g.cfg.NumNeurons)
	for i := range neurons {
		id := base + domain.NeuronID(i)*7 + domain.NeuronID(g.rand.Intn(7))
		neurons[i] = Neuron{
			ID:               id,
			Type:             g.randomType(),
			Side:             g.randomSide(),
			Neurotransmitter: g.randomNeurotransmitter(),
		}
		index[id] = i
	}

	var connections []Connection
	for i := range neurons {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		degree := g.rand.Intn(2*g.cfg.MeanOutDegree + 1)
		picked := make(map[int]struct{}, degree)
		for len(picked) < degree && len(picked) < len(neurons)-1 {
			j := g.rand.Intn(len(neurons))
			if j == i {
				continue
			}
			if _, dup := picked[j]; dup {
				continue
			}
			picked[j] = struct{}{}
			weight := g.randomWeight()
			connections = append(connections, Connection{Pre: neurons[i].ID, Post: neurons[j].ID, Weight: weight})
			neurons[j].TotalInputs += weight
		}
	}

	for i := range neurons {
		if g.rand.Float64() < g.cfg.UntracedInputChance {
			neurons[i].TotalInputs += int64(g.rand.Intn(200))
		}
	}

	return Dataset{Neurons: neurons, Connections: connections}, nil
}

// randomWeight is heavy-tailed: most connections carry a handful of synapses.
func (g *Generator) randomWeight() int64 {
	w := int64(1 + g.rand.ExpFloat64()*6)
	if w > g.cfg.MaxWeight {
		w = g.cfg.MaxWeight
	}
	return w
}

func (g *Generator) randomType() string {
	if g.rand.Float64() >= g.cfg.TypedChance {
		return ""
	}
	if g.rand.Float64() < g.cfg.InterneuronChance {
		return fmt.Sprintf("IN%02d%c%03d", 1+g.rand.Intn(21), 'A'+rune(g.rand.Intn(3)), 1+g.rand.Intn(99))
	}
	prefixes := []string{"DNg", "DNp", "AN", "SNta", "MNad", "MNhl", "EA"}
	return fmt.Sprintf("%s%02d", prefixes[g.rand.Intn(len(prefixes))], 1+g.rand.Intn(60))
}

func (g *Generator) randomSide() string {
	sides := []string{"L", "R", "Midline"}
	return sides[g.rand.Intn(len(sides))]
}

func (g *Generator) randomNeurotransmitter() string {
	nts := []string{"acetylcholine", "gaba", "glutamate", "serotonin", "dopamine", "octopamine"}
	return nts[g.rand.Intn(len(nts))]
}
