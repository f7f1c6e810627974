// Package network turns cascade result tables into neuron graphs for display.
package network

import (
	"strconv"
	"strings"

	"github.com/neurotrace/connectome/internal/annotation"
	"github.com/neurotrace/connectome/internal/domain"
)

// WidthScale divides synapse counts to obtain display edge widths.
const WidthScale = 150.0

// Class groups nodes for colouring.
type Class string

const (
	ClassInterneuron Class = "interneuron"
	ClassTyped       Class = "typed"
	ClassUntyped     Class = "untyped"
)

// ClassOf classifies a cell type: "IN..." types are interneurons.
func ClassOf(cellType string) Class {
	switch {
	case cellType == "" || cellType == domain.Unknown:
		return ClassUntyped
	case strings.HasPrefix(cellType, "IN"):
		return ClassInterneuron
	default:
		return ClassTyped
	}
}

// Node is a neuron or, after contraction, a group of neurons.
type Node struct {
	Key     string
	Type    string
	Class   Class
	Members []domain.NeuronID
}

// Edge is a directed weighted connection between node keys.
type Edge struct {
	From   string
	To     string
	Weight float64
}

// Width returns the display width of the edge.
func (e Edge) Width() float64 {
	return e.Weight / WidthScale
}

// Graph is an explicit node and edge list in insertion order.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Node returns the node with key.
func (g Graph) Node(key string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.Key == key {
			return n, true
		}
	}
	return Node{}, false
}

// Key renders a neuron identifier as a node key.
func Key(id domain.NeuronID) string {
	return strconv.FormatInt(int64(id), 10)
}

// Build creates one node per neuron and one edge per table row. A pair appearing in
// several tables keeps the last weight seen. Types come from the rows first and the
// index second.
func Build(tables []domain.PartnerTable, idx *annotation.Index) Graph {
	b := newBuilder()
	for _, table := range tables {
		b.node(table.Neuron, idx.Type(table.Neuron))
		for _, row := range table.Rows {
			t := row.Type
			if t == "" || t == domain.Unknown {
				t = idx.Type(row.Partner)
			}
			b.node(row.Partner, t)
			b.edge(Key(table.Neuron), Key(row.Partner), float64(row.Weight))
		}
	}
	return b.graph()
}

type builder struct {
	nodes     []Node
	nodeIndex map[string]int
	edges     []Edge
	edgeIndex map[[2]string]int
}

func newBuilder() *builder {
	return &builder{nodeIndex: map[string]int{}, edgeIndex: map[[2]string]int{}}
}

func (b *builder) node(id domain.NeuronID, cellType string) {
	key := Key(id)
	if i, ok := b.nodeIndex[key]; ok {
		if b.nodes[i].Class == ClassUntyped && ClassOf(cellType) != ClassUntyped {
			b.nodes[i].Type = cellType
			b.nodes[i].Class = ClassOf(cellType)
		}
		return
	}
	if cellType == "" {
		cellType = domain.Unknown
	}
	b.nodeIndex[key] = len(b.nodes)
	b.nodes = append(b.nodes, Node{Key: key, Type: cellType, Class: ClassOf(cellType), Members: []domain.NeuronID{id}})
}

func (b *builder) edge(from, to string, weight float64) {
	k := [2]string{from, to}
	if i, ok := b.edgeIndex[k]; ok {
		b.edges[i].Weight = weight
		return
	}
	b.edgeIndex[k] = len(b.edges)
	b.edges = append(b.edges, Edge{From: from, To: to, Weight: weight})
}

func (b *builder) graph() Graph {
	return Graph{Nodes: b.nodes, Edges: b.edges}
}

// Neurons lists every neuron named by tables, owners first, without duplicates.
func Neurons(tables []domain.PartnerTable) []domain.NeuronID {
	seen := map[domain.NeuronID]struct{}{}
	var ids []domain.NeuronID
	add := func(id domain.NeuronID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, t := range tables {
		add(t.Neuron)
	}
	for _, t := range tables {
		for _, id := range t.Partners() {
			add(id)
		}
	}
	return ids
}
