package network

import (
	"fmt"

	"github.com/neurotrace/connectome/internal/domain"
)

// Combine folds the weights of parallel edges into one.
type Combine func(weights []float64) float64

// CombineSum adds parallel edge weights.
func CombineSum(weights []float64) float64 {
	var total float64
	for _, w := range weights {
		total += w
	}
	return total
}

// CombineMean averages parallel edge weights.
func CombineMean(weights []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	return CombineSum(weights) / float64(len(weights))
}

// CombineByName returns "sum" or "mean".
func CombineByName(name string) (Combine, error) {
	switch name {
	case "sum", "":
		return CombineSum, nil
	case "mean", "avg", "average":
		return CombineMean, nil
	default:
		return nil, fmt.Errorf("unknown combine rule %q", name)
	}
}

// KeyFunc assigns a node to its group.
type KeyFunc func(Node) string

// ByType groups typed nodes by cell type and leaves untyped nodes on their own.
func ByType(n Node) string {
	if n.Class == ClassUntyped {
		return n.Key
	}
	return n.Type
}

// Contract groups nodes by key and folds the edges between groups with combine. Edges
// inside a group become self loops. g is not modified.
func Contract(g Graph, key KeyFunc, combine Combine) Graph {
	groupOf := make(map[string]string, len(g.Nodes))
	var (
		nodes     []Node
		nodeIndex = map[string]int{}
	)
	for _, n := range g.Nodes {
		k := key(n)
		groupOf[n.Key] = k
		i, ok := nodeIndex[k]
		if !ok {
			nodeIndex[k] = len(nodes)
			nodes = append(nodes, Node{Key: k, Type: n.Type, Class: n.Class})
			i = len(nodes) - 1
		}
		if nodes[i].Type != n.Type {
			nodes[i].Type = domain.Unknown
			nodes[i].Class = ClassUntyped
		}
		nodes[i].Members = append(nodes[i].Members, n.Members...)
	}

	var (
		order   [][2]string
		weights = map[[2]string][]float64{}
	)
	for _, e := range g.Edges {
		from, okFrom := groupOf[e.From]
		to, okTo := groupOf[e.To]
		if !okFrom || !okTo {
			continue
		}
		k := [2]string{from, to}
		if _, ok := weights[k]; !ok {
			order = append(order, k)
		}
		weights[k] = append(weights[k], e.Weight)
	}
	edges := make([]Edge, 0, len(order))
	for _, k := range order {
		edges = append(edges, Edge{From: k[0], To: k[1], Weight: combine(weights[k])})
	}
	return Graph{Nodes: nodes, Edges: edges}
}
