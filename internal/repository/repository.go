package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/neurotrace/connectome/internal/domain"
	"github.com/neurotrace/connectome/internal/graph"
)

// Repository reads neuPrint connectivity through a graph client.
type Repository struct {
	client graph.Client
}

// New instantiates a Repository backed by the supplied graph client.
func New(client graph.Client) *Repository {
	return &Repository{client: client}
}

// FetchDownstream returns every partner receiving synapses from id, strongest first.
func (r *Repository) FetchDownstream(ctx context.Context, id domain.NeuronID) ([]domain.Connection, error) {
	return r.fetchPartners(ctx, downstreamCypher, id)
}

// FetchUpstream returns every partner providing synapses to id, strongest first.
func (r *Repository) FetchUpstream(ctx context.Context, id domain.NeuronID) ([]domain.Connection, error) {
	return r.fetchPartners(ctx, upstreamCypher, id)
}

func (r *Repository) fetchPartners(ctx context.Context, cypher string, id domain.NeuronID) ([]domain.Connection, error) {
	if !id.Valid() {
		return nil, domain.ErrInvalidNeuronID
	}

	res, err := r.client.ExecuteRead(ctx, cypher, map[string]any{"bodyId": int64(id)})
	if err != nil {
		return nil, fmt.Errorf("fetch partners of %d: %w", id, err)
	}

	conns := make([]domain.Connection, 0, len(res.Records))
	for _, record := range res.Records {
		partner := domain.NeuronID(toInt64(record["partnerId"]))
		if !partner.Valid() {
			continue
		}
		conns = append(conns, domain.Connection{
			Partner: partner,
			Weight:  toInt64(record["weight"]),
			Type:    annotation(record["type"]),
		})
	}
	return conns, nil
}

// FetchTotalInputs returns the number of postsynaptic sites recorded for each neuron.
// Neurons unknown to the dataset are absent from the map.
func (r *Repository) FetchTotalInputs(ctx context.Context, ids []domain.NeuronID) (map[domain.NeuronID]int64, error) {
	totals := make(map[domain.NeuronID]int64, len(ids))
	if len(ids) == 0 {
		return totals, nil
	}

	res, err := r.client.ExecuteRead(ctx, totalInputsCypher, map[string]any{"bodyIds": idParams(ids)})
	if err != nil {
		return nil, fmt.Errorf("fetch total inputs: %w", err)
	}
	for _, record := range res.Records {
		id := domain.NeuronID(toInt64(record["bodyId"]))
		if !id.Valid() {
			continue
		}
		totals[id] = toInt64(record["totalInputs"])
	}
	return totals, nil
}

// FetchNeurons returns annotations for the requested neurons in request order.
// Missing neurons are reported with Unknown annotations.
func (r *Repository) FetchNeurons(ctx context.Context, ids []domain.NeuronID) ([]domain.NeuronInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	res, err := r.client.ExecuteRead(ctx, neuronsCypher, map[string]any{"bodyIds": idParams(ids)})
	if err != nil {
		return nil, fmt.Errorf("fetch neurons: %w", err)
	}

	found := make(map[domain.NeuronID]domain.NeuronInfo, len(res.Records))
	for _, record := range res.Records {
		id := domain.NeuronID(toInt64(record["bodyId"]))
		found[id] = domain.NeuronInfo{
			ID:               id,
			Type:             annotation(record["type"]),
			Side:             annotation(record["side"]),
			Neurotransmitter: annotation(record["neurotransmitter"]),
		}
	}

	infos := make([]domain.NeuronInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := found[id]; ok {
			infos = append(infos, info)
			continue
		}
		infos = append(infos, domain.UnknownNeuron(id))
	}
	return infos, nil
}

// UpsertNeurons writes neuron nodes in the neuPrint schema.
func (r *Repository) UpsertNeurons(ctx context.Context, neurons []NeuronRecord) error {
	if len(neurons) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(neurons))
	for _, n := range neurons {
		if !n.Info.ID.Valid() {
			return errors.New("neuron body id is required")
		}
		rows = append(rows, map[string]any{
			"bodyId":      int64(n.Info.ID),
			"type":        n.Info.Type,
			"side":        n.Info.Side,
			"predictedNt": n.Info.Neurotransmitter,
			"post":        n.TotalInputs,
		})
	}
	if _, err := r.client.ExecuteWrite(ctx, upsertNeuronsCypher, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("upsert %d neurons: %w", len(rows), err)
	}
	return nil
}

// UpsertConnections writes weighted ConnectsTo relationships.
func (r *Repository) UpsertConnections(ctx context.Context, edges []EdgeRecord) error {
	if len(edges) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if !e.Pre.Valid() || !e.Post.Valid() {
			return errors.New("both pre and post body ids are required")
		}
		rows = append(rows, map[string]any{
			"pre":    int64(e.Pre),
			"post":   int64(e.Post),
			"weight": e.Weight,
		})
	}
	if _, err := r.client.ExecuteWrite(ctx, upsertConnectionsCypher, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("upsert %d connections: %w", len(rows), err)
	}
	return nil
}

// NeuronRecord is a neuron node to be written.
type NeuronRecord struct {
	Info        domain.NeuronInfo
	TotalInputs int64
}

// EdgeRecord is a weighted pre→post connection to be written.
type EdgeRecord struct {
	Pre    domain.NeuronID
	Post   domain.NeuronID
	Weight int64
}

func idParams(ids []domain.NeuronID) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}

func annotation(val any) string {
	s := strings.TrimSpace(toString(val))
	if s == "" {
		return domain.Unknown
	}
	return s
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func toInt64(val any) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		if math.IsNaN(v) {
			return 0
		}
		return int64(v)
	default:
		return 0
	}
}

const downstreamCypher = `
MATCH (a:Neuron {bodyId: $bodyId})-[c:ConnectsTo]->(b:Neuron)
RETURN b.bodyId AS partnerId, c.weight AS weight, b.type AS type
ORDER BY weight DESC, partnerId ASC
`

const upstreamCypher = `
MATCH (a:Neuron)-[c:ConnectsTo]->(b:Neuron {bodyId: $bodyId})
RETURN a.bodyId AS partnerId, c.weight AS weight, a.type AS type
ORDER BY weight DESC, partnerId ASC
`

const totalInputsCypher = `
MATCH (n:Neuron)
WHERE n.bodyId IN $bodyIds
RETURN n.bodyId AS bodyId, n.post AS totalInputs
`

const neuronsCypher = `
MATCH (n:Neuron)
WHERE n.bodyId IN $bodyIds
RETURN n.bodyId AS bodyId, n.type AS type, n.somaSide AS side, n.predictedNt AS neurotransmitter
`

const upsertNeuronsCypher = `
UNWIND $rows AS row
MERGE (n:Neuron {bodyId: row.bodyId})
SET n.type = row.type,
    n.somaSide = row.side,
    n.predictedNt = row.predictedNt,
    n.post = row.post
`

const upsertConnectionsCypher = `
UNWIND $rows AS row
MATCH (a:Neuron {bodyId: row.pre})
MATCH (b:Neuron {bodyId: row.post})
MERGE (a)-[c:ConnectsTo]->(b)
SET c.weight = row.weight
`
