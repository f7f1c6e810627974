package domain

// Direction selects which side of a neuron's synapses to query.
type Direction string

const (
	Downstream Direction = "downstream"
	Upstream   Direction = "upstream"
)

// Connection associates a partner with its synapse count and, once computed, the share
// of the partner's total input that the count represents.
type Connection struct {
	Partner NeuronID
	Weight  int64
	Percent float64
	Type    string
}

// PartnerTable is the ranked partner list of a single neuron.
type PartnerTable struct {
	Neuron    NeuronID
	Direction Direction
	Rows      []Connection
}

// Partners returns the partner identifiers in table order.
func (t PartnerTable) Partners() []NeuronID {
	ids := make([]NeuronID, 0, len(t.Rows))
	for _, row := range t.Rows {
		ids = append(ids, row.Partner)
	}
	return ids
}

// Empty reports whether no partner survived.
func (t PartnerTable) Empty() bool {
	return len(t.Rows) == 0
}

// Synapse is a single synaptic site from a synapse table.
type Synapse struct {
	Pre         NeuronID
	Post        NeuronID
	PrePosition [3]float64
}

// ConnectivitySummary groups both directions for one neuron.
type ConnectivitySummary struct {
	Neuron     NeuronID
	Upstream   PartnerTable
	Downstream PartnerTable
}
