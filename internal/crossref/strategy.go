package crossref

import (
	"fmt"

	"github.com/neurotrace/connectome/internal/domain"
)

// Status classifies a match.
type Status int

const (
	StatusNone Status = iota
	StatusSingle
	StatusAmbiguous
)

func (s Status) String() string {
	switch s {
	case StatusSingle:
		return "single"
	case StatusAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// MarshalText renders the status as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Signals that can decide a match.
const (
	ViaAgreement    = "agreement"
	ViaSimilarity   = "similarity"
	ViaConnectivity = "connectivity"
	ViaSnapshot     = "snapshot"
)

// Match is the outcome of looking up one identifier.
type Match struct {
	Query      domain.NeuronID   `json:"query"`
	Status     Status            `json:"status"`
	Candidates []domain.NeuronID `json:"candidates,omitempty"`
	Via        string            `json:"via,omitempty"`
	Strategy   string            `json:"strategy"`
}

// Strategy decides a match from the two signals of a lookup row.
type Strategy interface {
	Name() string
	Decide(row Row) Match
}

// Strategy names accepted by StrategyByName.
const (
	NameStrict   = "strict"
	NameSnapshot = "snapshot"
)

// StrategyByName returns the named strategy. The snapshot strategy requires snap.
func StrategyByName(name string, snap *Snapshot) (Strategy, error) {
	switch name {
	case "", NameStrict:
		return StrictAgreement{}, nil
	case NameSnapshot:
		if snap == nil {
			return nil, fmt.Errorf("strategy %q needs a snapshot table", name)
		}
		return SnapshotFallback{Snapshot: snap}, nil
	default:
		return nil, fmt.Errorf("unknown match strategy %q", name)
	}
}

// StrictAgreement trusts the signals only. When both signals name the same counterpart, or
// only one signal names exactly one, the match is single. Disagreeing signals yield an
// ambiguous match listing every candidate.
type StrictAgreement struct{}

func (StrictAgreement) Name() string { return NameStrict }

func (StrictAgreement) Decide(row Row) Match {
	m := decideSignals(row)
	m.Strategy = NameStrict
	return m
}

// SnapshotFallback behaves like StrictAgreement when the signals agree. Otherwise it
// consults a historical snapshot: a snapshot counterpart that is one of the signal
// candidates, or the sole snapshot counterpart when no signal has any, decides the match.
// If the snapshot cannot decide, the strict outcome stands.
type SnapshotFallback struct {
	Snapshot *Snapshot
}

func (SnapshotFallback) Name() string { return NameSnapshot }

func (s SnapshotFallback) Decide(row Row) Match {
	strict := decideSignals(row)
	strict.Strategy = NameSnapshot
	if strict.Via == ViaAgreement {
		return strict
	}

	snap := s.Snapshot.Lookup(row.Source)
	if len(snap) == 0 {
		return strict
	}
	signals := appendUnique(append([]domain.NeuronID(nil), row.Similarity...), row.Connectivity...)
	if len(signals) == 0 {
		return classify(row.Source, snap, ViaSnapshot, NameSnapshot)
	}
	if common := intersect(snap, signals); len(common) == 1 {
		return Match{Query: row.Source, Status: StatusSingle, Candidates: common, Via: ViaSnapshot, Strategy: NameSnapshot}
	}
	return strict
}

func decideSignals(row Row) Match {
	sim, conn := row.Similarity, row.Connectivity
	switch {
	case len(sim) == 0 && len(conn) == 0:
		return Match{Query: row.Source, Status: StatusNone}
	case len(conn) == 0:
		return classify(row.Source, sim, ViaSimilarity, "")
	case len(sim) == 0:
		return classify(row.Source, conn, ViaConnectivity, "")
	}
	if common := intersect(sim, conn); len(common) == 1 {
		return Match{Query: row.Source, Status: StatusSingle, Candidates: common, Via: ViaAgreement}
	}
	all := appendUnique(append([]domain.NeuronID(nil), sim...), conn...)
	return Match{Query: row.Source, Status: StatusAmbiguous, Candidates: sortIDs(all)}
}

func classify(query domain.NeuronID, ids []domain.NeuronID, via, strategy string) Match {
	m := Match{Query: query, Candidates: sortIDs(ids), Strategy: strategy}
	switch len(ids) {
	case 0:
		m.Status = StatusNone
	case 1:
		m.Status = StatusSingle
		m.Via = via
	default:
		m.Status = StatusAmbiguous
	}
	return m
}

func intersect(a, b []domain.NeuronID) []domain.NeuronID {
	var out []domain.NeuronID
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = appendUnique(out, x)
			}
		}
	}
	return out
}
