package crossref

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/neurotrace/connectome/internal/domain"
)

var (
	// ErrNotFound is returned by Resolve when no counterpart is known.
	ErrNotFound = errors.New("no matching neuron")
	// ErrAmbiguous is returned by Resolve when the signals name several counterparts.
	ErrAmbiguous = errors.New("ambiguous neuron match")
)

// Matcher looks identifiers up in a Table and lets a Strategy decide.
type Matcher struct {
	table    *Table
	strategy Strategy
	logger   *slog.Logger
}

// NewMatcher returns a Matcher. A nil strategy means StrictAgreement.
func NewMatcher(table *Table, strategy Strategy, logger *slog.Logger) *Matcher {
	if strategy == nil {
		strategy = StrictAgreement{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{table: table, strategy: strategy, logger: logger.With("component", "crossref")}
}

// Strategy returns the name of the active strategy.
func (m *Matcher) Strategy() string {
	return m.strategy.Name()
}

// Match looks up id in either direction. Invalid identifiers yield StatusNone without a
// lookup. Ambiguous matches are logged as warnings and returned for the caller to resolve.
func (m *Matcher) Match(id domain.NeuronID) Match {
	if !id.Valid() {
		return Match{Query: id, Status: StatusNone, Strategy: m.strategy.Name()}
	}
	row, _ := m.table.Lookup(id)
	match := m.strategy.Decide(row)
	if match.Status == StatusAmbiguous {
		m.logger.Warn("ambiguous match; resolve manually",
			"neuron", id,
			"space", domain.SpaceOf(id),
			"candidates", match.Candidates,
			"strategy", match.Strategy,
		)
	}
	return match
}

// Resolve returns the single counterpart of id, or ErrNotFound / ErrAmbiguous.
func (m *Matcher) Resolve(id domain.NeuronID) (domain.NeuronID, error) {
	match := m.Match(id)
	switch match.Status {
	case StatusSingle:
		return match.Candidates[0], nil
	case StatusAmbiguous:
		return 0, fmt.Errorf("neuron %d: %w %v", id, ErrAmbiguous, match.Candidates)
	default:
		return 0, fmt.Errorf("neuron %d: %w", id, ErrNotFound)
	}
}
