// Package store persists per-neuron partner tables, one delimited file per neuron,
// grouped under a run directory named after the cascade's start neuron and threshold.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/neurotrace/connectome/internal/domain"
)

// FileSuffix is appended to the neuron identifier to form a result file name.
const FileSuffix = "_downstreampartners.csv"

var (
	// ErrNotFound is returned when a neuron has no stored result.
	ErrNotFound = errors.New("result not found")
	// ErrInvalidRun is returned for run keys that RunKey cannot produce.
	ErrInvalidRun = errors.New("invalid run key")
)

var runKeyPattern = regexp.MustCompile(`^[0-9]+-[0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// Store persists ranked partner tables.
type Store interface {
	// List returns the neurons that already have a result under run.
	List(ctx context.Context, run string) ([]domain.NeuronID, error)
	Write(ctx context.Context, run string, table domain.PartnerTable) error
	Read(ctx context.Context, run string, id domain.NeuronID) (domain.PartnerTable, error)
}

// RunKey names the directory of a cascade: "{start}-{percentageThreshold}".
func RunKey(start domain.NeuronID, percentageThreshold float64) string {
	return fmt.Sprintf("%d-%s", start, FormatThreshold(percentageThreshold))
}

// CheckRun rejects keys that are not of the form "{start}-{threshold}". Keys never
// contain path separators, so a run cannot address anything outside the store root.
func CheckRun(run string) error {
	if !runKeyPattern.MatchString(run) {
		return fmt.Errorf("%w: %q", ErrInvalidRun, run)
	}
	return nil
}

// FormatThreshold renders a float with at least one decimal place ("1.0", "0.5").
func FormatThreshold(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// FileName returns the result file name for id.
func FileName(id domain.NeuronID) string {
	return id.String() + FileSuffix
}

// ParseFileName extracts the neuron identifier from a result file name.
func ParseFileName(name string) (domain.NeuronID, bool) {
	if !strings.HasSuffix(name, FileSuffix) {
		return 0, false
	}
	id, err := domain.ParseNeuronID(strings.TrimSuffix(name, FileSuffix))
	if err != nil {
		return 0, false
	}
	return id, true
}

// ReadAll loads every table under run, in List order.
func ReadAll(ctx context.Context, s Store, run string) ([]domain.PartnerTable, error) {
	ids, err := s.List(ctx, run)
	if err != nil {
		return nil, err
	}
	tables := make([]domain.PartnerTable, 0, len(ids))
	for _, id := range ids {
		table, err := s.Read(ctx, run, id)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}
