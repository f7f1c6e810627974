// Package crossref maps neuron identifiers between the CAVE (FANC) and neuPrint (MANC)
// identifier spaces using a lookup table of two independent match signals.
package crossref

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/neurotrace/connectome/internal/domain"
)

// Row holds the candidate counterparts of one neuron from each match signal.
type Row struct {
	Source       domain.NeuronID
	Similarity   []domain.NeuronID
	Connectivity []domain.NeuronID
}

// Table is a bidirectional lookup: each forward row is also indexed from its targets.
type Table struct {
	rows map[domain.NeuronID]*Row
}

// NewTable builds a table from forward rows.
func NewTable(rows []Row) *Table {
	t := &Table{rows: make(map[domain.NeuronID]*Row)}
	for _, r := range rows {
		if !r.Source.Valid() {
			continue
		}
		fwd := t.row(r.Source)
		fwd.Similarity = appendUnique(fwd.Similarity, r.Similarity...)
		fwd.Connectivity = appendUnique(fwd.Connectivity, r.Connectivity...)
		for _, id := range r.Similarity {
			inv := t.row(id)
			inv.Similarity = appendUnique(inv.Similarity, r.Source)
		}
		for _, id := range r.Connectivity {
			inv := t.row(id)
			inv.Connectivity = appendUnique(inv.Connectivity, r.Source)
		}
	}
	return t
}

func (t *Table) row(id domain.NeuronID) *Row {
	r, ok := t.rows[id]
	if !ok {
		r = &Row{Source: id}
		t.rows[id] = r
	}
	return r
}

// Lookup returns the row for id.
func (t *Table) Lookup(id domain.NeuronID) (Row, bool) {
	if t == nil {
		return Row{Source: id}, false
	}
	r, ok := t.rows[id]
	if !ok {
		return Row{Source: id}, false
	}
	return *r, true
}

// Len returns the number of indexed identifiers in both directions.
func (t *Table) Len() int {
	return len(t.rows)
}

// LoadTable reads a CSV with a header. The first column is the source identifier; the
// columns whose names contain "similar" and "connect" hold the counterparts found by each
// signal. Blank and placeholder cells mean no match.
func LoadTable(r io.Reader) (*Table, error) {
	records, head, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	simCol, connCol := -1, -1
	for i, name := range head {
		name = strings.ToLower(name)
		switch {
		case strings.Contains(name, "similar"):
			simCol = i
		case strings.Contains(name, "connect"):
			connCol = i
		}
	}
	if simCol < 0 && connCol < 0 {
		return nil, fmt.Errorf("lookup table header %v: no similarity or connectivity column", head)
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		src, err := domain.ParseNeuronID(cell(rec, 0))
		if err != nil {
			continue
		}
		rows = append(rows, Row{
			Source:       src,
			Similarity:   parseCell(cell(rec, simCol)),
			Connectivity: parseCell(cell(rec, connCol)),
		})
	}
	return NewTable(rows), nil
}

// LoadTableFile opens path and calls LoadTable.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lookup table: %w", err)
	}
	defer f.Close()
	t, err := LoadTable(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// Snapshot is a historical identifier mapping, indexed in both directions.
type Snapshot struct {
	pairs map[domain.NeuronID][]domain.NeuronID
}

// NewSnapshot indexes pairs of (a, b) identifiers.
func NewSnapshot(pairs [][2]domain.NeuronID) *Snapshot {
	s := &Snapshot{pairs: make(map[domain.NeuronID][]domain.NeuronID)}
	for _, p := range pairs {
		if !p[0].Valid() || !p[1].Valid() {
			continue
		}
		s.pairs[p[0]] = appendUnique(s.pairs[p[0]], p[1])
		s.pairs[p[1]] = appendUnique(s.pairs[p[1]], p[0])
	}
	return s
}

// Lookup returns the recorded counterparts of id.
func (s *Snapshot) Lookup(id domain.NeuronID) []domain.NeuronID {
	if s == nil {
		return nil
	}
	return s.pairs[id]
}

// LoadSnapshot reads a two-column CSV with a header.
func LoadSnapshot(r io.Reader) (*Snapshot, error) {
	records, _, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	pairs := make([][2]domain.NeuronID, 0, len(records))
	for _, rec := range records {
		a, errA := domain.ParseNeuronID(cell(rec, 0))
		b, errB := domain.ParseNeuronID(cell(rec, 1))
		if errA != nil || errB != nil {
			continue
		}
		pairs = append(pairs, [2]domain.NeuronID{a, b})
	}
	return NewSnapshot(pairs), nil
}

// LoadSnapshotFile opens path and calls LoadSnapshot.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	s, err := LoadSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

func readCSV(r io.Reader) ([][]string, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("empty table")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	return records, head, nil
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseCell accepts a single identifier or several separated by ';' or '|'.
func parseCell(s string) []domain.NeuronID {
	var ids []domain.NeuronID
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' }) {
		if id, err := domain.ParseNeuronID(strings.TrimSpace(f)); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func appendUnique(dst []domain.NeuronID, ids ...domain.NeuronID) []domain.NeuronID {
	for _, id := range ids {
		if !id.Valid() {
			continue
		}
		dup := false
		for _, have := range dst {
			if have == id {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, id)
		}
	}
	return dst
}

func sortIDs(ids []domain.NeuronID) []domain.NeuronID {
	out := append([]domain.NeuronID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
