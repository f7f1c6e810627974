package crossref

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurotrace/connectome/internal/domain"
)

const lookupCSV = `fanc_id,manc_similarity,manc_connectivity
648518346486614449,10045,10045
648518346486614450,10046,10099
648518346486614451,,10200
648518346486614452,NotAssigned,
`

const snapshotCSV = `fanc_id,manc_id
648518346486614450,10099
648518346486614452,10300
`

func loadFixtures(t *testing.T) (*Table, *Snapshot) {
	t.Helper()
	table, err := LoadTable(strings.NewReader(lookupCSV))
	require.NoError(t, err)
	snap, err := LoadSnapshot(strings.NewReader(snapshotCSV))
	require.NoError(t, err)
	return table, snap
}

func TestStrictAgreement(t *testing.T) {
	table, _ := loadFixtures(t)
	m := NewMatcher(table, StrictAgreement{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	tests := []struct {
		name   string
		id     domain.NeuronID
		status Status
		cands  []domain.NeuronID
		via    string
	}{
		{name: "agree", id: 648518346486614449, status: StatusSingle, cands: []domain.NeuronID{10045}, via: ViaAgreement},
		{name: "disagree", id: 648518346486614450, status: StatusAmbiguous, cands: []domain.NeuronID{10046, 10099}},
		{name: "connectivity only", id: 648518346486614451, status: StatusSingle, cands: []domain.NeuronID{10200}, via: ViaConnectivity},
		{name: "placeholder", id: 648518346486614452, status: StatusNone},
		{name: "absent", id: 648518346486699999, status: StatusNone},
		{name: "invalid", id: 0, status: StatusNone},
		{name: "inverse agree", id: 10045, status: StatusSingle, cands: []domain.NeuronID{648518346486614449}, via: ViaAgreement},
		{name: "inverse similarity", id: 10046, status: StatusSingle, cands: []domain.NeuronID{648518346486614450}, via: ViaSimilarity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.id)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.cands, got.Candidates)
			assert.Equal(t, tt.via, got.Via)
			assert.Equal(t, NameStrict, got.Strategy)
		})
	}
}

func TestSnapshotFallback(t *testing.T) {
	table, snap := loadFixtures(t)
	strategy, err := StrategyByName(NameSnapshot, snap)
	require.NoError(t, err)
	m := NewMatcher(table, strategy, nil)

	got := m.Match(648518346486614450)
	assert.Equal(t, StatusSingle, got.Status)
	assert.Equal(t, []domain.NeuronID{10099}, got.Candidates)
	assert.Equal(t, ViaSnapshot, got.Via)

	got = m.Match(648518346486614452)
	assert.Equal(t, StatusSingle, got.Status)
	assert.Equal(t, []domain.NeuronID{10300}, got.Candidates)

	// inverse direction of the snapshot
	got = m.Match(10300)
	assert.Equal(t, []domain.NeuronID{648518346486614452}, got.Candidates)

	got = m.Match(648518346486614449)
	assert.Equal(t, ViaAgreement, got.Via)

	got = m.Match(648518346486614451)
	assert.Equal(t, ViaConnectivity, got.Via)
}

func TestSnapshotCannotDecideKeepsAmbiguity(t *testing.T) {
	table := NewTable([]Row{{Source: 1, Similarity: []domain.NeuronID{2}, Connectivity: []domain.NeuronID{3}}})
	snap := NewSnapshot([][2]domain.NeuronID{{1, 4}})
	got := NewMatcher(table, SnapshotFallback{Snapshot: snap}, nil).Match(1)
	assert.Equal(t, StatusAmbiguous, got.Status)
	assert.Equal(t, []domain.NeuronID{2, 3}, got.Candidates)
}

func TestAmbiguousMatchLogsWarning(t *testing.T) {
	table, _ := loadFixtures(t)
	var buf bytes.Buffer
	m := NewMatcher(table, nil, slog.New(slog.NewTextHandler(&buf, nil)))

	m.Match(648518346486614450)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "ambiguous match")
}

func TestResolve(t *testing.T) {
	table, _ := loadFixtures(t)
	m := NewMatcher(table, nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	id, err := m.Resolve(648518346486614449)
	require.NoError(t, err)
	assert.Equal(t, domain.NeuronID(10045), id)

	_, err = m.Resolve(648518346486614450)
	assert.ErrorIs(t, err, ErrAmbiguous)

	_, err = m.Resolve(648518346486614452)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStrategyByName(t *testing.T) {
	s, err := StrategyByName("", nil)
	require.NoError(t, err)
	assert.Equal(t, NameStrict, s.Name())

	_, err = StrategyByName(NameSnapshot, nil)
	assert.Error(t, err)

	_, err = StrategyByName("vote", nil)
	assert.Error(t, err)
}

func TestLoadTableRejectsUnknownHeader(t *testing.T) {
	_, err := LoadTable(strings.NewReader("a,b\n1,2\n"))
	assert.Error(t, err)

	_, err = LoadTable(strings.NewReader(""))
	assert.Error(t, err)
}

func TestLoadTableMultipleCandidates(t *testing.T) {
	table, err := LoadTable(strings.NewReader("source,similarity,connectivity\n5,7;8,8\n"))
	require.NoError(t, err)
	got := NewMatcher(table, nil, nil).Match(5)
	assert.Equal(t, StatusSingle, got.Status)
	assert.Equal(t, []domain.NeuronID{8}, got.Candidates)
	assert.Equal(t, 3, table.Len())
}
