package cave

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurotrace/connectome/internal/domain"
)

func newTestServer(t *testing.T, infoCalls *int32, rows string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/info/"):
			atomic.AddInt32(infoCalls, 1)
			_, _ = w.Write([]byte(`{"synapse_table":"synapses_jan2021"}`))
		case strings.HasPrefix(r.URL.Path, "/materialize/"):
			var body liveQueryRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "synapses_jan2021", body.Table)
			assert.Equal(t, "2024-04-20T12:00:00Z", body.Timestamp)
			assert.Contains(t, body.FilterEqualDict, "synapses_jan2021")
			_, _ = w.Write([]byte(rows))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestClient_LiveQuery(t *testing.T) {
	var infoCalls int32
	srv := newTestServer(t, &infoCalls, `[
		{"pre_pt_root_id": 648518346486614449, "post_pt_root_id": 648518346499999999, "pre_pt_position": [1, 2, 3]},
		{"pre_pt_root_id": 648518346486614449, "post_pt_root_id": 0, "pre_pt_position": [4, 5, 6]}
	]`)
	defer srv.Close()

	client, err := NewClient(Options{Server: srv.URL, Datastack: "fanc_production_mar2021"})
	require.NoError(t, err)
	client.WithClock(func() time.Time { return time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC) })

	for i := 0; i < 2; i++ {
		synapses, err := client.LiveQuery(context.Background(), map[string]any{ColumnPreRoot: int64(648518346486614449)})
		require.NoError(t, err)
		require.Len(t, synapses, 2)
		assert.Equal(t, domain.NeuronID(648518346499999999), synapses[0].Post)
		assert.Equal(t, [3]float64{1, 2, 3}, synapses[0].PrePosition)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&infoCalls), "synapse table is resolved once")
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{Server: "http://x"})
	assert.ErrorIs(t, err, ErrMissingDatastack)
	_, err = NewClient(Options{Datastack: "d"})
	assert.Error(t, err)
}

type stubQuerier struct {
	byFilter map[int64][]domain.Synapse
	filters  []map[string]any
}

func (s *stubQuerier) LiveQuery(_ context.Context, filter map[string]any) ([]domain.Synapse, error) {
	s.filters = append(s.filters, filter)
	for _, v := range filter {
		return s.byFilter[v.(int64)], nil
	}
	return nil, nil
}

func TestSource_FetchDownstreamCountsAndFilters(t *testing.T) {
	q := &stubQuerier{byFilter: map[int64][]domain.Synapse{
		1: {
			{Pre: 1, Post: 2, PrePosition: [3]float64{0, 10, 0}},
			{Pre: 1, Post: 2, PrePosition: [3]float64{0, 20, 0}},
			{Pre: 1, Post: 3, PrePosition: [3]float64{0, 500, 0}},
			{Pre: 1, Post: 0, PrePosition: [3]float64{0, 5, 0}},
		},
	}}

	conns, err := NewSource(q).FetchDownstream(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, domain.Connection{Partner: 2, Weight: 2, Type: domain.Unknown}, conns[0])
	assert.Equal(t, domain.NeuronID(3), conns[1].Partner)
	assert.Equal(t, int64(1), q.filters[0][ColumnPreRoot])

	limited, err := NewSource(q).WithYLimit(100).FetchDownstream(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, domain.NeuronID(2), limited[0].Partner)
}

func TestSource_FetchTotalInputs(t *testing.T) {
	q := &stubQuerier{byFilter: map[int64][]domain.Synapse{
		2: {{Pre: 1, Post: 2}, {Pre: 9, Post: 2}},
	}}
	totals, err := NewSource(q).FetchTotalInputs(context.Background(), []domain.NeuronID{2, 3, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals[2])
	assert.Equal(t, int64(0), totals[3])
	assert.Len(t, q.filters, 2, "duplicate ids are queried once")
}

func TestCountPartnersTieOrder(t *testing.T) {
	conns := CountPartners([]domain.Synapse{{Post: 7}, {Post: 5}, {Post: 9}, {Post: 9}}, func(s domain.Synapse) domain.NeuronID { return s.Post })
	require.Len(t, conns, 3)
	assert.Equal(t, []domain.NeuronID{9, 5, 7}, []domain.NeuronID{conns[0].Partner, conns[1].Partner, conns[2].Partner})
}
