// Package cave queries a CAVE deployment's info and materialization services for
// synapse-level connectivity of FANC root IDs.
package cave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"

	"github.com/neurotrace/connectome/internal/domain"
)

const (
	infoPathTemplate  = "/info/api/v2/datastack/full/%s"
	queryPathTemplate = "/materialize/api/v3/datastack/%s/query"
	defaultTimeout    = 2 * time.Minute

	ColumnPreRoot     = "pre_pt_root_id"
	ColumnPostRoot    = "post_pt_root_id"
	ColumnPrePosition = "pre_pt_position"
)

// ErrMissingDatastack is returned when the client is built without a datastack name.
var ErrMissingDatastack = errors.New("cave datastack is required")

// Options configures the CAVE client.
type Options struct {
	Server       string
	Datastack    string
	Token        string
	Timeout      time.Duration
	RequestsPerS float64
	Burst        int
}

// Client talks to the CAVE info and materialization services.
type Client struct {
	baseURL   string
	datastack string
	token     string
	http      *http.Client
	limiter   *rate.Limiter
	nowFn     func() time.Time

	mu           sync.Mutex
	synapseTable string
}

// NewClient builds a Client from options.
func NewClient(opts Options) (*Client, error) {
	if opts.Server == "" {
		return nil, errors.New("cave server URL is required")
	}
	if opts.Datastack == "" {
		return nil, ErrMissingDatastack
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if opts.RequestsPerS > 0 {
		limit = rate.Limit(opts.RequestsPerS)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.Server, "/"),
		datastack: opts.Datastack,
		token:     opts.Token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: gzhttp.Transport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, burst),
		nowFn:   time.Now,
	}, nil
}

// WithClock overrides the time provider used for live query timestamps.
func (c *Client) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		c.nowFn = nowFn
	}
}

type datastackInfo struct {
	SynapseTable string `json:"synapse_table"`
}

// SynapseTable returns the datastack's synapse table name, fetched once.
func (c *Client) SynapseTable(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.synapseTable != "" {
		return c.synapseTable, nil
	}

	var info datastackInfo
	path := fmt.Sprintf(infoPathTemplate, url.PathEscape(c.datastack))
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return "", fmt.Errorf("datastack info: %w", err)
	}
	if info.SynapseTable == "" {
		return "", fmt.Errorf("datastack %s has no synapse table", c.datastack)
	}
	c.synapseTable = info.SynapseTable
	return c.synapseTable, nil
}

type liveQueryRequest struct {
	Table           string                    `json:"table"`
	Timestamp       string                    `json:"timestamp"`
	FilterEqualDict map[string]map[string]any `json:"filter_equal_dict"`
}

type synapseRow struct {
	PreRoot     json.Number `json:"pre_pt_root_id"`
	PostRoot    json.Number `json:"post_pt_root_id"`
	PrePosition []float64   `json:"pre_pt_position"`
}

// LiveQuery returns the synapses matching an equality filter on the synapse table,
// evaluated at the current time.
func (c *Client) LiveQuery(ctx context.Context, filter map[string]any) ([]domain.Synapse, error) {
	table, err := c.SynapseTable(ctx)
	if err != nil {
		return nil, err
	}

	body := liveQueryRequest{
		Table:           table,
		Timestamp:       c.nowFn().UTC().Format(time.RFC3339Nano),
		FilterEqualDict: map[string]map[string]any{table: filter},
	}
	path := fmt.Sprintf(queryPathTemplate, url.PathEscape(c.datastack)) + "?return_pyarrow=false&split_positions=false"

	var rows []synapseRow
	if err := c.do(ctx, http.MethodPost, path, body, &rows); err != nil {
		return nil, fmt.Errorf("live query %s: %w", table, err)
	}

	synapses := make([]domain.Synapse, 0, len(rows))
	for _, row := range rows {
		pre, _ := row.PreRoot.Int64()
		post, _ := row.PostRoot.Int64()
		syn := domain.Synapse{Pre: domain.NeuronID(pre), Post: domain.NeuronID(post)}
		copy(syn.PrePosition[:], row.PrePosition)
		synapses = append(synapses, syn)
	}
	return synapses, nil
}

// VerifyConnectivity resolves the synapse table, which exercises auth and the info service.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	_, err := c.SynapseTable(ctx)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	return decoder.Decode(out)
}
