package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"
)

const (
	customCypherPath   = "/api/custom/custom"
	datasetsPath       = "/api/dbmeta/datasets"
	defaultHTTPTimeout = 60 * time.Second
)

// NewNeuprintHTTPClient returns a read-only Client that sends Cypher to a neuPrint
// server's custom query endpoint. The endpoint does not accept bound parameters, so
// parameters are rendered into the statement as literals.
func NewNeuprintHTTPClient(opts Options) (Client, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	limit := rate.Inf
	if opts.RequestsPerS > 0 {
		limit = rate.Limit(opts.RequestsPerS)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &neuprintHTTPClient{
		baseURL: strings.TrimRight(opts.URI, "/"),
		dataset: opts.Dataset,
		token:   opts.Token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: gzhttp.Transport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

type neuprintHTTPClient struct {
	baseURL string
	dataset string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

type customQueryRequest struct {
	Cypher  string `json:"cypher"`
	Dataset string `json:"dataset,omitempty"`
}

type customQueryResponse struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
	Error   string   `json:"error,omitempty"`
}

func (c *neuprintHTTPClient) ExecuteWrite(context.Context, string, map[string]any) (Result, error) {
	return Result{}, ErrReadOnly
}

func (c *neuprintHTTPClient) ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	statement, err := InlineParams(cypher, params)
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(customQueryRequest{Cypher: statement, Dataset: c.dataset})
	if err != nil {
		return Result{}, fmt.Errorf("encode neuprint query: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+customCypherPath, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("neuprint query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("neuprint query: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload customQueryResponse
	if err := decoder.Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode neuprint response: %w", err)
	}
	if payload.Error != "" {
		return Result{}, fmt.Errorf("neuprint query: %s", payload.Error)
	}

	records := make([]Record, 0, len(payload.Data))
	for _, row := range payload.Data {
		record := make(Record, len(payload.Columns))
		for i, col := range payload.Columns {
			if i < len(row) {
				record[col] = normalizeJSON(row[i])
			}
		}
		records = append(records, record)
	}
	return Result{Records: records}, nil
}

func (c *neuprintHTTPClient) VerifyConnectivity(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+datasetsPath, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("neuprint connectivity: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("neuprint connectivity: status %d", resp.StatusCode)
	}
	return nil
}

func (c *neuprintHTTPClient) Close(context.Context) error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *neuprintHTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

var paramPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// InlineParams renders $name placeholders as Cypher literals.
func InlineParams(cypher string, params map[string]any) (string, error) {
	var firstErr error
	out := paramPattern.ReplaceAllStringFunc(cypher, func(token string) string {
		name := token[1:]
		value, ok := params[name]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("missing cypher parameter %q", name)
			}
			return token
		}
		literal, err := cypherLiteral(value)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("parameter %q: %w", name, err)
		}
		return literal
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func cypherLiteral(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case string:
		escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
		return "'" + escaped + "'", nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case []int64:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case []string:
		parts := make([]string, len(v))
		for i, s := range v {
			parts[i], _ = cypherLiteral(s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			lit, err := cypherLiteral(item)
			if err != nil {
				return "", err
			}
			parts[i] = lit
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			lit, err := cypherLiteral(v[k])
			if err != nil {
				return "", err
			}
			parts = append(parts, "`"+k+"`: "+lit)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	default:
		return "", fmt.Errorf("unsupported literal type %T", value)
	}
}

func normalizeJSON(value any) any {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeJSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalizeJSON(item)
		}
		return out
	default:
		return v
	}
}
