package graph

import (
	"context"
	"errors"
	"time"
)

// Client is the Cypher contract shared by the Bolt driver and the neuPrint HTTP endpoint.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Result is a simplified representation of a query response.
type Result struct {
	Records []Record
}

// Record groups column-value pairs returned from the graph engine.
type Record map[string]any

// Options configures a graph client implementation.
type Options struct {
	// URI is a bolt:// or neo4j:// address for a local neuPrint store, or an
	// https:// neuPrint server for the HTTP client.
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int

	// Dataset and Token are used by the neuPrint HTTP client only.
	Dataset      string
	Token        string
	Timeout      time.Duration
	RequestsPerS float64
	Burst        int
}

var (
	// ErrMissingURI indicates the graph URI is not provided.
	ErrMissingURI = errors.New("graph URI is required")
	// ErrReadOnly is returned by clients that cannot mutate the remote store.
	ErrReadOnly = errors.New("graph client is read-only")
)
