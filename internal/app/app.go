// Package app assembles the configured sources, stores and services shared by the
// command-line tool and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/neurotrace/connectome/internal/annotation"
	"github.com/neurotrace/connectome/internal/cascade"
	"github.com/neurotrace/connectome/internal/cave"
	"github.com/neurotrace/connectome/internal/config"
	"github.com/neurotrace/connectome/internal/crossref"
	"github.com/neurotrace/connectome/internal/domain"
	"github.com/neurotrace/connectome/internal/generator"
	"github.com/neurotrace/connectome/internal/graph"
	"github.com/neurotrace/connectome/internal/memo"
	"github.com/neurotrace/connectome/internal/metrics"
	"github.com/neurotrace/connectome/internal/repository"
	"github.com/neurotrace/connectome/internal/service"
	"github.com/neurotrace/connectome/internal/store"
)

// App holds the wired components. Close releases every connection it opened.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	Graph        graph.Client
	CAVE         *cave.Client
	Source       service.ConnectivitySource
	Annotator    annotation.Fetcher
	Connectivity *service.ConnectivityService
	Results      store.Store
	Memos        memo.Factory
	Metrics      *metrics.Cascade
	Crawler      *cascade.Crawler
	Batch        *cascade.BatchRunner
	Matcher      *crossref.Matcher

	closers []func(context.Context) error
}

// New builds the application from cfg. reg may be nil to skip metric registration.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	steps := []func(context.Context) error{
		a.buildSource,
		a.buildResults,
		a.buildMemos,
		a.buildMatcher,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = a.Close(context.Background())
			return nil, err
		}
	}

	a.Connectivity = service.NewConnectivityService(a.Source, a.Annotator)
	a.Metrics = metrics.NewCascade(reg)
	a.Crawler = cascade.NewCrawler(a.Connectivity, a.Results,
		cascade.WithMemo(a.Memos),
		cascade.WithMetrics(a.Metrics),
		cascade.WithLogger(logger),
	)
	a.Batch = cascade.NewBatchRunner(a.Crawler, cfg.Cascade.Workers)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Request returns a cascade request for start using the configured thresholds and depth.
func (a *App) Request(start domain.NeuronID) cascade.Request {
	return cascade.Request{
		Start:               start,
		ConnectionThreshold: a.Config.Cascade.ConnectionThreshold,
		PercentageThreshold: a.Config.Cascade.PercentageThreshold,
		MaxLayers:           a.Config.Cascade.MaxLayers,
	}
}

// Verifier is implemented by clients of remote sources.
type Verifier interface {
	VerifyConnectivity(ctx context.Context) error
}

// Verifiers returns the remote sources checked by the readiness endpoint.
func (a *App) Verifiers() map[string]Verifier {
	out := map[string]Verifier{}
	if a.Graph != nil {
		out["neuprint"] = a.Graph
	}
	if a.CAVE != nil {
		out["cave"] = a.CAVE
	}
	return out
}

func (a *App) buildSource(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Cascade.Source {
	case "synthetic":
		ds, err := generator.ReadDataset(cfg.Cascade.SyntheticDir)
		if err != nil {
			return fmt.Errorf("load synthetic dataset: %w", err)
		}
		src := generator.NewMemorySource(ds)
		a.Source, a.Annotator = src, src
		a.Logger.Info("using synthetic connectome", "dir", cfg.Cascade.SyntheticDir, "neurons", len(ds.Neurons))
	case "cave":
		client, err := cave.NewClient(cave.Options{
			Server:       cfg.CAVE.Server,
			Datastack:    cfg.CAVE.Datastack,
			Token:        cfg.CAVE.Token,
			Timeout:      cfg.CAVE.Timeout,
			RequestsPerS: cfg.CAVE.RequestsPerSecond,
			Burst:        cfg.CAVE.Burst,
		})
		if err != nil {
			return fmt.Errorf("create cave client: %w", err)
		}
		a.CAVE = client
		src := cave.NewSource(client)
		if cfg.CAVE.YLimit > 0 {
			src = src.WithYLimit(cfg.CAVE.YLimit)
		}
		a.Source = src
		a.Logger.Info("using cave synapse tables", "server", cfg.CAVE.Server, "datastack", cfg.CAVE.Datastack, "y_limit", cfg.CAVE.YLimit)
	default:
		client, err := graph.New(ctx, graph.Options{
			URI:            cfg.Graph.URI,
			Database:       cfg.Graph.Database,
			Username:       cfg.Graph.Username,
			Password:       cfg.Graph.Password,
			MaxConnections: cfg.Graph.MaxConnections,
			Dataset:        cfg.Neuprint.Dataset,
			Token:          cfg.Neuprint.Token,
			Timeout:        cfg.Neuprint.Timeout,
			RequestsPerS:   cfg.Neuprint.RequestsPerSecond,
			Burst:          cfg.Neuprint.Burst,
		})
		if err != nil {
			return fmt.Errorf("create graph client: %w", err)
		}
		a.Graph = client
		a.closers = append(a.closers, client.Close)
		repo := repository.New(client)
		a.Source, a.Annotator = repo, repo
		a.Logger.Info("using neuprint", "uri", cfg.Graph.URI, "dataset", cfg.Neuprint.Dataset)
	}
	return nil
}

func (a *App) buildResults(context.Context) error {
	oc := a.Config.ObjectStore
	if !oc.Enabled() {
		a.Results = store.NewFileStore(a.Config.Cascade.ResultsDir)
		return nil
	}
	s, err := store.NewObjectStore(store.ObjectOptions{
		Endpoint:  oc.Endpoint,
		AccessKey: oc.AccessKey,
		SecretKey: oc.SecretKey,
		Bucket:    oc.Bucket,
		Prefix:    oc.Prefix,
		Region:    oc.Region,
		UseSSL:    oc.UseSSL,
	})
	if err != nil {
		return err
	}
	a.Results = s
	a.Logger.Info("writing results to object storage", "endpoint", oc.Endpoint, "bucket", oc.Bucket)
	return nil
}

func (a *App) buildMemos(ctx context.Context) error {
	switch a.Config.Memo.Backend {
	case "memory":
		a.Memos = memo.MemoryFactory()
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis %s: %w", a.Config.Redis.Addr, err)
		}
		a.Memos = memo.Seeded(a.Results, memo.RedisFactory(client, a.Config.Memo.TTL))
	case "badger":
		db, err := memo.OpenBadger(memo.BadgerOptions{
			Path:       a.Config.Badger.Path,
			InMemory:   a.Config.Badger.InMemory,
			SyncWrites: a.Config.Badger.SyncWrites,
			Logger:     a.Logger.With("component", "badger"),
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closeBadger(db))
		a.Memos = memo.Seeded(a.Results, memo.BadgerFactory(db))
	default:
		a.Memos = memo.DirectoryFactory(a.Results)
	}
	return nil
}

func closeBadger(db *badger.DB) func(context.Context) error {
	return func(context.Context) error { return db.Close() }
}

func (a *App) buildMatcher(context.Context) error {
	cc := a.Config.CrossRef
	if cc.TablePath == "" {
		return nil
	}
	table, err := crossref.LoadTableFile(cc.TablePath)
	if err != nil {
		return err
	}
	var snap *crossref.Snapshot
	if cc.SnapshotPath != "" {
		if snap, err = crossref.LoadSnapshotFile(cc.SnapshotPath); err != nil {
			return err
		}
	}
	strategy, err := crossref.StrategyByName(cc.Strategy, snap)
	if err != nil {
		return err
	}
	a.Matcher = crossref.NewMatcher(table, strategy, a.Logger)
	return nil
}
