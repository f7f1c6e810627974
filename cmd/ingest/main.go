package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/neurotrace/connectome/internal/config"
	"github.com/neurotrace/connectome/internal/generator"
	"github.com/neurotrace/connectome/internal/graph"
	"github.com/neurotrace/connectome/internal/logging"
	"github.com/neurotrace/connectome/internal/repository"
	"github.com/neurotrace/connectome/internal/service"
)

var (
	errMissingDataset = errors.New("dataset not found")
)

func main() {
	var (
		datasetDir = flag.String("dataset-dir", "./seed-data", "Directory containing neurons.json and connections.json")
		workers    = flag.Int("workers", 4, "Number of concurrent workers for ingestion")
		batchSize  = flag.Int("batch-size", 500, "Rows per UNWIND statement")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging).With("component", "ingest")

	if err := checkDataset(*datasetDir); err != nil {
		logger.Error("dataset resolution failed", "error", err)
		os.Exit(1)
	}
	dataset, err := generator.ReadDataset(*datasetDir)
	if err != nil {
		logger.Error("failed to load dataset", "error", err, "dir", *datasetDir)
		os.Exit(1)
	}
	if len(dataset.Neurons) == 0 {
		logger.Error("neuron dataset empty", "dir", *datasetDir)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	graphClient, err := buildGraphClient(ctx, logger, cfg)
	if err != nil {
		logger.Error("failed to create graph client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := graphClient.Close(context.Background()); err != nil {
			logger.Warn("closing graph client failed", "error", err)
		}
	}()

	repo := repository.New(graphClient)
	ingestor := service.NewBulkIngestor(repo, *workers, *batchSize)

	start := time.Now()
	logger.Info("ingesting neurons", "count", len(dataset.Neurons), "workers", *workers)
	if err := ingestor.IngestNeurons(ctx, dataset.NeuronRecords()); err != nil {
		logger.Error("neuron ingestion failed", "error", err)
		os.Exit(1)
	}

	logger.Info("ingesting connections", "count", len(dataset.Connections))
	if err := ingestor.IngestConnections(ctx, dataset.EdgeRecords()); err != nil {
		logger.Error("connection ingestion failed", "error", err)
		os.Exit(1)
	}

	logger.Info("ingestion complete", "duration", time.Since(start).String(), "neurons", len(dataset.Neurons), "connections", len(dataset.Connections))
}

func checkDataset(dir string) error {
	for _, name := range []string{"neurons.json", "connections.json"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", errMissingDataset, path)
		}
	}
	return nil
}

func buildGraphClient(ctx context.Context, logger *slog.Logger, cfg config.Config) (graph.Client, error) {
	opts := graph.Options{
		URI:            cfg.Graph.URI,
		Database:       cfg.Graph.Database,
		Username:       cfg.Graph.Username,
		Password:       cfg.Graph.Password,
		MaxConnections: cfg.Graph.MaxConnections,
	}
	client, err := graph.NewNeo4jClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	logger.Info("connected to graph", "uri", cfg.Graph.URI, "database", cfg.Graph.Database)
	return client, nil
}
