package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neurotrace/connectome/internal/app"
	"github.com/neurotrace/connectome/internal/config"
	"github.com/neurotrace/connectome/internal/logging"
	"github.com/neurotrace/connectome/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	application, err := app.New(ctx, cfg, logger, registry)
	if err != nil {
		logger.Error("failed to initialise application", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(context.Background()); err != nil {
			logger.Warn("closing application failed", "error", err)
		}
	}()

	sources := map[string]server.Verifier{}
	for name, v := range application.Verifiers() {
		sources[name] = v
	}

	deps := server.APIDependencies{
		Partners:  application.Connectivity,
		Cascades:  application.Crawler,
		Results:   application.Results,
		Annotator: application.Annotator,
	}
	if application.Matcher != nil {
		deps.Matcher = application.Matcher
	}

	routerDeps := server.RouterDependencies{
		Health:           server.SourceHealthService{Sources: sources},
		API:              server.NewAPIHandlers(logger, deps),
		AllowedOrigins:   parseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
	}
	if cfg.HTTP.MetricsEnabled {
		routerDeps.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	router := server.NewRouter(logger, routerDeps)

	srv := server.New(logger, cfg.HTTP, router)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped unexpectedly", "error", err)
	}
}

func parseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var origins []string
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
