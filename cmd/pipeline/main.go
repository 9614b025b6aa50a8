// Command pipeline implements the sitecast weekly demand decomposition service.
//
// The pipeline fetches site weekly history, the holiday calendar, and the
// payroll calendar from a configured source, then for every site:
//  1. Sorts the history and assigns an ordinal time index
//  2. Fits a linear trend and removes it
//  3. One-hot encodes the calendar attributes (drop-first)
//  4. Fits the calendar effects on the detrended residual
//  5. Recombines trend and effects and scores the fit (R², MAE, MAPE)
//
// Effect coefficients are exported as long and wide CSV tables together with
// a per-site metrics table, the run result is stored as a snapshot, and an
// HTTP API serves the latest run:
//   - GET /run/latest - Latest run snapshot
//   - GET /run/metrics?site=<name> - Metrics for one site
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Usage:
//
//	pipeline \
//	  -source=csv \
//	  -zone-map='lyon=A,paris=C' \
//	  -eval-year=2024 \
//	  -output-dir=out \
//	  -once
//
// Environment variables:
//
//	SOURCE              - Input source: csv or http
//	SOURCE_*            - Source settings (SOURCE_HISTORY_PATH, SOURCE_ROWS_PATH, ...)
//	ZONE_MAP            - Site to zone map (site=zone,site=zone)
//	DEFAULT_ZONE        - Zone for unmapped sites (default: C)
//	DEFAULT_PAYROLL     - Payroll category for unmapped weeks (default: S_NORMALE)
//	DEFAULT_HOLIDAY     - Holiday category for unmapped weeks (default: AUCUN)
//	EVAL_YEAR           - Holdout evaluation period prefix (default: 2024)
//	OUTPUT_DIR          - CSV artifact directory (default: out)
//	UPLOAD_BASE_URL     - Artifact upload base URL (empty disables)
//	STORAGE             - Snapshot store: memory or redis (default: memory)
//	INTERVAL            - Re-run interval (default: 6h)
//	ONCE                - Run once and exit
//	WORKERS             - Maximum concurrent site fits (default: 8)
//	LOG_LEVEL           - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT          - Logging format: text, json (default: text)
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sitecast/sitecast/cmd/pipeline/config"
	"github.com/sitecast/sitecast/cmd/pipeline/logger"
	"github.com/sitecast/sitecast/cmd/pipeline/metrics"
	"github.com/sitecast/sitecast/cmd/pipeline/router"
	"github.com/sitecast/sitecast/pkg/dataset"
	"github.com/sitecast/sitecast/pkg/export"
	"github.com/sitecast/sitecast/pkg/httpx"
	"github.com/sitecast/sitecast/pkg/ingest"
	"github.com/sitecast/sitecast/pkg/storage"
	"github.com/sitecast/sitecast/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting sitecast pipeline",
		"version", version,
		"source", cfg.Source,
		"storage", cfg.Storage,
		"eval_year", cfg.EvalYear,
		"once", cfg.Once,
	)

	source, err := ingest.New(cfg.Source, cfg.SourceConfig)
	if err != nil {
		log.Error("failed to create source", "error", err)
		os.Exit(1)
	}

	builder := dataset.NewBuilder(cfg.ZoneMap, dataset.Defaults{
		Zone:        cfg.DefaultZone,
		PayrollType: cfg.DefaultPayroll,
		HolidayType: cfg.DefaultHoliday,
	}, log)

	store := newStore(cfg, log)
	if closer, ok := store.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}()
	}

	writer, err := export.NewCSVWriter(cfg.OutputDir, ';', true, log)
	if err != nil {
		log.Error("failed to create CSV writer", "error", err)
		os.Exit(1)
	}

	uploadClient, err := httpx.NewClient(tls.Config{}, 30*time.Second)
	if err != nil {
		log.Error("failed to create upload client", "error", err)
		os.Exit(1)
	}

	p := New(
		source,
		builder,
		store,
		writer,
		cfg.UploadBaseURL,
		uploadClient,
		cfg.EvalYear,
		cfg.Workers,
		log,
		metrics.New(cfg.Source),
	)

	if cfg.Once {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer cancel()

		if err := p.RunOnce(ctx); err != nil {
			log.Error("pipeline run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	staleAfter := 2 * cfg.Interval // Snapshot is stale if older than 2x the interval
	mux := router.SetupRoutes(store, staleAfter, log)
	httpServer := httpx.NewServer(cfg.Listen, mux, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := p.Run(ctx, cfg.Interval); err != nil && err != context.Canceled {
			log.Error("pipeline loop failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			serverErr <- httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErr <- httpServer.Start()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")
	cancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

// newStore creates the snapshot store selected by configuration. A Redis
// connection failure is fatal; the pipeline would otherwise silently lose
// every run result.
func newStore(cfg *config.Config, log *slog.Logger) storage.Store {
	if cfg.Storage == "redis" {
		store, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		log.Info("using redis store", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
		return store
	}

	log.Info("using memory store")
	return storage.NewMemoryStore()
}
