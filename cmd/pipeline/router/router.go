// Package router configures HTTP routes for the pipeline's HTTP API.
//
// Routes configured:
//   - GET /run/latest - Latest run snapshot (per-site results + coefficient tables)
//   - GET /run/metrics?site=<name> - Accuracy metrics for one site
//   - GET /healthz - Health check endpoint (returns 200 OK)
//   - GET /metrics - Prometheus metrics endpoint
//
// Snapshots older than the stale threshold include an X-Sitecast-Stale
// header so consumers can detect a pipeline that stopped producing runs.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sitecast/sitecast/pkg/httpx"
	"github.com/sitecast/sitecast/pkg/storage"
)

// SetupRoutes configures HTTP endpoints for the pipeline.
func SetupRoutes(store storage.Store, staleAfter time.Duration, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandler())
	mux.HandleFunc("/run/latest", handleLatestRun(store, staleAfter, logger))
	mux.HandleFunc("/run/metrics", handleSiteMetrics(store, staleAfter, logger))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// fetchLatest loads the latest snapshot and writes the error response itself
// when nothing can be served. The bool reports whether a snapshot was written
// to ok.
func fetchLatest(w http.ResponseWriter, r *http.Request, store storage.Store, staleAfter time.Duration, logger *slog.Logger) (storage.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snapshot, found, err := store.Latest(ctx)
	if err != nil {
		logger.Error("failed to get run snapshot", "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return storage.Snapshot{}, false
	}

	if !found {
		httpx.WriteErrorMessage(w, http.StatusNotFound, "no completed run yet")
		return storage.Snapshot{}, false
	}

	if staleAfter > 0 && time.Since(snapshot.GeneratedAt) > staleAfter {
		w.Header().Set("X-Sitecast-Stale", "true")
	}

	return snapshot, true
}

// handleLatestRun returns a handler for GET /run/latest.
func handleLatestRun(store storage.Store, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, ok := fetchLatest(w, r, store, staleAfter, logger)
		if !ok {
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleSiteMetrics returns a handler for GET /run/metrics?site=<name>.
func handleSiteMetrics(store storage.Store, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		site := r.URL.Query().Get("site")
		if site == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "site parameter required")
			return
		}

		snapshot, ok := fetchLatest(w, r, store, staleAfter, logger)
		if !ok {
			return
		}

		for _, result := range snapshot.Sites {
			if result.Site == site {
				resp := map[string]any{
					"runId":       snapshot.RunID,
					"generatedAt": snapshot.GeneratedAt.Format(time.RFC3339),
					"evalYear":    snapshot.EvalYear,
					"site":        result,
				}
				if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
					logger.Error("failed to write JSON response", "error", err)
				}
				return
			}
		}

		httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("site %q not in latest run", site))
	}
}
