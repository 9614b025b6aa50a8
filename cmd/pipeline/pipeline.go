// Package main implements the pipeline run orchestration.
//
// This file contains the Pipeline type which orchestrates one run:
//
//	fetch → join → fit sites (parallel) → score → pivot → store → export
//
// The pipeline either runs once (-once) or continuously via Run(), executing
// RunOnce at regular intervals and replacing the stored snapshot each cycle.
//
// A rank-deficient site never aborts a run: its coefficients and metrics are
// NaN and the run continues. A pivot collision (duplicate site/variable pair)
// is a data integrity failure and aborts the run.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sitecast/sitecast/cmd/pipeline/metrics"
	"github.com/sitecast/sitecast/pkg/dataset"
	"github.com/sitecast/sitecast/pkg/eval"
	"github.com/sitecast/sitecast/pkg/export"
	"github.com/sitecast/sitecast/pkg/ingest"
	"github.com/sitecast/sitecast/pkg/model"
	"github.com/sitecast/sitecast/pkg/storage"
)

// Pipeline orchestrates the full run: fetch → fit → score → export → store.
type Pipeline struct {
	source        ingest.Source
	builder       *dataset.Builder
	store         storage.Store
	writer        *export.CSVWriter
	uploadBaseURL string
	uploadClient  *http.Client
	evalYear      string
	workers       int
	logger        *slog.Logger
	metrics       *metrics.Metrics
	runs          int
}

// New creates a new Pipeline. uploadBaseURL empty disables artifact upload;
// uploadClient may be nil when upload is disabled.
func New(
	source ingest.Source,
	builder *dataset.Builder,
	store storage.Store,
	writer *export.CSVWriter,
	uploadBaseURL string,
	uploadClient *http.Client,
	evalYear string,
	workers int,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	return &Pipeline{
		source:        source,
		builder:       builder,
		store:         store,
		writer:        writer,
		uploadBaseURL: uploadBaseURL,
		uploadClient:  uploadClient,
		evalYear:      evalYear,
		workers:       workers,
		logger:        logger,
		metrics:       m,
	}
}

// Run executes the pipeline at regular intervals.
// Blocks until context is canceled.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("starting pipeline loop", "interval", interval, "workers", p.workers)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := p.RunOnce(ctx); err != nil {
		p.logger.Error("initial pipeline run failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Error("pipeline run failed", "error", err)
			}
		}
	}
}

// RunOnce performs one complete pipeline run.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	start := time.Now()
	p.runs++
	runID := fmt.Sprintf("run-%s-%d", start.UTC().Format("20060102T150405Z"), p.runs)
	p.logger.Info("starting pipeline run", "run_id", runID)

	inputs, fetchDuration, err := p.fetch(ctx)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("source", "fetch_failed")
		}
		return fmt.Errorf("fetch: %w", err)
	}

	series := p.builder.Build(inputs.History, inputs.Calendar, inputs.Payroll)
	if len(series) == 0 {
		if p.metrics != nil {
			p.metrics.RecordError("dataset", "empty")
		}
		return fmt.Errorf("dataset: no site history rows")
	}

	models, fitDuration, err := p.fitSites(ctx, series)
	if err != nil {
		return fmt.Errorf("fit: %w", err)
	}

	metricRows := p.score(models)

	longRows := export.Collect(models)
	wide, err := export.Pivot(longRows)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("export", "pivot_collision")
		}
		return fmt.Errorf("pivot: %w", err)
	}

	snapshot := p.buildSnapshot(runID, models, metricRows, longRows, wide)

	artifacts, exportDuration, err := p.export(ctx, longRows, wide, metricRows)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("export", "write_failed")
		}
		return fmt.Errorf("export: %w", err)
	}
	snapshot.Artifacts = artifacts

	if err := p.store.Put(ctx, snapshot); err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("store", "put_failed")
		}
		return fmt.Errorf("store: %w", err)
	}

	rankDeficient := 0
	for _, m := range models {
		if m.RankDeficient {
			rankDeficient++
		}
	}

	if p.metrics != nil {
		p.metrics.SetRunAge(0)
		p.metrics.SetSitesProcessed(len(models))
		p.metrics.SetSitesRankDeficient(rankDeficient)
	}

	p.logger.Info("pipeline run complete",
		"run_id", runID,
		"sites", len(models),
		"rank_deficient_sites", rankDeficient,
		"fetch_ms", fetchDuration.Milliseconds(),
		"fit_ms", fitDuration.Milliseconds(),
		"export_ms", exportDuration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// fetch retrieves the three input tables from the source.
func (p *Pipeline) fetch(ctx context.Context) (*ingest.Inputs, time.Duration, error) {
	start := time.Now()

	inputs, err := p.source.Fetch(ctx)
	if err != nil {
		return nil, 0, err
	}

	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordFetch(duration.Seconds())
	}

	p.logger.Info("fetched inputs",
		"source", p.source.Name(),
		"history_rows", len(inputs.History),
		"calendar_weeks", len(inputs.Calendar),
		"payroll_weeks", len(inputs.Payroll),
		"duration_ms", duration.Milliseconds(),
	)

	return inputs, duration, nil
}

// fitSites fits every site model with bounded parallelism. All sites must
// finish before the coefficient tables are assembled. Results keep the input
// site order.
func (p *Pipeline) fitSites(ctx context.Context, series []dataset.SiteSeries) ([]model.SiteModel, time.Duration, error) {
	start := time.Now()

	models := make([]model.SiteModel, len(series))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, s := range series {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := model.FitSite(s)
			if err != nil {
				return fmt.Errorf("site %q: %w", s.Site, err)
			}
			models[i] = m
			if m.RankDeficient {
				p.logger.Warn("site fit is rank deficient",
					"site", s.Site,
					"weeks", len(s.Records),
					"design_columns", len(m.Design.Names),
				)
				if p.metrics != nil {
					p.metrics.RecordError("model", "rank_deficient")
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("model", "fit_failed")
		}
		return nil, 0, err
	}

	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordFit(duration.Seconds())
	}

	p.logger.Debug("fitted site models", "sites", len(models), "duration_ms", duration.Milliseconds())

	return models, duration, nil
}

// score computes in-sample and holdout metrics for every site, sorted by site.
func (p *Pipeline) score(models []model.SiteModel) []export.MetricsRow {
	rows := make([]export.MetricsRow, 0, len(models))

	for _, m := range models {
		demand := m.Series.Demand()
		periods := make([]string, len(m.Series.Records))
		for i, r := range m.Series.Records {
			periods[i] = r.Period
		}

		rows = append(rows, export.MetricsRow{
			Site:     m.Site,
			InSample: eval.Score(demand, m.Fitted),
			Holdout:  eval.ScoreSubset(periods, demand, m.Fitted, p.evalYear),
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Site < rows[j].Site })

	return rows
}

// buildSnapshot assembles the stored run result.
func (p *Pipeline) buildSnapshot(runID string, models []model.SiteModel, metricRows []export.MetricsRow, longRows []export.CoefficientRow, wide export.WideTable) storage.Snapshot {
	scoresBySite := make(map[string]export.MetricsRow, len(metricRows))
	for _, r := range metricRows {
		scoresBySite[r.Site] = r
	}

	sites := make([]storage.SiteResult, 0, len(models))
	for _, m := range models {
		scores := scoresBySite[m.Site]
		sites = append(sites, storage.SiteResult{
			Site:           m.Site,
			Zone:           m.Series.Zone(),
			Weeks:          len(m.Series.Records),
			TrendIntercept: storage.Value(m.Trend.Intercept),
			TrendSlope:     storage.Value(m.Trend.Slope),
			RankDeficient:  m.RankDeficient,
			InSample:       toScoreSet(scores.InSample),
			Holdout:        toScoreSet(scores.Holdout),
		})
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Site < sites[j].Site })

	coefficients := make([]storage.CoefficientEntry, 0, len(longRows))
	for _, r := range longRows {
		coefficients = append(coefficients, storage.CoefficientEntry{
			Site:     r.Site,
			Variable: r.Variable,
			Coef:     storage.Value(r.Coef),
		})
	}

	return storage.Snapshot{
		RunID:        runID,
		GeneratedAt:  time.Now(),
		EvalYear:     p.evalYear,
		Sites:        sites,
		Coefficients: coefficients,
		WideColumns:  wide.Variables,
	}
}

func toScoreSet(s eval.Scores) storage.ScoreSet {
	return storage.ScoreSet{
		R2:   storage.Value(s.R2),
		MAE:  storage.Value(s.MAE),
		MAPE: storage.Value(s.MAPE),
	}
}

// export writes the three CSV artifacts and uploads them when configured.
func (p *Pipeline) export(ctx context.Context, longRows []export.CoefficientRow, wide export.WideTable, metricRows []export.MetricsRow) ([]string, time.Duration, error) {
	start := time.Now()

	longPath, err := p.writer.WriteLong("coefficients.csv", longRows)
	if err != nil {
		return nil, 0, err
	}
	widePath, err := p.writer.WriteWide("coefficients_wide.csv", wide)
	if err != nil {
		return nil, 0, err
	}
	metricsPath, err := p.writer.WriteMetrics("metrics.csv", metricRows, p.evalYear)
	if err != nil {
		return nil, 0, err
	}

	artifacts := []string{longPath, widePath, metricsPath}

	if p.uploadBaseURL != "" {
		for _, path := range artifacts {
			if err := p.upload(ctx, path); err != nil {
				return nil, 0, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
			}
		}
	}

	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordExport(duration.Seconds())
	}

	return artifacts, duration, nil
}

// upload PUTs one artifact to the configured base URL.
func (p *Pipeline) upload(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	url := fmt.Sprintf("%s/%s", p.uploadBaseURL, filepath.Base(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/csv")

	client := p.uploadClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("put %s: unexpected status %d", url, resp.StatusCode)
	}

	p.logger.Debug("uploaded artifact", "url", url, "bytes", len(data))
	return nil
}
