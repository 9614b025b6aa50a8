package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sitecast/sitecast/pkg/eval"
)

// MetricsRow is one line of the metrics artifact: in-sample scores over the
// full history and holdout scores over the evaluation-year subset.
type MetricsRow struct {
	Site     string      `json:"site"`
	InSample eval.Scores `json:"insample"`
	Holdout  eval.Scores `json:"holdout"`
}

// CSVWriter renders the export tables as CSV files in a fixed directory.
//
// The downstream consumers of the original system expect semicolon-separated
// files with decimal commas and empty cells for missing values; both knobs
// are explicit here rather than locale-derived.
type CSVWriter struct {
	dir          string
	separator    rune
	decimalComma bool
	logger       *slog.Logger
}

// NewCSVWriter creates a writer that places files under dir, creating it if
// needed.
func NewCSVWriter(dir string, separator rune, decimalComma bool, logger *slog.Logger) (*CSVWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if separator == 0 {
		separator = ';'
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create output dir %q: %w", dir, err)
	}
	return &CSVWriter{dir: dir, separator: separator, decimalComma: decimalComma, logger: logger}, nil
}

// WriteLong writes the long coefficient table (site;variable;coef).
// Returns the written file path.
func (w *CSVWriter) WriteLong(name string, rows []CoefficientRow) (string, error) {
	records := [][]string{{"site", "variable", "coef"}}
	for _, r := range rows {
		records = append(records, []string{r.Site, r.Variable, w.formatFloat(r.Coef)})
	}
	return w.write(name, records)
}

// WriteWide writes the wide coefficient table (site;<one column per variable>).
func (w *CSVWriter) WriteWide(name string, table WideTable) (string, error) {
	header := append([]string{"site"}, table.Variables...)
	records := [][]string{header}
	for i, site := range table.Sites {
		record := make([]string, 0, len(header))
		record = append(record, site)
		for _, v := range table.Cells[i] {
			record = append(record, w.formatFloat(v))
		}
		records = append(records, record)
	}
	return w.write(name, records)
}

// WriteMetrics writes the per-site metrics table. evalYear names the holdout
// columns, e.g. "2024" yields r2_2024, mae_2024, mape_2024.
func (w *CSVWriter) WriteMetrics(name string, rows []MetricsRow, evalYear string) (string, error) {
	records := [][]string{{
		"site",
		"r2_insample", "mae_insample", "mape_insample",
		"r2_" + evalYear, "mae_" + evalYear, "mape_" + evalYear,
	}}
	for _, r := range rows {
		records = append(records, []string{
			r.Site,
			w.formatFloat(r.InSample.R2), w.formatFloat(r.InSample.MAE), w.formatFloat(r.InSample.MAPE),
			w.formatFloat(r.Holdout.R2), w.formatFloat(r.Holdout.MAE), w.formatFloat(r.Holdout.MAPE),
		})
	}
	return w.write(name, records)
}

func (w *CSVWriter) write(name string, records [][]string) (string, error) {
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("export: create %q: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	cw.Comma = w.separator
	if err := cw.WriteAll(records); err != nil {
		return "", fmt.Errorf("export: write %q: %w", path, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("export: flush %q: %w", path, err)
	}

	w.logger.Info("wrote artifact",
		"path", path,
		"rows", len(records)-1,
	)
	return path, nil
}

// formatFloat renders a cell value: NaN becomes an empty cell, finite values
// use the shortest round-trippable form, with a decimal comma when configured.
func (w *CSVWriter) formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if w.decimalComma {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s
}
