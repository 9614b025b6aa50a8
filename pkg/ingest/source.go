// Package ingest provides the input boundary of the pipeline: sources that
// fetch the three raw tables (demand history, holiday calendar, payroll
// calendar) from an external system and normalize them into the dataset
// types.
//
// Each source implements the Source interface and can be plugged into the
// pipeline. Available sources:
//   - CSVSource  — reads local semicolon-separated files
//   - HTTPSource — fetches JSON arrays from REST endpoints
//
// Sources are intentionally thin: they pull raw rows, coerce types, and
// leave joining and modeling to the upper layers.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sitecast/sitecast/pkg/dataset"
)

// Inputs bundles the three parsed tables produced by a source. Calendar and
// Payroll are keyed by period label; duplicate period rows keep the first
// occurrence.
type Inputs struct {
	History  []dataset.Observation
	Calendar map[string]dataset.WeekCalendar
	Payroll  map[string]string
}

// Source fetches the raw inputs from an external system.
//
// Fetch is synchronous and must respect context cancellation. It never
// panics; transient failures surface as errors for the pipeline to retry on
// the next cycle.
type Source interface {
	Fetch(ctx context.Context) (*Inputs, error)

	// Name returns a short identifier, e.g. "csv" or "http".
	Name() string
}

// parseBool accepts the boolean spellings seen in the upstream exports:
// VRAI/FAUX, true/false, 1/0. Empty and unknown values are false.
func parseBool(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VRAI", "TRUE", "1":
		return true
	default:
		return false
	}
}

// parseDemand coerces a demand cell to a non-negative integer. The upstream
// export writes decimal commas and occasionally empty cells; those parse as
// zero the way the reference loader coerced them.
func parseDemand(s string) (int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("ingest: demand value %q: %w", s, err)
	}
	if f < 0 {
		return 0, nil
	}
	return int(f), nil
}
