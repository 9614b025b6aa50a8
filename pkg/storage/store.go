// Package storage provides run snapshot storage implementations.
//
// A Snapshot is the complete result of one pipeline run: per-site trend and
// metric summaries plus the coefficient tables. The HTTP API serves the
// latest snapshot; the memory store suits single-instance deployments and
// the Redis store shares results across instances.
package storage

import (
	"context"
	"math"
	"strconv"
	"time"
)

// Value is a float64 whose JSON form maps NaN to null, so the missing-value
// markers of rank-deficient sites survive a store round trip.
type Value float64

// MarshalJSON renders NaN as null.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// UnmarshalJSON maps null back to NaN.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*v = Value(f)
	return nil
}

// ScoreSet mirrors the three accuracy metrics with store-safe values.
type ScoreSet struct {
	R2   Value `json:"r2"`
	MAE  Value `json:"mae"`
	MAPE Value `json:"mape"`
}

// SiteResult summarizes one site within a run.
type SiteResult struct {
	Site           string   `json:"site"`
	Zone           string   `json:"zone"`
	Weeks          int      `json:"weeks"`
	TrendIntercept Value    `json:"trendIntercept"`
	TrendSlope     Value    `json:"trendSlope"`
	RankDeficient  bool     `json:"rankDeficient"`
	InSample       ScoreSet `json:"insample"`
	Holdout        ScoreSet `json:"holdout"`
}

// CoefficientEntry is one long-table row in store-safe form.
type CoefficientEntry struct {
	Site     string `json:"site"`
	Variable string `json:"variable"`
	Coef     Value  `json:"coef"`
}

// Snapshot is the stored result of one complete pipeline run.
type Snapshot struct {
	RunID        string             `json:"runId"`
	GeneratedAt  time.Time          `json:"generatedAt"`
	EvalYear     string             `json:"evalYear"`
	Sites        []SiteResult       `json:"sites"`
	Coefficients []CoefficientEntry `json:"coefficients"`
	WideColumns  []string           `json:"wideColumns"`
	Artifacts    []string           `json:"artifacts,omitempty"`
}

// Store persists the latest run snapshot.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	Latest(ctx context.Context) (Snapshot, bool, error)
}
