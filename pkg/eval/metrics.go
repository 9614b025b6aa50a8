// Package eval computes goodness-of-fit metrics over a full series or a
// period-label subset, with explicit degenerate-case policies:
//
//   - R² is NaN when the true values have zero variance.
//   - MAPE skips rows whose true value is exactly zero; if every row in the
//     subset is zero, MAPE is NaN. Zero denominators never raise.
//   - An empty subset yields NaN for all three metrics, never omitted values.
//   - NaN predictions (rank-deficient sites) propagate to NaN metrics.
package eval

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Scores bundles the three accuracy metrics for one evaluation window.
type Scores struct {
	R2   float64 `json:"r2"`
	MAE  float64 `json:"mae"`
	MAPE float64 `json:"mape"`
}

// Score computes R², mean absolute error and mean absolute percentage error
// of yPred against yTrue. The slices must be aligned; both empty is valid and
// yields NaN scores.
func Score(yTrue, yPred []float64) Scores {
	nan := math.NaN()
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return Scores{R2: nan, MAE: nan, MAPE: nan}
	}

	return Scores{
		R2:   rSquared(yTrue, yPred),
		MAE:  meanAbsoluteError(yTrue, yPred),
		MAPE: meanAbsolutePercentageError(yTrue, yPred),
	}
}

// ScoreSubset computes Scores over the rows whose period label starts with
// the given prefix (an evaluation year such as "2024-"). periods must be
// aligned with yTrue and yPred.
func ScoreSubset(periods []string, yTrue, yPred []float64, prefix string) Scores {
	var subTrue, subPred []float64
	for i, p := range periods {
		if strings.HasPrefix(p, prefix) {
			subTrue = append(subTrue, yTrue[i])
			subPred = append(subPred, yPred[i])
		}
	}
	return Score(subTrue, subPred)
}

// rSquared is 1 - SSR/SST about the mean of yTrue; NaN when SST is zero.
func rSquared(yTrue, yPred []float64) float64 {
	mean := stat.Mean(yTrue, nil)

	var ssr, sst float64
	for i := range yTrue {
		r := yTrue[i] - yPred[i]
		ssr += r * r
		d := yTrue[i] - mean
		sst += d * d
	}
	if sst == 0 {
		return math.NaN()
	}
	return 1 - ssr/sst
}

func meanAbsoluteError(yTrue, yPred []float64) float64 {
	abs := make([]float64, len(yTrue))
	for i := range yTrue {
		abs[i] = math.Abs(yTrue[i] - yPred[i])
	}
	return stat.Mean(abs, nil)
}

// meanAbsolutePercentageError averages |residual/true| over the rows with a
// nonzero true value. All-zero true values yield NaN.
func meanAbsolutePercentageError(yTrue, yPred []float64) float64 {
	var sum float64
	var n int
	for i := range yTrue {
		if yTrue[i] == 0 {
			continue
		}
		sum += math.Abs((yTrue[i] - yPred[i]) / yTrue[i])
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
