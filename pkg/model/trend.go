package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/sitecast/sitecast/pkg/dataset"
	"github.com/sitecast/sitecast/pkg/regress"
)

var nan = math.NaN()

// TrendModel is the linear long-run component of one site's demand:
// demand ≈ Intercept + Slope * t over the ordinal time index.
// Both fields are NaN when the series is too short to identify them.
type TrendModel struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`

	fit regress.Fit
}

// FitTrend estimates the trend by least squares of demand on the time index.
// A series with fewer than three records cannot identify intercept and slope;
// the returned model then predicts NaN everywhere and err is
// regress.ErrTooFewObservations.
func FitTrend(series dataset.SiteSeries) (TrendModel, error) {
	t := series.TimeIndex()
	x := trendDesign(t)

	fit, err := regress.OLS(series.Demand(), x)
	if len(fit.Coeffs) != 2 {
		return TrendModel{Intercept: nan, Slope: nan}, err
	}
	return TrendModel{Intercept: fit.Coeffs[0], Slope: fit.Coeffs[1], fit: fit}, err
}

// Predict evaluates the trend at the given time indices.
func (m TrendModel) Predict(t []float64) []float64 {
	return m.fit.Predict(trendDesign(t))
}

// Defined reports whether the trend could be identified.
func (m TrendModel) Defined() bool {
	return m.fit.Defined()
}

// Detrend returns observed minus trend-predicted demand, aligned one-to-one
// with the input series. NaN trend predictions yield NaN residuals.
func Detrend(demand, trendPred []float64) []float64 {
	residual := make([]float64, len(demand))
	for i := range demand {
		residual[i] = demand[i] - trendPred[i]
	}
	return residual
}

func trendDesign(t []float64) *mat.Dense {
	n := len(t)
	if n == 0 {
		return mat.NewDense(1, 2, []float64{1, 0})
	}
	x := mat.NewDense(n, 2, nil)
	for i, v := range t {
		x.Set(i, 0, 1)
		x.Set(i, 1, v)
	}
	return x
}
