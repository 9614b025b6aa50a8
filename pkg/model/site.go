package model

import (
	"errors"
	"fmt"

	"github.com/sitecast/sitecast/pkg/dataset"
	"github.com/sitecast/sitecast/pkg/regress"
)

// SiteModel is the complete fitted decomposition for one site.
//
// Fitted is the recombined prediction (trend + calendar effects) aligned with
// the series rows; entries are NaN wherever either component is undefined.
// RankDeficient marks a site whose history could not identify one of the two
// fits; such a site still appears in every output, carrying NaN markers.
type SiteModel struct {
	Site          string
	Series        dataset.SiteSeries
	Trend         TrendModel
	Effects       EffectModel
	Design        Design
	Fitted        []float64
	RankDeficient bool
}

// FitSite runs the full per-site pipeline: time index, trend fit, detrend,
// calendar encoding, effect fit, recombination. Rank deficiency is not an
// error here; it is recorded on the model so one degenerate site never aborts
// the others. Only structural failures (an empty series) return an error.
func FitSite(series dataset.SiteSeries) (SiteModel, error) {
	if len(series.Records) == 0 {
		return SiteModel{}, fmt.Errorf("model: site %q has no records", series.Site)
	}

	m := SiteModel{Site: series.Site, Series: series}

	trend, err := FitTrend(series)
	if err != nil && !errors.Is(err, regress.ErrTooFewObservations) {
		return SiteModel{}, fmt.Errorf("model: trend fit for site %q: %w", series.Site, err)
	}
	m.Trend = trend
	trendPred := trend.Predict(series.TimeIndex())

	residual := Detrend(series.Demand(), trendPred)

	m.Design = EncodeCalendar(series)
	effects, err := FitEffects(residual, m.Design)
	if err != nil && !errors.Is(err, regress.ErrTooFewObservations) {
		return SiteModel{}, fmt.Errorf("model: effect fit for site %q: %w", series.Site, err)
	}
	m.Effects = effects

	effectPred := effects.Predict(m.Design)
	m.Fitted = make([]float64, len(trendPred))
	for i := range m.Fitted {
		m.Fitted[i] = trendPred[i] + effectPred[i]
	}

	m.RankDeficient = !trend.Defined() || !effects.Defined()
	return m, nil
}
