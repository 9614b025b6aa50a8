package model

import (
	"errors"

	"github.com/sitecast/sitecast/pkg/regress"
)

// EffectModel holds the calendar-effect coefficients of one site: the fit of
// the detrended residual on the encoded calendar design matrix. Variables and
// Coeffs are parallel slices; an unidentifiable coefficient is NaN.
type EffectModel struct {
	Variables []string  `json:"variables"`
	Coeffs    []float64 `json:"coeffs"`

	fit regress.Fit
}

// FitEffects estimates the calendar effects by least squares of the residual
// on the design matrix. When the site has too few observations for the number
// of design columns, every coefficient is NaN, the model predicts NaN, and
// err is regress.ErrTooFewObservations; the caller recovers per site.
func FitEffects(residual []float64, design Design) (EffectModel, error) {
	fit, err := regress.OLS(residual, design.X)
	if err != nil && !errors.Is(err, regress.ErrTooFewObservations) {
		return EffectModel{}, err
	}
	return EffectModel{Variables: design.Names, Coeffs: fit.Coeffs, fit: fit}, err
}

// Predict evaluates the effects on a design matrix with the same column
// layout as the one the model was fitted on.
func (m EffectModel) Predict(design Design) []float64 {
	return m.fit.Predict(design.X)
}

// Defined reports whether the effect fit produced usable coefficients.
func (m EffectModel) Defined() bool {
	return m.fit.Defined()
}
