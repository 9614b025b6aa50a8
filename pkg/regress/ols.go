// Package regress provides the ordinary least squares engine shared by the
// trend and calendar-effect estimators.
//
// The engine operates on an explicit design matrix whose first column is
// expected to be the intercept. It never produces infinite coefficients:
//
//   - With fewer observations than design columns the fit is unidentifiable
//     and every coefficient is reported as NaN (ErrTooFewObservations).
//   - With enough observations but a column-rank-deficient matrix, redundant
//     columns are dropped right-to-left and their coefficients reported as
//     NaN; the retained columns are solved via SVD.
//
// NaN is the single missing-value marker used throughout the pipeline, so a
// rank-deficient site degrades to NaN predictions and NaN metrics instead of
// aborting the run.
package regress

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrTooFewObservations indicates n <= k: the design matrix has at least as
// many columns as rows, so no coefficient is identifiable.
var ErrTooFewObservations = errors.New("regress: fewer observations than design columns")

// machine epsilon for float64, used in the rank tolerance
const eps = 2.220446049250313e-16

// Fit is the result of an ordinary least squares solve.
//
// Coeffs always has one entry per design column. Columns that could not be
// identified (dropped as redundant, or the whole fit when n <= k) carry NaN.
type Fit struct {
	Coeffs []float64

	// Rank is the numerical column rank of the design matrix.
	Rank int

	kept       []int
	keptCoeffs []float64
}

// Defined reports whether the fit produced at least one usable coefficient.
func (f Fit) Defined() bool {
	return len(f.kept) > 0
}

// Predict evaluates the fitted model on a design matrix with the same column
// layout as the one passed to OLS. Dropped columns are ignored; if the fit is
// entirely undefined every prediction is NaN.
func (f Fit) Predict(x mat.Matrix) []float64 {
	n, _ := x.Dims()
	out := make([]float64, n)

	if !f.Defined() {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	for i := range n {
		var sum float64
		for j, col := range f.kept {
			sum += f.keptCoeffs[j] * x.At(i, col)
		}
		out[i] = sum
	}
	return out
}

// OLS fits y = X*beta by least squares.
//
// y must have one entry per row of x. The returned Fit carries NaN markers for
// any column that could not be identified; the only error conditions are shape
// mismatches and ErrTooFewObservations, and in the latter case the returned
// Fit is still usable (all-NaN coefficients, NaN predictions).
func OLS(y []float64, x mat.Matrix) (Fit, error) {
	n, k := x.Dims()
	if n == 0 || k == 0 {
		return Fit{}, fmt.Errorf("regress: empty design matrix (%dx%d)", n, k)
	}
	if len(y) != n {
		return Fit{}, fmt.Errorf("regress: response length %d does not match %d design rows", len(y), n)
	}

	undefined := Fit{Coeffs: nanSlice(k)}

	if n <= k {
		return undefined, ErrTooFewObservations
	}

	kept := independentColumns(x)
	if len(kept) == 0 {
		// All columns numerically zero. Nothing to estimate.
		return undefined, nil
	}

	sub := columnSubset(x, kept)

	var svd mat.SVD
	if !svd.Factorize(sub, mat.SVDThin) {
		return undefined, fmt.Errorf("regress: SVD factorization failed")
	}
	rank := numericalRank(svd.Values(nil), n)
	if rank == 0 {
		return undefined, nil
	}

	b := mat.NewDense(n, 1, nil)
	for i, v := range y {
		b.Set(i, 0, v)
	}

	var sol mat.Dense
	svd.SolveTo(&sol, b, rank)

	fit := Fit{
		Coeffs:     nanSlice(k),
		Rank:       rank,
		kept:       kept,
		keptCoeffs: make([]float64, len(kept)),
	}
	for j, col := range kept {
		c := sol.At(j, 0)
		fit.Coeffs[col] = c
		fit.keptCoeffs[j] = c
	}
	return fit, nil
}

// independentColumns selects a maximal linearly independent set of columns,
// scanning left to right so that earlier columns (the intercept first) win
// over later duplicates. Deterministic given the matrix.
func independentColumns(x mat.Matrix) []int {
	n, k := x.Dims()
	kept := make([]int, 0, k)

	for j := range k {
		if columnIsZero(x, j) {
			continue
		}
		candidate := append(kept, j)
		sub := columnSubset(x, candidate)

		var svd mat.SVD
		if !svd.Factorize(sub, mat.SVDThin) {
			continue
		}
		if numericalRank(svd.Values(nil), n) == len(candidate) {
			kept = candidate
		}
	}
	return kept
}

func columnIsZero(x mat.Matrix, j int) bool {
	n, _ := x.Dims()
	for i := range n {
		if x.At(i, j) != 0 {
			return false
		}
	}
	return true
}

func columnSubset(x mat.Matrix, cols []int) *mat.Dense {
	n, _ := x.Dims()
	sub := mat.NewDense(n, len(cols), nil)
	for i := range n {
		for j, col := range cols {
			sub.Set(i, j, x.At(i, col))
		}
	}
	return sub
}

// numericalRank counts singular values above the standard tolerance
// max(m,n) * eps * s_max.
func numericalRank(s []float64, n int) int {
	if len(s) == 0 {
		return 0
	}
	tol := float64(max(n, len(s))) * eps * s[0]
	// Guard against a zero matrix where s[0] == 0.
	if tol == 0 {
		tol = eps
	}
	rank := 0
	for _, v := range s {
		if v > tol {
			rank++
		}
	}
	return rank
}

func nanSlice(k int) []float64 {
	out := make([]float64, k)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
