package regress

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func floatEquals(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// designWithIntercept builds [1 | t] for t = 0..n-1.
func designWithIntercept(n int) *mat.Dense {
	x := mat.NewDense(n, 2, nil)
	for i := range n {
		x.Set(i, 0, 1)
		x.Set(i, 1, float64(i))
	}
	return x
}

func TestOLS_LinearTrend(t *testing.T) {
	// y = 100 + 10*t, exact fit expected
	n := 10
	y := make([]float64, n)
	for i := range y {
		y[i] = 100 + 10*float64(i)
	}

	fit, err := OLS(y, designWithIntercept(n))
	if err != nil {
		t.Fatalf("OLS() error = %v", err)
	}

	if !floatEquals(fit.Coeffs[0], 100, 1e-8) {
		t.Errorf("intercept = %v, want 100", fit.Coeffs[0])
	}
	if !floatEquals(fit.Coeffs[1], 10, 1e-8) {
		t.Errorf("slope = %v, want 10", fit.Coeffs[1])
	}

	pred := fit.Predict(designWithIntercept(n))
	for i := range pred {
		if !floatEquals(pred[i], y[i], 1e-6) {
			t.Errorf("pred[%d] = %v, want %v", i, pred[i], y[i])
		}
	}
}

func TestOLS_TooFewObservations(t *testing.T) {
	// 2 rows, 3 columns: unidentifiable
	x := mat.NewDense(2, 3, []float64{
		1, 0, 1,
		1, 1, 0,
	})
	y := []float64{5, 7}

	fit, err := OLS(y, x)
	if !errors.Is(err, ErrTooFewObservations) {
		t.Fatalf("OLS() error = %v, want ErrTooFewObservations", err)
	}

	if fit.Defined() {
		t.Error("Defined() = true, want false")
	}
	for i, c := range fit.Coeffs {
		if !math.IsNaN(c) {
			t.Errorf("Coeffs[%d] = %v, want NaN", i, c)
		}
	}
	for i, p := range fit.Predict(x) {
		if !math.IsNaN(p) {
			t.Errorf("Predict()[%d] = %v, want NaN", i, p)
		}
	}
}

func TestOLS_CollinearColumnDropped(t *testing.T) {
	// Third column duplicates the second: it must be dropped (NaN coefficient)
	// and the fit must still reproduce y exactly.
	n := 8
	x := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := range n {
		flag := 0.0
		if i%2 == 0 {
			flag = 1
		}
		x.Set(i, 0, 1)
		x.Set(i, 1, flag)
		x.Set(i, 2, flag)
		y[i] = 50 + 20*flag
	}

	fit, err := OLS(y, x)
	if err != nil {
		t.Fatalf("OLS() error = %v", err)
	}

	if math.IsNaN(fit.Coeffs[0]) || math.IsNaN(fit.Coeffs[1]) {
		t.Errorf("kept coefficients contain NaN: %v", fit.Coeffs)
	}
	if !math.IsNaN(fit.Coeffs[2]) {
		t.Errorf("Coeffs[2] = %v, want NaN (redundant column)", fit.Coeffs[2])
	}
	if fit.Rank != 2 {
		t.Errorf("Rank = %d, want 2", fit.Rank)
	}

	pred := fit.Predict(x)
	for i := range pred {
		if !floatEquals(pred[i], y[i], 1e-6) {
			t.Errorf("pred[%d] = %v, want %v", i, pred[i], y[i])
		}
	}
}

func TestOLS_ZeroColumnIgnored(t *testing.T) {
	n := 6
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := range n {
		x.Set(i, 0, 1)
		x.Set(i, 1, 0) // constant zero
		y[i] = 42
	}

	fit, err := OLS(y, x)
	if err != nil {
		t.Fatalf("OLS() error = %v", err)
	}
	if !floatEquals(fit.Coeffs[0], 42, 1e-8) {
		t.Errorf("intercept = %v, want 42", fit.Coeffs[0])
	}
	if !math.IsNaN(fit.Coeffs[1]) {
		t.Errorf("Coeffs[1] = %v, want NaN (zero column)", fit.Coeffs[1])
	}
}

func TestOLS_ShapeMismatch(t *testing.T) {
	x := designWithIntercept(4)
	if _, err := OLS([]float64{1, 2, 3}, x); err == nil {
		t.Error("OLS() with mismatched response length, want error")
	}
}
