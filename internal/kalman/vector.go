package kalman

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MinDeterminant is the smallest |det(S)| accepted when inverting a 2x2
// innovation covariance.
const MinDeterminant = 1e-12

// VectorConfig describes a linear filter with StateDim states and
// MeasurementDim measured quantities. Nil matrices take defaults:
// F = I, H = selection of the first min(n, m) states, Q = 0.01·I,
// R = 0.1·I and P0 = I.
type VectorConfig struct {
	StateDim       int
	MeasurementDim int

	F  *mat.Dense // State transition (n x n)
	H  *mat.Dense // Observation (m x n)
	Q  *mat.Dense // Process noise covariance (n x n)
	R  *mat.Dense // Measurement noise covariance (m x m)
	P0 *mat.Dense // Initial estimate covariance (n x n)
}

// DiagonalConfig returns an n-state filter observing every state directly,
// with isotropic process and measurement noise and no cross-axis coupling.
func DiagonalConfig(n int, processNoise, measurementNoise float64) VectorConfig {
	return VectorConfig{
		StateDim:       n,
		MeasurementDim: n,
		Q:              scaledIdentity(n, processNoise),
		R:              scaledIdentity(n, measurementNoise),
	}
}

// Vector is a fixed-dimension linear Kalman filter.
type Vector struct {
	n, m int

	f, h, q, r, p0 *mat.Dense
	identity       *mat.Dense

	x *mat.VecDense
	p *mat.Dense
}

// NewVector validates cfg and returns a filter with a zero state.
//
// Inversion of the innovation covariance is exact for one or two measured
// quantities. Above that the configuration must keep S diagonal (diagonal
// F, Q, R, P0 and an H with at most one non-zero entry per row and column);
// anything else is rejected with ErrDenseInverse.
func NewVector(cfg VectorConfig) (*Vector, error) {
	n, m := cfg.StateDim, cfg.MeasurementDim
	if n <= 0 || m <= 0 {
		return nil, fmt.Errorf("%w: state and measurement dimensions must be positive (n=%d, m=%d)", ErrDimensionMismatch, n, m)
	}

	v := &Vector{
		n:        n,
		m:        m,
		f:        orDefault(cfg.F, func() *mat.Dense { return scaledIdentity(n, 1) }),
		h:        orDefault(cfg.H, func() *mat.Dense { return selection(m, n) }),
		q:        orDefault(cfg.Q, func() *mat.Dense { return scaledIdentity(n, 0.01) }),
		r:        orDefault(cfg.R, func() *mat.Dense { return scaledIdentity(m, 0.1) }),
		p0:       orDefault(cfg.P0, func() *mat.Dense { return scaledIdentity(n, 1) }),
		identity: scaledIdentity(n, 1),
	}

	checks := []struct {
		name       string
		mat        *mat.Dense
		rows, cols int
	}{
		{"F", v.f, n, n},
		{"H", v.h, m, n},
		{"Q", v.q, n, n},
		{"R", v.r, m, m},
		{"P0", v.p0, n, n},
	}
	for _, c := range checks {
		r, cc := c.mat.Dims()
		if r != c.rows || cc != c.cols {
			return nil, fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrDimensionMismatch, c.name, r, cc, c.rows, c.cols)
		}
	}

	if m > 2 {
		if !isDiagonal(v.f) || !isDiagonal(v.q) || !isDiagonal(v.r) || !isDiagonal(v.p0) || !isSelection(v.h) {
			return nil, fmt.Errorf("%w: %d measured quantities need diagonal F, Q, R, P0 and a selection H", ErrDenseInverse, m)
		}
	}

	v.Reset()
	return v, nil
}

// StateDim returns n.
func (v *Vector) StateDim() int { return v.n }

// MeasurementDim returns m.
func (v *Vector) MeasurementDim() int { return v.m }

// Predict advances the state: x = F·x (+ u), P = F·P·Fᵀ + Q. An empty
// control applies no input.
func (v *Vector) Predict(control []float64) ([]float64, error) {
	if len(control) != 0 && len(control) != v.n {
		return nil, fmt.Errorf("%w: control has %d elements, want %d", ErrDimensionMismatch, len(control), v.n)
	}

	var x mat.VecDense
	x.MulVec(v.f, v.x)
	if len(control) != 0 {
		x.AddVec(&x, mat.NewVecDense(v.n, append([]float64(nil), control...)))
	}
	v.x = &x

	var fp, p mat.Dense
	fp.Mul(v.f, v.p)
	p.Mul(&fp, v.f.T())
	p.Add(&p, v.q)
	v.p = &p

	return v.Estimate(), nil
}

// Update folds a measurement into the state using the Joseph-form
// covariance update P = (I−KH)·P·(I−KH)ᵀ + K·R·Kᵀ.
func (v *Vector) Update(measurement []float64) ([]float64, error) {
	if len(measurement) != v.m {
		return nil, fmt.Errorf("%w: measurement has %d elements, want %d", ErrDimensionMismatch, len(measurement), v.m)
	}

	// S = H·P·Hᵀ + R
	var hp, s mat.Dense
	hp.Mul(v.h, v.p)
	s.Mul(&hp, v.h.T())
	s.Add(&s, v.r)

	sInv, err := invert(&s)
	if err != nil {
		return nil, err
	}

	// K = P·Hᵀ·S⁻¹
	var pht, k mat.Dense
	pht.Mul(v.p, v.h.T())
	k.Mul(&pht, sInv)

	// x = x + K·(z − H·x)
	var hx, innovation, correction mat.VecDense
	hx.MulVec(v.h, v.x)
	innovation.SubVec(mat.NewVecDense(v.m, append([]float64(nil), measurement...)), &hx)
	correction.MulVec(&k, &innovation)

	var x mat.VecDense
	x.AddVec(v.x, &correction)

	var kh, ikh mat.Dense
	kh.Mul(&k, v.h)
	ikh.Sub(v.identity, &kh)

	var ikhp, joseph, kr, krk mat.Dense
	ikhp.Mul(&ikh, v.p)
	joseph.Mul(&ikhp, ikh.T())
	kr.Mul(&k, v.r)
	krk.Mul(&kr, k.T())
	joseph.Add(&joseph, &krk)

	if !finiteVec(&x) || !finiteDense(&joseph) {
		v.Reset()
		return nil, ErrNonFinite
	}

	v.x = &x
	v.p = &joseph
	return v.Estimate(), nil
}

// Filter runs Predict with control then Update with measurement.
func (v *Vector) Filter(measurement, control []float64) ([]float64, error) {
	if _, err := v.Predict(control); err != nil {
		return nil, err
	}
	return v.Update(measurement)
}

// Estimate returns a copy of the state vector.
func (v *Vector) Estimate() []float64 {
	out := make([]float64, v.n)
	for i := range out {
		out[i] = v.x.AtVec(i)
	}
	return out
}

// Covariance returns a copy of the estimate covariance.
func (v *Vector) Covariance() *mat.Dense {
	return mat.DenseCopyOf(v.p)
}

// Variance returns the diagonal of the estimate covariance.
func (v *Vector) Variance() []float64 {
	out := make([]float64, v.n)
	for i := range out {
		out[i] = v.p.At(i, i)
	}
	return out
}

// Reset restores the zero state and the initial covariance.
func (v *Vector) Reset() {
	v.x = mat.NewVecDense(v.n, nil)
	v.p = mat.DenseCopyOf(v.p0)
}

// invert returns S⁻¹ in closed form for 1x1, 2x2 and diagonal matrices.
func invert(s *mat.Dense) (*mat.Dense, error) {
	n, _ := s.Dims()
	switch n {
	case 1:
		d := s.At(0, 0)
		if d == 0 {
			return nil, ErrSingular
		}
		return mat.NewDense(1, 1, []float64{1 / d}), nil
	case 2:
		a, b := s.At(0, 0), s.At(0, 1)
		c, d := s.At(1, 0), s.At(1, 1)
		det := a*d - b*c
		if math.Abs(det) < MinDeterminant {
			return nil, ErrSingular
		}
		return mat.NewDense(2, 2, []float64{
			d / det, -b / det,
			-c / det, a / det,
		}), nil
	}

	if !isDiagonal(s) {
		return nil, ErrDenseInverse
	}
	inv := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d := s.At(i, i)
		if d == 0 {
			return nil, ErrSingular
		}
		inv.Set(i, i, 1/d)
	}
	return inv, nil
}

func scaledIdentity(n int, scale float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, scale)
	}
	return m
}

// selection returns an m x n matrix with ones on the leading diagonal.
func selection(m, n int) *mat.Dense {
	h := mat.NewDense(m, n, nil)
	for i := 0; i < m && i < n; i++ {
		h.Set(i, i, 1)
	}
	return h
}

func orDefault(m *mat.Dense, def func() *mat.Dense) *mat.Dense {
	if m == nil {
		return def()
	}
	return mat.DenseCopyOf(m)
}

func isDiagonal(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if i != j && m.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// isSelection reports whether every row and every column of h has at most
// one non-zero entry.
func isSelection(h mat.Matrix) bool {
	r, c := h.Dims()
	colUsed := make([]bool, c)
	for i := 0; i < r; i++ {
		rowUsed := false
		for j := 0; j < c; j++ {
			if h.At(i, j) == 0 {
				continue
			}
			if rowUsed || colUsed[j] {
				return false
			}
			rowUsed = true
			colUsed[j] = true
		}
	}
	return true
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func finiteDense(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x := m.At(i, j)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}
