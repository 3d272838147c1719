package kalman

import (
	"fmt"
	"math"
)

// ScalarConfig holds the fixed tuning of a Scalar filter.
//
// The model is x' = A·x + B·u with measurement z = C·x. R is the process
// noise added on every predict and Q the measurement noise.
type ScalarConfig struct {
	R float64 // Process noise
	Q float64 // Measurement noise
	A float64 // State coefficient
	B float64 // Control coefficient
	C float64 // Measurement coefficient
}

// DefaultScalarConfig returns a constant-value model (A=1, B=0, C=1) with
// unit noise terms.
func DefaultScalarConfig() ScalarConfig {
	return ScalarConfig{R: 1, Q: 1, A: 1, B: 0, C: 1}
}

// ConstantModel returns a constant-value model with the given process and
// measurement noise.
func ConstantModel(processNoise, measurementNoise float64) ScalarConfig {
	return ScalarConfig{R: processNoise, Q: measurementNoise, A: 1, B: 0, C: 1}
}

// Validate checks the coefficients. A zero C cannot be inverted at
// initialisation, and R and Q may not both be zero.
func (c ScalarConfig) Validate() error {
	if c.C == 0 {
		return ErrZeroMeasurementCoefficient
	}
	if c.R < 0 || c.Q < 0 {
		return fmt.Errorf("kalman: noise terms must be non-negative (R=%g, Q=%g)", c.R, c.Q)
	}
	if c.R == 0 && c.Q == 0 {
		return ErrZeroNoise
	}
	for _, v := range []float64{c.R, c.Q, c.A, c.B, c.C} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("kalman: coefficients must be finite")
		}
	}
	return nil
}

// Scalar is a single-variable recursive estimator.
type Scalar struct {
	cfg ScalarConfig

	estimate    float64
	covariance  float64
	initialized bool
}

// NewScalar creates a filter after validating cfg.
func NewScalar(cfg ScalarConfig) (*Scalar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scalar{cfg: cfg}, nil
}

// Config returns the filter's tuning.
func (s *Scalar) Config() ScalarConfig { return s.cfg }

// Filter folds one measurement into the estimate and returns the new value.
// The first measurement seeds the estimate directly instead of blending it
// with an arbitrary prior.
func (s *Scalar) Filter(measurement, control float64) float64 {
	c := s.cfg
	if !s.initialized {
		s.estimate = measurement / c.C
		s.covariance = c.Q / (c.C * c.C)
		s.initialized = true
		return s.estimate
	}

	predX := c.A*s.estimate + c.B*control
	predCov := c.A*s.covariance*c.A + c.R

	gain := predCov * c.C / (c.C*predCov*c.C + c.Q)

	s.estimate = predX + gain*(measurement-c.C*predX)
	s.covariance = predCov - gain*c.C*predCov
	return s.estimate
}

// Estimate returns the last filtered value, or NaN before the first
// measurement. An unfed filter keeps reporting its last estimate.
func (s *Scalar) Estimate() float64 {
	if !s.initialized {
		return math.NaN()
	}
	return s.estimate
}

// Covariance returns the current estimate variance, or NaN before the first
// measurement.
func (s *Scalar) Covariance() float64 {
	if !s.initialized {
		return math.NaN()
	}
	return s.covariance
}

// Initialized reports whether at least one measurement has been filtered.
func (s *Scalar) Initialized() bool { return s.initialized }

// Reset discards the estimate so the next measurement re-seeds the filter.
func (s *Scalar) Reset() {
	s.estimate = 0
	s.covariance = 0
	s.initialized = false
}
