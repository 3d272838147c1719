package kalman

import "errors"

var (
	// ErrZeroMeasurementCoefficient is returned by NewScalar when C is zero.
	ErrZeroMeasurementCoefficient = errors.New("kalman: measurement coefficient C must be non-zero")

	// ErrZeroNoise is returned by NewScalar when both noise terms are zero.
	// The gain would be 0/0 from the second measurement on.
	ErrZeroNoise = errors.New("kalman: process and measurement noise cannot both be zero")

	// ErrDimensionMismatch is returned when a matrix or vector does not match
	// the filter's state or measurement dimension.
	ErrDimensionMismatch = errors.New("kalman: dimension mismatch")

	// ErrDenseInverse is returned by NewVector when the innovation covariance
	// could become a dense matrix larger than 2x2. Only 1x1, 2x2 and diagonal
	// inverses are supported.
	ErrDenseInverse = errors.New("kalman: dense inverse above 2x2 is not supported")

	// ErrSingular is returned by Update when the innovation covariance cannot
	// be inverted. The filter state is left unchanged.
	ErrSingular = errors.New("kalman: singular innovation covariance")

	// ErrNonFinite is returned when an update produced NaN or Inf. The filter
	// is reset before the error is returned.
	ErrNonFinite = errors.New("kalman: non-finite state")
)
