package kalman

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScalarRejectsZeroMeasurementCoefficient(t *testing.T) {
	t.Parallel()

	_, err := NewScalar(ScalarConfig{R: 1, Q: 1, A: 1, C: 0})
	require.ErrorIs(t, err, ErrZeroMeasurementCoefficient)
}

func TestNewScalarRejectsNegativeNoise(t *testing.T) {
	t.Parallel()

	_, err := NewScalar(ScalarConfig{R: -1, Q: 1, A: 1, C: 1})
	assert.Error(t, err)
}

func TestNewScalarRejectsZeroNoise(t *testing.T) {
	t.Parallel()

	_, err := NewScalar(ConstantModel(0, 0))
	require.ErrorIs(t, err, ErrZeroNoise)

	for _, cfg := range []ScalarConfig{ConstantModel(0, 0.1), ConstantModel(0.01, 0)} {
		f, err := NewScalar(cfg)
		require.NoError(t, err)
		f.Filter(42, 0)
		got := f.Filter(43, 0)
		assert.False(t, math.IsNaN(got), "R=%g Q=%g", cfg.R, cfg.Q)
	}
}

func TestScalarFirstMeasurementSeedsEstimate(t *testing.T) {
	t.Parallel()

	f, err := NewScalar(ScalarConfig{R: 0.01, Q: 0.1, A: 1, C: 2})
	require.NoError(t, err)

	assert.True(t, math.IsNaN(f.Estimate()), "unfed filter has no estimate")
	assert.False(t, f.Initialized())

	got := f.Filter(10, 0)
	assert.InDelta(t, 5.0, got, 1e-12)
	assert.InDelta(t, 0.1/4, f.Covariance(), 1e-12)
	assert.True(t, f.Initialized())
}

func TestScalarSecondStep(t *testing.T) {
	t.Parallel()

	f, err := NewScalar(ConstantModel(0.01, 0.1))
	require.NoError(t, err)

	f.Filter(10, 0)
	got := f.Filter(12, 0)

	predCov := 0.1 + 0.01
	k := predCov / (predCov + 0.1)
	assert.InDelta(t, 10+k*2, got, 1e-12)
	assert.InDelta(t, predCov-k*predCov, f.Covariance(), 1e-12)
}

func TestScalarConvergesMonotonically(t *testing.T) {
	t.Parallel()

	for _, cfg := range []ScalarConfig{DefaultScalarConfig(), ConstantModel(0.01, 0.1), ConstantModel(0.05, 0.2)} {
		f, err := NewScalar(cfg)
		require.NoError(t, err)

		f.Filter(0, 0)
		prevErr := math.Abs(f.Estimate() - 42)
		for i := 0; i < 49; i++ {
			f.Filter(42, 0)
			e := math.Abs(f.Estimate() - 42)
			require.LessOrEqual(t, e, prevErr, "step %d moved away from the target", i)
			prevErr = e
		}
		assert.InDelta(t, 42.0, f.Estimate(), 0.01)
	}
}

func TestScalarConstantStreamStaysPut(t *testing.T) {
	t.Parallel()

	f, err := NewScalar(ConstantModel(0.01, 0.1))
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		f.Filter(42, 0)
	}
	assert.InDelta(t, 42.0, f.Estimate(), 0.01)
}

func TestScalarControlInput(t *testing.T) {
	t.Parallel()

	f, err := NewScalar(ScalarConfig{R: 0.5, Q: 1, A: 1, B: 2, C: 1})
	require.NoError(t, err)

	f.Filter(0, 0)
	// The prediction A·x + B·u = 5 agrees with the measurement, so the
	// innovation is zero.
	got := f.Filter(5, 2.5)
	assert.InDelta(t, 5.0, got, 1e-12)

	got = f.Filter(0, 0)
	assert.Less(t, got, 5.0)
}

func TestScalarReset(t *testing.T) {
	t.Parallel()

	f, err := NewScalar(DefaultScalarConfig())
	require.NoError(t, err)

	f.Filter(3, 0)
	f.Filter(4, 0)
	f.Reset()

	assert.False(t, f.Initialized())
	assert.True(t, math.IsNaN(f.Covariance()))
	assert.Equal(t, 7.0, f.Filter(7, 0))
}
