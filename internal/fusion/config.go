package fusion

import (
	"fmt"

	"github.com/banshee-data/weldcoach/internal/config"
	"github.com/banshee-data/weldcoach/internal/kalman"
)

// Config holds the filter tuning and tracking policy of a Pipeline.
type Config struct {
	Angle    kalman.ScalarConfig // pitch, yaw and roll filters
	Distance kalman.ScalarConfig
	Velocity kalman.VectorConfig // 3-state motion filter

	// RotationControlGain scales the rotation rate (deg/s) into a control
	// input for the motion filter. Zero disables the control term.
	RotationControlGain float64

	// StaleAfterTicks consecutive ticks without a marker report Lost.
	StaleAfterTicks int

	// VibrationWindow is the number of smoothed motion vectors in the
	// vibration RMS.
	VibrationWindow int
}

// DefaultConfig mirrors config/tuning.defaults.json.
func DefaultConfig() Config {
	return Config{
		Angle:           kalman.ConstantModel(0.01, 0.1),
		Distance:        kalman.ConstantModel(0.05, 0.2),
		Velocity:        kalman.DiagonalConfig(3, 0.01, 0.1),
		StaleAfterTicks: 10,
		VibrationWindow: 30,
	}
}

// ConfigFromTuning builds a Config from the tuning file, using defaults for
// unset keys.
func ConfigFromTuning(t *config.TuningConfig) Config {
	if t == nil {
		t = config.EmptyTuningConfig()
	}
	return Config{
		Angle:               kalman.ConstantModel(t.GetAngleProcessNoise(), t.GetAngleMeasurementNoise()),
		Distance:            kalman.ConstantModel(t.GetDistanceProcessNoise(), t.GetDistanceMeasurementNoise()),
		Velocity:            kalman.DiagonalConfig(3, t.GetVelocityProcessNoise(), t.GetVelocityMeasurementNoise()),
		RotationControlGain: t.GetRotationControlGain(),
		StaleAfterTicks:     t.GetStaleAfterTicks(),
		VibrationWindow:     t.GetVibrationWindow(),
	}
}

// Validate checks the tracking policy. Filter coefficients are validated by
// the filter constructors.
func (c Config) Validate() error {
	if c.StaleAfterTicks < 1 {
		return fmt.Errorf("fusion: stale-after ticks must be at least 1, got %d", c.StaleAfterTicks)
	}
	if c.VibrationWindow < 2 {
		return fmt.Errorf("fusion: vibration window must be at least 2, got %d", c.VibrationWindow)
	}
	if c.Velocity.StateDim != 3 || c.Velocity.MeasurementDim != 3 {
		return fmt.Errorf("fusion: motion filter must be 3x3, got %dx%d", c.Velocity.StateDim, c.Velocity.MeasurementDim)
	}
	return nil
}
