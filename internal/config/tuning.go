package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the flat tuning file shared by the fusion pipeline and the
// session aggregator. Every field is optional; Get* accessors fall back to
// the built-in defaults for omitted fields.
type TuningConfig struct {
	// Scalar filters for marker pitch, yaw and roll
	AngleProcessNoise     *float64 `json:"angle_process_noise,omitempty"`
	AngleMeasurementNoise *float64 `json:"angle_measurement_noise,omitempty"`

	// Scalar filter for marker distance
	DistanceProcessNoise     *float64 `json:"distance_process_noise,omitempty"`
	DistanceMeasurementNoise *float64 `json:"distance_measurement_noise,omitempty"`

	// Vector filter for the motion sensor
	VelocityProcessNoise     *float64 `json:"velocity_process_noise,omitempty"`
	VelocityMeasurementNoise *float64 `json:"velocity_measurement_noise,omitempty"`
	RotationControlGain      *float64 `json:"rotation_control_gain,omitempty"`

	// Camera and marker geometry
	MarkerSizeMM    *float64 `json:"marker_size_mm,omitempty"`
	FocalLengthPx   *float64 `json:"focal_length_px,omitempty"`
	FrameWidthPx    *float64 `json:"frame_width_px,omitempty"`
	FrameHeightPx   *float64 `json:"frame_height_px,omitempty"`
	MaxViewAngleDeg *float64 `json:"max_view_angle_deg,omitempty"`
	MountPitchDeg   *float64 `json:"mount_pitch_deg,omitempty"`
	StandoffMM      *float64 `json:"standoff_mm,omitempty"`

	// Tracking
	StaleAfterTicks *int `json:"stale_after_ticks,omitempty"`
	MarkerHoldTicks *int `json:"marker_hold_ticks,omitempty"`
	VibrationWindow *int `json:"vibration_window,omitempty"`

	// Session
	TickInterval     *string  `json:"tick_interval,omitempty"` // duration string like "100ms"
	MaxSamples       *int     `json:"max_samples,omitempty"`
	ToleranceQuality *float64 `json:"tolerance_quality,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. It panics if the file cannot be found and is
// intended for tests.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set.
func (c *TuningConfig) Validate() error {
	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"angle_process_noise", c.AngleProcessNoise},
		{"angle_measurement_noise", c.AngleMeasurementNoise},
		{"distance_process_noise", c.DistanceProcessNoise},
		{"distance_measurement_noise", c.DistanceMeasurementNoise},
		{"velocity_process_noise", c.VelocityProcessNoise},
		{"velocity_measurement_noise", c.VelocityMeasurementNoise},
		{"standoff_mm", c.StandoffMM},
	}
	for _, f := range nonNegative {
		if f.v != nil && (*f.v < 0 || !finite(*f.v)) {
			return fmt.Errorf("%s must be a non-negative number, got %v", f.name, *f.v)
		}
	}
	noisePairs := []struct {
		name             string
		process, measure float64
	}{
		{"angle", c.GetAngleProcessNoise(), c.GetAngleMeasurementNoise()},
		{"distance", c.GetDistanceProcessNoise(), c.GetDistanceMeasurementNoise()},
		{"velocity", c.GetVelocityProcessNoise(), c.GetVelocityMeasurementNoise()},
	}
	for _, p := range noisePairs {
		if p.process == 0 && p.measure == 0 {
			return fmt.Errorf("%s_process_noise and %s_measurement_noise cannot both be zero", p.name, p.name)
		}
	}

	positive := []struct {
		name string
		v    *float64
	}{
		{"marker_size_mm", c.MarkerSizeMM},
		{"focal_length_px", c.FocalLengthPx},
		{"frame_width_px", c.FrameWidthPx},
		{"frame_height_px", c.FrameHeightPx},
	}
	for _, f := range positive {
		if f.v != nil && (*f.v <= 0 || !finite(*f.v)) {
			return fmt.Errorf("%s must be positive, got %v", f.name, *f.v)
		}
	}

	if c.MaxViewAngleDeg != nil && (*c.MaxViewAngleDeg <= 0 || *c.MaxViewAngleDeg >= 90) {
		return fmt.Errorf("max_view_angle_deg must be between 0 and 90, got %v", *c.MaxViewAngleDeg)
	}
	if c.MountPitchDeg != nil && !finite(*c.MountPitchDeg) {
		return fmt.Errorf("mount_pitch_deg must be finite")
	}
	if c.RotationControlGain != nil && !finite(*c.RotationControlGain) {
		return fmt.Errorf("rotation_control_gain must be finite")
	}

	if c.StaleAfterTicks != nil && *c.StaleAfterTicks < 1 {
		return fmt.Errorf("stale_after_ticks must be at least 1, got %d", *c.StaleAfterTicks)
	}
	if c.MarkerHoldTicks != nil && *c.MarkerHoldTicks < 0 {
		return fmt.Errorf("marker_hold_ticks must not be negative, got %d", *c.MarkerHoldTicks)
	}
	if c.VibrationWindow != nil && *c.VibrationWindow < 2 {
		return fmt.Errorf("vibration_window must be at least 2, got %d", *c.VibrationWindow)
	}
	if c.MaxSamples != nil && *c.MaxSamples < 1 {
		return fmt.Errorf("max_samples must be at least 1, got %d", *c.MaxSamples)
	}
	if c.ToleranceQuality != nil && (*c.ToleranceQuality < 0 || *c.ToleranceQuality > 100) {
		return fmt.Errorf("tolerance_quality must be between 0 and 100, got %v", *c.ToleranceQuality)
	}

	if c.TickInterval != nil && *c.TickInterval != "" {
		d, err := time.ParseDuration(*c.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid tick_interval '%s': %w", *c.TickInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_interval must be positive, got %s", d)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// GetAngleProcessNoise returns angle_process_noise or 0.01.
func (c *TuningConfig) GetAngleProcessNoise() float64 { return getFloat(c.AngleProcessNoise, 0.01) }

// GetAngleMeasurementNoise returns angle_measurement_noise or 0.1.
func (c *TuningConfig) GetAngleMeasurementNoise() float64 {
	return getFloat(c.AngleMeasurementNoise, 0.1)
}

// GetDistanceProcessNoise returns distance_process_noise or 0.05.
func (c *TuningConfig) GetDistanceProcessNoise() float64 {
	return getFloat(c.DistanceProcessNoise, 0.05)
}

// GetDistanceMeasurementNoise returns distance_measurement_noise or 0.2.
func (c *TuningConfig) GetDistanceMeasurementNoise() float64 {
	return getFloat(c.DistanceMeasurementNoise, 0.2)
}

// GetVelocityProcessNoise returns velocity_process_noise or 0.01.
func (c *TuningConfig) GetVelocityProcessNoise() float64 {
	return getFloat(c.VelocityProcessNoise, 0.01)
}

// GetVelocityMeasurementNoise returns velocity_measurement_noise or 0.1.
func (c *TuningConfig) GetVelocityMeasurementNoise() float64 {
	return getFloat(c.VelocityMeasurementNoise, 0.1)
}

// GetRotationControlGain returns rotation_control_gain or 0 (rotation not
// applied as control input).
func (c *TuningConfig) GetRotationControlGain() float64 { return getFloat(c.RotationControlGain, 0) }

// Camera and marker accessors. Mount pitch defaults to 60 degrees, the
// bench rig's camera tilt.
func (c *TuningConfig) GetMarkerSizeMM() float64    { return getFloat(c.MarkerSizeMM, 100) }
func (c *TuningConfig) GetFocalLengthPx() float64   { return getFloat(c.FocalLengthPx, 800) }
func (c *TuningConfig) GetFrameWidthPx() float64    { return getFloat(c.FrameWidthPx, 1280) }
func (c *TuningConfig) GetFrameHeightPx() float64   { return getFloat(c.FrameHeightPx, 720) }
func (c *TuningConfig) GetMaxViewAngleDeg() float64 { return getFloat(c.MaxViewAngleDeg, 30) }
func (c *TuningConfig) GetMountPitchDeg() float64   { return getFloat(c.MountPitchDeg, 60) }
func (c *TuningConfig) GetStandoffMM() float64      { return getFloat(c.StandoffMM, 0) }

// GetStaleAfterTicks returns how many consecutive ticks without a marker
// mark tracking as lost. Default 10.
func (c *TuningConfig) GetStaleAfterTicks() int { return getInt(c.StaleAfterTicks, 10) }

// GetMarkerHoldTicks returns how many ticks the last detector frame is
// reused for while no newer frame arrives. Default 3.
func (c *TuningConfig) GetMarkerHoldTicks() int { return getInt(c.MarkerHoldTicks, 3) }

// GetVibrationWindow returns the number of motion samples in the vibration
// RMS window. Default 30.
func (c *TuningConfig) GetVibrationWindow() int { return getInt(c.VibrationWindow, 30) }

// GetTickInterval parses tick_interval, defaulting to 100ms.
func (c *TuningConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// GetMaxSamples returns the session sample window size. Default 1000.
func (c *TuningConfig) GetMaxSamples() int { return getInt(c.MaxSamples, 1000) }

// GetToleranceQuality returns the quality above which a sample counts as in
// tolerance. Default 80.
func (c *TuningConfig) GetToleranceQuality() float64 { return getFloat(c.ToleranceQuality, 80) }
