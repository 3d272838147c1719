package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	floats := []struct {
		name string
		got  float64
		want float64
	}{
		{"angle_process_noise", cfg.GetAngleProcessNoise(), 0.01},
		{"angle_measurement_noise", cfg.GetAngleMeasurementNoise(), 0.1},
		{"distance_process_noise", cfg.GetDistanceProcessNoise(), 0.05},
		{"distance_measurement_noise", cfg.GetDistanceMeasurementNoise(), 0.2},
		{"velocity_process_noise", cfg.GetVelocityProcessNoise(), 0.01},
		{"velocity_measurement_noise", cfg.GetVelocityMeasurementNoise(), 0.1},
		{"rotation_control_gain", cfg.GetRotationControlGain(), 0},
		{"marker_size_mm", cfg.GetMarkerSizeMM(), 100},
		{"focal_length_px", cfg.GetFocalLengthPx(), 800},
		{"frame_width_px", cfg.GetFrameWidthPx(), 1280},
		{"frame_height_px", cfg.GetFrameHeightPx(), 720},
		{"max_view_angle_deg", cfg.GetMaxViewAngleDeg(), 30},
		{"mount_pitch_deg", cfg.GetMountPitchDeg(), 60},
		{"standoff_mm", cfg.GetStandoffMM(), 0},
		{"tolerance_quality", cfg.GetToleranceQuality(), 80},
	}
	for _, f := range floats {
		if f.got != f.want {
			t.Errorf("%s = %v, want %v", f.name, f.got, f.want)
		}
	}

	if got := cfg.GetStaleAfterTicks(); got != 10 {
		t.Errorf("GetStaleAfterTicks() = %d, want 10", got)
	}
	if got := cfg.GetMarkerHoldTicks(); got != 3 {
		t.Errorf("GetMarkerHoldTicks() = %d, want 3", got)
	}
	if got := cfg.GetVibrationWindow(); got != 30 {
		t.Errorf("GetVibrationWindow() = %d, want 30", got)
	}
	if got := cfg.GetMaxSamples(); got != 1000 {
		t.Errorf("GetMaxSamples() = %d, want 1000", got)
	}
	if got := cfg.GetTickInterval(); got != 100*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 100ms", got)
	}
}

func TestDefaultsFileMatchesAccessors(t *testing.T) {
	file := MustLoadDefaultConfig()
	empty := EmptyTuningConfig()

	if file.AngleProcessNoise == nil || file.TickInterval == nil || file.MaxSamples == nil {
		t.Fatal("defaults file is missing keys")
	}
	if file.GetAngleMeasurementNoise() != empty.GetAngleMeasurementNoise() ||
		file.GetDistanceMeasurementNoise() != empty.GetDistanceMeasurementNoise() ||
		file.GetMountPitchDeg() != empty.GetMountPitchDeg() ||
		file.GetStaleAfterTicks() != empty.GetStaleAfterTicks() ||
		file.GetMarkerHoldTicks() != empty.GetMarkerHoldTicks() ||
		file.GetTickInterval() != empty.GetTickInterval() ||
		file.GetMaxSamples() != empty.GetMaxSamples() {
		t.Error("config/tuning.defaults.json disagrees with built-in defaults")
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bench.json")

	testJSON := `{
  "angle_measurement_noise": 0.4,
  "mount_pitch_deg": 45,
  "stale_after_ticks": 3,
  "tick_interval": "50ms"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetAngleMeasurementNoise(); got != 0.4 {
		t.Errorf("GetAngleMeasurementNoise() = %v, want 0.4", got)
	}
	if got := cfg.GetMountPitchDeg(); got != 45 {
		t.Errorf("GetMountPitchDeg() = %v, want 45", got)
	}
	if got := cfg.GetStaleAfterTicks(); got != 3 {
		t.Errorf("GetStaleAfterTicks() = %d, want 3", got)
	}
	if got := cfg.GetTickInterval(); got != 50*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 50ms", got)
	}
	// Omitted keys keep defaults.
	if got := cfg.GetFocalLengthPx(); got != 800 {
		t.Errorf("GetFocalLengthPx() = %v, want 800", got)
	}
}

func TestLoadTuningConfigRejects(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"extension", "bench.yaml", `{}`, ".json extension"},
		{"syntax", "bad.json", `{"marker_size_mm":`, "failed to parse"},
		{"negative noise", "noise.json", `{"angle_process_noise": -1}`, "angle_process_noise"},
		{"zero noise", "zero.json", `{"angle_process_noise": 0, "angle_measurement_noise": 0}`, "angle_measurement_noise"},
		{"zero focal", "focal.json", `{"focal_length_px": 0}`, "focal_length_px"},
		{"view angle", "view.json", `{"max_view_angle_deg": 95}`, "max_view_angle_deg"},
		{"stale ticks", "stale.json", `{"stale_after_ticks": 0}`, "stale_after_ticks"},
		{"hold", "hold.json", `{"marker_hold_ticks": -1}`, "marker_hold_ticks"},
		{"window", "window.json", `{"vibration_window": 1}`, "vibration_window"},
		{"samples", "samples.json", `{"max_samples": 0}`, "max_samples"},
		{"tolerance", "tol.json", `{"tolerance_quality": 101}`, "tolerance_quality"},
		{"interval", "interval.json", `{"tick_interval": "soon"}`, "tick_interval"},
		{"negative interval", "neg.json", `{"tick_interval": "-5ms"}`, "tick_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadTuningConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfigMissingFile(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
