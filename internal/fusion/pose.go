package fusion

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
)

// TrackingStatus describes marker availability at a tick.
type TrackingStatus uint8

const (
	// Searching: the marker has not been seen since the pipeline started.
	Searching TrackingStatus = iota
	// Tracking: the marker was detected this tick.
	Tracking
	// Coasting: the marker is missing but for fewer than the stale
	// threshold; estimates hold at their last values.
	Coasting
	// Lost: the marker has been missing for at least the stale threshold.
	Lost
)

func (s TrackingStatus) String() string {
	switch s {
	case Searching:
		return "searching"
	case Tracking:
		return "tracking"
	case Coasting:
		return "coasting"
	case Lost:
		return "lost"
	}
	return fmt.Sprintf("TrackingStatus(%d)", uint8(s))
}

// Angles are filtered marker angles in degrees. Pitch is the torch work
// angle.
type Angles struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// PoseEstimate is the fused state at one tick.
type PoseEstimate struct {
	Angle         Angles  `json:"angle"`
	Distance      float64 `json:"distance"`       // mm
	ApproachSpeed float64 `json:"approach_speed"` // mm/s, positive when moving away
	LateralSpeed  float64 `json:"lateral_speed"`  // mm/s
	SpeedKnown    bool    `json:"speed_known"`    // false until a speed has been measured

	Velocity   r3.Vector `json:"velocity"`   // smoothed gravity-free acceleration
	Steadiness float64   `json:"steadiness"` // 0-100 from the latest motion sample
	Vibration  float64   `json:"vibration"`  // RMS of Velocity about its window mean

	Stability   float64        `json:"stability"` // 0-100 filter confidence
	Status      TrackingStatus `json:"status"`
	MissedTicks int            `json:"missed_ticks"`
	Timestamp   time.Time      `json:"timestamp"`
}

// TravelSpeed returns the unsigned lateral speed used for scoring.
func (p PoseEstimate) TravelSpeed() float64 { return math.Abs(p.LateralSpeed) }

// Acquired reports whether the marker has been seen at least once.
func (p PoseEstimate) Acquired() bool { return p.Status != Searching }

// Stale reports whether tracking should be re-established.
func (p PoseEstimate) Stale() bool { return p.Status == Lost }

// Stability converts filter variances into a 0-100 confidence figure.
func Stability(angleVariance, distanceVariance float64) float64 {
	if math.IsNaN(angleVariance) || math.IsNaN(distanceVariance) {
		return 0
	}
	s := 100 - angleVariance*100 - distanceVariance*50
	return math.Max(0, math.Min(100, s))
}
