// Package quality scores a single pose estimate against a technique's ideal
// ranges. Scoring is pure: the same pose and parameters always give the
// same result.
package quality

import (
	"math"

	"github.com/banshee-data/weldcoach/internal/fusion"
	"github.com/banshee-data/weldcoach/internal/technique"
)

// Breakdown holds the component sub-scores and their weighted sum, each on
// a 0-100 scale.
type Breakdown struct {
	Angle     float64 `json:"angle"`
	Distance  float64 `json:"distance"`
	Speed     float64 `json:"speed"`
	Stability float64 `json:"stability"`
	Overall   float64 `json:"overall"`
}

// ComponentScore is 100 inside r, 100·v/min below it and 100·max/v above
// it, clamped to [0, 100]. Non-finite values score 0.
func ComponentScore(v float64, r technique.Range) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	switch {
	case r.Contains(v):
		return 100
	case v < r.Min:
		if r.Min <= 0 {
			return 0
		}
		return clamp(100 * v / r.Min)
	default:
		if v <= 0 {
			return 0
		}
		return clamp(100 * r.Max / v)
	}
}

// Evaluate scores each component of pose. The work angle is the pitch and
// the travel speed the unsigned lateral speed. Until a speed has been
// measured it scores as the range midpoint.
func Evaluate(pose fusion.PoseEstimate, p technique.Parameters) Breakdown {
	speed := pose.TravelSpeed()
	if !pose.SpeedKnown {
		speed = p.Speed.Midpoint()
	}

	b := Breakdown{
		Angle:     ComponentScore(pose.Angle.Pitch, p.Angle),
		Distance:  ComponentScore(pose.Distance, p.Distance),
		Speed:     ComponentScore(speed, p.Speed),
		Stability: clamp(pose.Stability),
	}
	w := p.Weights
	b.Overall = clamp(b.Angle*w.Angle + b.Distance*w.Distance + b.Speed*w.Speed + b.Stability*w.Stability)
	return b
}

// Score returns the overall 0-100 quality of pose.
func Score(pose fusion.PoseEstimate, p technique.Parameters) float64 {
	return Evaluate(pose, p).Overall
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
