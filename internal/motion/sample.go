// Package motion models the handheld device's inertial samples and reads
// them from a line-oriented IMU stream.
package motion

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
)

// StandardGravity in m/s².
const StandardGravity = 9.80665

// Sample is one reading from the motion sensor. Acceleration includes
// gravity. RotationRate is in degrees per second about the device x, y and
// z axes.
type Sample struct {
	Timestamp    time.Time
	Acceleration r3.Vector
	RotationRate r3.Vector
	Absolute     bool // orientation is referenced to magnetic north
}

// LinearAcceleration removes one standard gravity along the measured
// direction. A device at rest reads approximately zero.
func (s Sample) LinearAcceleration() r3.Vector {
	a := s.Acceleration
	n := a.Norm()
	if n == 0 {
		return a
	}
	return a.Sub(a.Mul(StandardGravity / n))
}

// Steadiness scores how still the device is on a 0-100 scale, penalising
// linear acceleration ten points per m/s² and rotation five points per
// deg/s.
func (s Sample) Steadiness() float64 {
	v := 100 - (s.LinearAcceleration().Norm()*10 + s.RotationRate.Norm()*5)
	return math.Max(0, math.Min(100, v))
}

// finite reports whether every component of the sample is a real number.
func (s Sample) finite() bool {
	for _, v := range []float64{
		s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z,
		s.RotationRate.X, s.RotationRate.Y, s.RotationRate.Z,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
