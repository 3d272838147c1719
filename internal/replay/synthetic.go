package replay

import (
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/weldcoach/internal/marker"
	"github.com/banshee-data/weldcoach/internal/motion"
	"github.com/banshee-data/weldcoach/internal/technique"
)

// Synthetic generates demo input: the work angle swings sinusoidally
// about AngleMean, the distance about DistanceMean, and the marker sweeps
// across the frame at Speed. Output is deterministic for a given seed.
type Synthetic struct {
	Camera   marker.Camera
	Start    time.Time
	Interval time.Duration
	Ticks    int // 0 generates forever

	AngleMean         float64 // degrees
	AngleAmplitude    float64
	AnglePeriod       time.Duration // angle = mean + amp·sin(t/period)
	DistanceMean      float64       // mm
	DistanceAmplitude float64
	DistancePeriod    time.Duration // distance = mean + amp·cos(t/period)
	Speed             float64       // mm/s

	AccelJitter float64 // m/s² standard deviation per axis
	GyroJitter  float64 // deg/s standard deviation per axis
	DropoutRate float64 // probability a frame has no marker

	i   int
	x   float64
	dir float64
	rng *rand.Rand
}

// NewSynthetic returns a generator centred on the ranges of p that runs for
// the technique's session duration.
func NewSynthetic(cam marker.Camera, p technique.Parameters, start time.Time, interval time.Duration, seed int64) *Synthetic {
	return &Synthetic{
		Camera:            cam,
		Start:             start,
		Interval:          interval,
		Ticks:             int(p.Duration/interval) + 1,
		AngleMean:         p.Angle.Midpoint(),
		AngleAmplitude:    p.Angle.Max - p.Angle.Min,
		AnglePeriod:       time.Second,
		DistanceMean:      p.Distance.Midpoint(),
		DistanceAmplitude: (p.Distance.Max - p.Distance.Min) / 2,
		DistancePeriod:    800 * time.Millisecond,
		Speed:             p.Speed.Midpoint(),
		AccelJitter:       0.05,
		GyroJitter:        0.5,
		rng:               rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next tick, or io.EOF once Ticks have been generated.
func (s *Synthetic) Next() (Tick, error) {
	if s.Ticks > 0 && s.i >= s.Ticks {
		return Tick{}, io.EOF
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}
	if s.dir == 0 {
		s.dir = 1
		s.x = s.Camera.FrameWidthPx / 2
	}

	ts := s.Start.Add(time.Duration(s.i) * s.Interval)
	elapsed := float64(s.i) * s.Interval.Seconds()
	first := s.i == 0
	s.i++

	angle := s.AngleMean + s.AngleAmplitude*math.Sin(elapsed/s.AnglePeriod.Seconds())
	dist := s.DistanceMean + s.DistanceAmplitude*math.Cos(elapsed/s.DistancePeriod.Seconds())

	if !first {
		s.sweep(dist)
	}

	obs := ObservationAt(s.Camera, angle, dist, s.x, ts)
	if s.DropoutRate > 0 && s.rng.Float64() < s.DropoutRate {
		obs = marker.Observation{Timestamp: ts}
	}

	sample := motion.Sample{
		Timestamp: ts,
		Acceleration: r3.Vector{
			X: s.rng.NormFloat64() * s.AccelJitter,
			Y: s.rng.NormFloat64() * s.AccelJitter,
			Z: motion.StandardGravity + s.rng.NormFloat64()*s.AccelJitter,
		},
		RotationRate: r3.Vector{
			X: s.rng.NormFloat64() * s.GyroJitter,
			Y: s.rng.NormFloat64() * s.GyroJitter,
			Z: s.rng.NormFloat64() * s.GyroJitter,
		},
	}
	return Tick{Timestamp: ts, Marker: &obs, Motion: &sample}, nil
}

// sweep moves the marker centre one interval at Speed and bounces it off
// the outer tenths of the frame.
func (s *Synthetic) sweep(dist float64) {
	rangeMM := dist + s.Camera.StandoffMM
	if rangeMM <= 0 {
		return
	}
	step := s.Speed * s.Camera.FocalLengthPx / rangeMM * s.Interval.Seconds()
	lo, hi := s.Camera.FrameWidthPx*0.1, s.Camera.FrameWidthPx*0.9
	s.x += s.dir * step
	if s.x > hi {
		s.x = 2*hi - s.x
		s.dir = -1
	}
	if s.x < lo {
		s.x = 2*lo - s.x
		s.dir = 1
	}
}

// ObservationAt builds the axis-aligned marker corners that cam would
// report for the given work angle (pitch, degrees), tip distance (mm) and
// horizontal centre (px). It inverts marker.Extract; a distance at or
// behind the camera yields an undetected frame.
func ObservationAt(cam marker.Camera, pitch, distance, centerX float64, ts time.Time) marker.Observation {
	rangeMM := distance + cam.StandoffMM
	if rangeMM <= 0 {
		return marker.Observation{Timestamp: ts}
	}
	side := cam.MarkerSizeMM * cam.FocalLengthPx / rangeMM
	halfH := cam.FrameHeightPx / 2
	cy := halfH + (pitch-cam.MountPitchDeg)/cam.MaxViewAngleDeg*halfH

	h := side / 2
	return marker.Observation{
		Detected:  true,
		Timestamp: ts,
		Corners: [4]r2.Point{
			marker.TopLeft:     {X: centerX - h, Y: cy - h},
			marker.TopRight:    {X: centerX + h, Y: cy - h},
			marker.BottomRight: {X: centerX + h, Y: cy + h},
			marker.BottomLeft:  {X: centerX - h, Y: cy + h},
		},
	}
}
