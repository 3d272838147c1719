// Package marker converts the four detected corners of a square fiducial
// marker into a planar-approximation distance and orientation. Corner
// detection itself happens upstream; this package only consumes its output.
package marker

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r2"
)

// Corner indices in an Observation.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// Observation is one frame's output from the marker detector.
type Observation struct {
	Corners   [4]r2.Point // TopLeft, TopRight, BottomRight, BottomLeft in pixels
	Detected  bool
	Timestamp time.Time
}

// Camera holds the physical marker size and the camera intrinsics used by
// the pinhole distance estimate.
type Camera struct {
	MarkerSizeMM    float64 // Edge length of the printed marker
	FocalLengthPx   float64 // Focal length estimate in pixels
	FrameWidthPx    float64
	FrameHeightPx   float64
	MaxViewAngleDeg float64 // Angle reported at the frame edge (±)
	MountPitchDeg   float64 // Pitch reported when the marker is centred
	StandoffMM      float64 // Camera-to-tip offset subtracted from range
}

// DefaultCamera returns a 100 mm marker seen by an 800 px focal length
// camera at 1280x720 with no mount offsets.
func DefaultCamera() Camera {
	return Camera{
		MarkerSizeMM:    100,
		FocalLengthPx:   800,
		FrameWidthPx:    1280,
		FrameHeightPx:   720,
		MaxViewAngleDeg: 30,
	}
}

// Validate checks that every scale the geometry divides by is positive.
func (c Camera) Validate() error {
	if c.MarkerSizeMM <= 0 {
		return fmt.Errorf("marker size must be positive, got %g", c.MarkerSizeMM)
	}
	if c.FocalLengthPx <= 0 {
		return fmt.Errorf("focal length must be positive, got %g", c.FocalLengthPx)
	}
	if c.FrameWidthPx <= 0 || c.FrameHeightPx <= 0 {
		return fmt.Errorf("frame size must be positive, got %gx%g", c.FrameWidthPx, c.FrameHeightPx)
	}
	if c.MaxViewAngleDeg <= 0 || c.MaxViewAngleDeg >= 90 {
		return fmt.Errorf("max view angle must be in (0, 90), got %g", c.MaxViewAngleDeg)
	}
	return nil
}

// Result is the unfiltered geometry of one observation. Angles and centre
// are only meaningful when Detected is true. Nil pointers mark values that
// could not be determined for this frame.
type Result struct {
	Detected bool

	Distance       *float64 // mm, nil when the apparent size is not positive
	ApparentSizePx float64

	Pitch float64 // degrees
	Yaw   float64 // degrees
	Roll  float64 // degrees

	CenterX float64 // px
	CenterY float64 // px

	ApproachSpeed  *float64 // mm/s, positive when moving away
	LateralSpeedPx *float64 // px/s along the image x axis
	LateralSpeed   *float64 // mm/s at the marker's depth

	Timestamp time.Time
}

// Extract computes the geometry of obs. previous is the last detected
// result (nil when there is none, e.g. right after the marker was
// reacquired) and dt the seconds since it. Speeds are only reported when
// previous is present and dt is positive.
func Extract(obs Observation, cam Camera, previous *Result, dt float64) Result {
	res := Result{Timestamp: obs.Timestamp}
	if !obs.Detected {
		return res
	}
	res.Detected = true

	minX, maxX := obs.Corners[0].X, obs.Corners[0].X
	minY, maxY := obs.Corners[0].Y, obs.Corners[0].Y
	var center r2.Point
	for _, p := range obs.Corners {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
		center = center.Add(p)
	}
	center = center.Mul(0.25)
	res.CenterX, res.CenterY = center.X, center.Y

	res.ApparentSizePx = math.Max(maxX-minX, maxY-minY)

	var rangeMM float64
	if res.ApparentSizePx > 0 {
		rangeMM = cam.MarkerSizeMM * cam.FocalLengthPx / res.ApparentSizePx
		d := rangeMM - cam.StandoffMM
		res.Distance = &d
	}

	halfW, halfH := cam.FrameWidthPx/2, cam.FrameHeightPx/2
	res.Yaw = (center.X - halfW) / halfW * cam.MaxViewAngleDeg
	res.Pitch = cam.MountPitchDeg + (center.Y-halfH)/halfH*cam.MaxViewAngleDeg

	top := obs.Corners[TopRight].Sub(obs.Corners[TopLeft])
	res.Roll = math.Atan2(top.Y, top.X) * 180 / math.Pi

	if previous == nil || !previous.Detected || !(dt > 0) || math.IsInf(dt, 0) {
		return res
	}

	if res.Distance != nil && previous.Distance != nil {
		v := (*res.Distance - *previous.Distance) / dt
		res.ApproachSpeed = &v
	}

	px := (res.CenterX - previous.CenterX) / dt
	res.LateralSpeedPx = &px
	if rangeMM > 0 {
		mm := px * rangeMM / cam.FocalLengthPx
		res.LateralSpeed = &mm
	}
	return res
}
