package marker

import (
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// square returns an axis-aligned observation of side px centred at (cx, cy).
func square(cx, cy, side float64, ts time.Time) Observation {
	h := side / 2
	return Observation{
		Corners: [4]r2.Point{
			{X: cx - h, Y: cy - h},
			{X: cx + h, Y: cy - h},
			{X: cx + h, Y: cy + h},
			{X: cx - h, Y: cy + h},
		},
		Detected:  true,
		Timestamp: ts,
	}
}

func TestExtractClosedFormDistance(t *testing.T) {
	t.Parallel()

	cam := DefaultCamera()
	res := Extract(square(640, 360, 100, t0), cam, nil, 0)

	require.True(t, res.Detected)
	require.NotNil(t, res.Distance)
	assert.Equal(t, 800.0, *res.Distance)
	assert.Equal(t, 100.0, res.ApparentSizePx)
	assert.Equal(t, 0.0, res.Yaw)
	assert.Equal(t, 0.0, res.Pitch)
	assert.Equal(t, 0.0, res.Roll)
	assert.Nil(t, res.ApproachSpeed)
	assert.Nil(t, res.LateralSpeed)
}

func TestExtractUsesLargerExtent(t *testing.T) {
	t.Parallel()

	obs := Observation{
		Corners: [4]r2.Point{
			{X: 600, Y: 340}, {X: 650, Y: 340}, {X: 650, Y: 440}, {X: 600, Y: 440},
		},
		Detected: true,
	}
	res := Extract(obs, DefaultCamera(), nil, 0)
	assert.Equal(t, 100.0, res.ApparentSizePx)
	assert.InDelta(t, 800.0, *res.Distance, 1e-9)
}

func TestExtractAnglesAreLinearInOffset(t *testing.T) {
	t.Parallel()

	cam := DefaultCamera()
	cam.MountPitchDeg = 60

	right := Extract(square(1280, 360, 50, t0), cam, nil, 0)
	assert.InDelta(t, 30.0, right.Yaw, 1e-9)
	assert.InDelta(t, 60.0, right.Pitch, 1e-9)

	halfDown := Extract(square(640, 540, 50, t0), cam, nil, 0)
	assert.InDelta(t, 0.0, halfDown.Yaw, 1e-9)
	assert.InDelta(t, 75.0, halfDown.Pitch, 1e-9)
}

func TestExtractRollFromTopEdge(t *testing.T) {
	t.Parallel()

	obs := Observation{
		Corners: [4]r2.Point{
			{X: 600, Y: 300}, {X: 700, Y: 400}, {X: 600, Y: 500}, {X: 500, Y: 400},
		},
		Detected: true,
	}
	res := Extract(obs, DefaultCamera(), nil, 0)
	assert.InDelta(t, 45.0, res.Roll, 1e-9)
}

func TestExtractStandoff(t *testing.T) {
	t.Parallel()

	cam := DefaultCamera()
	cam.StandoffMM = 788
	res := Extract(square(640, 360, 100, t0), cam, nil, 0)
	assert.InDelta(t, 12.0, *res.Distance, 1e-9)
}

func TestExtractIndeterminateDistance(t *testing.T) {
	t.Parallel()

	obs := Observation{Detected: true}
	res := Extract(obs, DefaultCamera(), nil, 0)
	assert.True(t, res.Detected)
	assert.Nil(t, res.Distance)
}

func TestExtractNoMarker(t *testing.T) {
	t.Parallel()

	prev := Extract(square(640, 360, 100, t0), DefaultCamera(), nil, 0)
	res := Extract(Observation{Timestamp: t0}, DefaultCamera(), &prev, 0.1)
	assert.False(t, res.Detected)
	assert.Nil(t, res.Distance)
	assert.Nil(t, res.ApproachSpeed)
	assert.Nil(t, res.LateralSpeedPx)
}

func TestExtractSpeeds(t *testing.T) {
	t.Parallel()

	cam := DefaultCamera()
	prev := Extract(square(640, 360, 100, t0), cam, nil, 0)
	cur := Extract(square(650, 360, 80, t0.Add(100*time.Millisecond)), cam, &prev, 0.1)

	require.NotNil(t, cur.ApproachSpeed)
	assert.InDelta(t, (1000.0-800.0)/0.1, *cur.ApproachSpeed, 1e-9)
	require.NotNil(t, cur.LateralSpeedPx)
	assert.InDelta(t, 100.0, *cur.LateralSpeedPx, 1e-9)
	require.NotNil(t, cur.LateralSpeed)
	// 100 px/s at 1000 mm range with an 800 px focal length.
	assert.InDelta(t, 125.0, *cur.LateralSpeed, 1e-9)
}

func TestExtractIgnoresNonPositiveDt(t *testing.T) {
	t.Parallel()

	prev := Extract(square(640, 360, 100, t0), DefaultCamera(), nil, 0)
	cur := Extract(square(650, 360, 100, t0), DefaultCamera(), &prev, 0)
	assert.Nil(t, cur.ApproachSpeed)
	assert.Nil(t, cur.LateralSpeedPx)
}

func TestCameraValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultCamera().Validate())

	for name, mutate := range map[string]func(*Camera){
		"marker size": func(c *Camera) { c.MarkerSizeMM = 0 },
		"focal":       func(c *Camera) { c.FocalLengthPx = -1 },
		"frame":       func(c *Camera) { c.FrameHeightPx = 0 },
		"view angle":  func(c *Camera) { c.MaxViewAngleDeg = 90 },
	} {
		t.Run(name, func(t *testing.T) {
			cam := DefaultCamera()
			mutate(&cam)
			assert.Error(t, cam.Validate())
		})
	}
}
