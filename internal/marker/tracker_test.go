package marker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerReportsSpeedBetweenConsecutiveDetections(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(DefaultCamera())
	require.NoError(t, err)

	first := tr.Track(square(640, 360, 100, t0))
	assert.Nil(t, first.LateralSpeedPx)

	second := tr.Track(square(660, 360, 100, t0.Add(200*time.Millisecond)))
	require.NotNil(t, second.LateralSpeedPx)
	assert.InDelta(t, 100.0, *second.LateralSpeedPx, 1e-9)
	require.NotNil(t, second.ApproachSpeed)
	assert.InDelta(t, 0.0, *second.ApproachSpeed, 1e-9)
}

func TestTrackerLossKeepsBaselineAndSuppressesSpeedOnReacquire(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(DefaultCamera())
	require.NoError(t, err)

	tr.Track(square(640, 360, 100, t0))
	baseline := tr.Previous()
	require.NotNil(t, baseline)

	for i := 1; i <= 5; i++ {
		res := tr.Track(Observation{Timestamp: t0.Add(time.Duration(i) * 100 * time.Millisecond)})
		assert.False(t, res.Detected)
		assert.Equal(t, baseline, tr.Previous(), "tick %d changed the speed baseline", i)
	}

	reacquired := tr.Track(square(700, 360, 90, t0.Add(600*time.Millisecond)))
	assert.True(t, reacquired.Detected)
	assert.Nil(t, reacquired.ApproachSpeed)
	assert.Nil(t, reacquired.LateralSpeedPx)
	assert.Nil(t, reacquired.LateralSpeed)

	next := tr.Track(square(710, 360, 90, t0.Add(700*time.Millisecond)))
	require.NotNil(t, next.LateralSpeedPx)
	assert.InDelta(t, 100.0, *next.LateralSpeedPx, 1e-9)
}

func TestTrackerReset(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(DefaultCamera())
	require.NoError(t, err)
	tr.Track(square(640, 360, 100, t0))
	tr.Reset()
	assert.Nil(t, tr.Previous())

	res := tr.Track(square(650, 360, 100, t0.Add(time.Second)))
	assert.Nil(t, res.LateralSpeedPx)
}

func TestNewTrackerValidatesCamera(t *testing.T) {
	t.Parallel()

	cam := DefaultCamera()
	cam.FocalLengthPx = 0
	_, err := NewTracker(cam)
	assert.Error(t, err)
}
