package replay

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/weldcoach/internal/fusion"
	"github.com/banshee-data/weldcoach/internal/marker"
	"github.com/banshee-data/weldcoach/internal/motion"
	"github.com/banshee-data/weldcoach/internal/session"
	"github.com/banshee-data/weldcoach/internal/technique"
	"github.com/banshee-data/weldcoach/internal/timeutil"
	"github.com/banshee-data/weldcoach/internal/trainer"
)

func TestPlayer_HandsOutTicksInOrder(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, tk := range sampleTicks() {
		require.NoError(t, w.Write(tk))
	}

	p := NewPlayer(NewReader(&buf))

	obs, s := p.Latest()
	require.NotNil(t, obs)
	require.NotNil(t, s)
	assert.True(t, obs.Detected)

	obs, s = p.Latest()
	require.NotNil(t, obs)
	assert.False(t, obs.Detected)
	assert.Nil(t, s)

	obs, s = p.Latest()
	assert.Nil(t, obs)
	assert.Nil(t, s)
	assert.False(t, p.Done())

	obs, s = p.Latest()
	assert.Nil(t, obs)
	assert.Nil(t, s)
	assert.True(t, p.Done())
	assert.NoError(t, p.Err())
}

func TestPlayer_StopsOnReadError(t *testing.T) {
	p := NewPlayer(NewReader(strings.NewReader("garbage\n")))
	obs, s := p.Latest()
	assert.Nil(t, obs)
	assert.Nil(t, s)
	assert.True(t, p.Done())
	assert.ErrorIs(t, p.Err(), ErrMalformedTick)
}

func newDriveRunner(t *testing.T, p technique.Parameters) (*trainer.Runner, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Time{})
	r, err := trainer.NewRunner(trainer.Config{
		Camera:       demoCamera(),
		Fusion:       fusion.DefaultConfig(),
		Params:       p,
		TickInterval: interval,
		Clock:        clock,
	})
	require.NoError(t, err)
	return r, clock
}

func TestDrive_CompletesAtTechniqueDuration(t *testing.T) {
	p := technique.MustLookup(technique.MIG)
	r, clock := newDriveRunner(t, p)

	res, err := Drive(r, clock, NewSynthetic(demoCamera(), p, epoch, interval, 11))
	require.NoError(t, err)

	assert.Equal(t, technique.MIG, res.Technique)
	assert.Equal(t, p.Duration, res.Duration)
	assert.Greater(t, res.Samples, 500)
	assert.LessOrEqual(t, res.Samples, 601)
	assert.Equal(t, session.GradeFor(res.MeanQuality), res.Grade)
	assert.True(t, res.StartedAt.Equal(epoch))
	assert.Equal(t, session.Completed, r.Session().State())
}

func TestDrive_StopsWhenInputEnds(t *testing.T) {
	p := technique.MustLookup(technique.TIG)
	r, clock := newDriveRunner(t, p)

	src := NewSynthetic(demoCamera(), p, epoch, interval, 5)
	src.Ticks = 20

	res, err := Drive(r, clock, src)
	require.NoError(t, err)
	assert.Equal(t, 1900*time.Millisecond, res.Duration)
	assert.Equal(t, 20, res.Samples)
	assert.NotEmpty(t, res.ID)
}

func TestDrive_RecordingReplaysIdentically(t *testing.T) {
	p := technique.MustLookup(technique.Electrode)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	live, liveClock := newDriveRunner(t, p)
	live.Tap = func(ts time.Time, obs *marker.Observation, s *motion.Sample) {
		require.NoError(t, w.Write(Tick{Timestamp: ts, Marker: obs, Motion: s}))
	}
	src := NewSynthetic(demoCamera(), p, epoch, interval, 9)
	src.Ticks = 50
	src.DropoutRate = 0.1
	want, err := Drive(live, liveClock, src)
	require.NoError(t, err)
	assert.Equal(t, 50, w.Count())

	replayed, clock := newDriveRunner(t, p)
	got, err := Drive(replayed, clock, NewReader(&buf))
	require.NoError(t, err)

	assert.Equal(t, want.Score, got.Score)
	assert.Equal(t, want.Samples, got.Samples)
	assert.Equal(t, want.Duration, got.Duration)
	assert.InDelta(t, want.MeanQuality, got.MeanQuality, 1e-9)
	assert.Equal(t, want.Feedback, got.Feedback)
}

func TestDrive_EmptyRecording(t *testing.T) {
	r, clock := newDriveRunner(t, technique.MustLookup(technique.MIG))
	_, err := Drive(r, clock, NewReader(strings.NewReader("")))
	assert.ErrorIs(t, err, ErrEmptyRecording)
	assert.Equal(t, session.Idle, r.Session().State())
}
