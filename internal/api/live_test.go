package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/weldcoach/internal/fusion"
	"github.com/banshee-data/weldcoach/internal/monitoring"
	"github.com/banshee-data/weldcoach/internal/quality"
	"github.com/banshee-data/weldcoach/internal/session"
	"github.com/banshee-data/weldcoach/internal/technique"
	"github.com/banshee-data/weldcoach/internal/trainer"
)

func dialFeed(t *testing.T, feed *LiveFeed) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(LoggingMiddleware(feed))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestLiveFeed(t *testing.T) {
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = orig })

	feed := NewLiveFeed()
	feed.Publish(trainer.Update{
		Pose:  fusion.PoseEstimate{Status: fusion.Searching},
		State: session.Running,
	})

	conn := dialFeed(t, feed)

	var first trainer.Frame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "tick", first.Type)
	assert.Equal(t, "running", first.State)
	assert.Nil(t, first.Quality)

	require.Eventually(t, func() bool { return feed.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	sample := session.Sample{Quality: 88, Breakdown: quality.Breakdown{Overall: 88, Angle: 100}}
	feed.Publish(trainer.Update{
		Pose:   fusion.PoseEstimate{Distance: 12, Status: fusion.Tracking},
		Sample: &sample,
		State:  session.Running,
	})
	var tick trainer.Frame
	require.NoError(t, conn.ReadJSON(&tick))
	require.NotNil(t, tick.Quality)
	assert.Equal(t, 88.0, *tick.Quality)
	assert.Equal(t, 100.0, tick.Breakdown.Angle)
	assert.Equal(t, 12.0, tick.Pose.Distance)
	assert.Equal(t, fusion.Tracking, tick.Pose.Status)

	feed.Publish(trainer.Update{
		State:     session.Completed,
		Completed: true,
		Result:    &session.Result{ID: "live", Technique: technique.TIG, Score: 91},
	})
	var done trainer.Frame
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, "result", done.Type)
	require.NotNil(t, done.Result)
	assert.Equal(t, 91, done.Result.Score)

	feed.Close()
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Zero(t, feed.Clients())
}

func TestLiveFeedRefusesAfterClose(t *testing.T) {
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = orig })

	feed := NewLiveFeed()
	feed.Close()
	conn := dialFeed(t, feed)
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
