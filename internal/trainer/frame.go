package trainer

import (
	"github.com/banshee-data/weldcoach/internal/fusion"
	"github.com/banshee-data/weldcoach/internal/quality"
	"github.com/banshee-data/weldcoach/internal/session"
)

// Frame is the wire form of an Update for live consumers. Type is "tick"
// for every update and "result" on the tick the session completes.
type Frame struct {
	Type      string              `json:"type"`
	State     string              `json:"state"`
	Pose      fusion.PoseEstimate `json:"pose"`
	Quality   *float64            `json:"quality,omitempty"`
	Breakdown *quality.Breakdown  `json:"breakdown,omitempty"`
	Result    *session.Result     `json:"result,omitempty"`
}

// Frame converts u for publishing.
func (u Update) Frame() Frame {
	f := Frame{Type: "tick", State: u.State.String(), Pose: u.Pose}
	if u.Sample != nil {
		q, b := u.Sample.Quality, u.Sample.Breakdown
		f.Quality, f.Breakdown = &q, &b
	}
	if u.Result != nil {
		f.Type = "result"
		f.Result = u.Result
	}
	return f
}
