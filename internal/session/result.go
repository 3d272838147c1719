package session

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/weldcoach/internal/quality"
	"github.com/banshee-data/weldcoach/internal/technique"
)

// Averages are per-component means over the retained samples.
type Averages struct {
	Angle      float64 `json:"angle"`    // work angle, degrees
	Distance   float64 `json:"distance"` // mm
	Speed      float64 `json:"speed"`    // travel speed, mm/s, over samples with a known speed
	SpeedKnown bool    `json:"speed_known"`
	Stability  float64 `json:"stability"`
	Vibration  float64 `json:"vibration"`

	Scores quality.Breakdown `json:"scores"` // mean component sub-scores
}

// Result is the immutable summary of a completed session.
type Result struct {
	ID              string              `json:"id"`
	Technique       technique.Technique `json:"technique"`
	Duration        time.Duration       `json:"duration"`
	Score           int                 `json:"score"`
	MeanQuality     float64             `json:"mean_quality"`
	TimeInTolerance float64             `json:"time_in_tolerance"` // fraction of samples above the tolerance quality
	Grade           Grade               `json:"grade"`
	Averages        Averages            `json:"averages"`
	Feedback        []string            `json:"feedback"`
	Samples         int                 `json:"samples"`
	StartedAt       time.Time           `json:"started_at"`
	CompletedAt     time.Time           `json:"completed_at"`
}

func (r Result) clone() Result {
	r.Feedback = append([]string(nil), r.Feedback...)
	return r
}

const noMetricsFeedback = "No metrics were recorded."

func summarize(p technique.Parameters, samples []Sample, tolerance float64) Result {
	r := Result{Technique: p.Technique, Samples: len(samples)}
	if len(samples) == 0 {
		r.Grade = GradeF
		r.Feedback = []string{noMetricsFeedback}
		return r
	}

	var sumQ float64
	var inTol, speedN int
	var avg Averages
	for _, s := range samples {
		sumQ += s.Quality
		if s.Quality > tolerance {
			inTol++
		}
		avg.Angle += s.Pose.Angle.Pitch
		avg.Distance += s.Pose.Distance
		avg.Stability += s.Pose.Stability
		avg.Vibration += s.Pose.Vibration
		if s.Pose.SpeedKnown {
			avg.Speed += s.Pose.TravelSpeed()
			speedN++
		}
		avg.Scores.Angle += s.Breakdown.Angle
		avg.Scores.Distance += s.Breakdown.Distance
		avg.Scores.Speed += s.Breakdown.Speed
		avg.Scores.Stability += s.Breakdown.Stability
		avg.Scores.Overall += s.Breakdown.Overall
	}

	n := float64(len(samples))
	avg.Angle /= n
	avg.Distance /= n
	avg.Stability /= n
	avg.Vibration /= n
	if speedN > 0 {
		avg.Speed /= float64(speedN)
		avg.SpeedKnown = true
	}
	avg.Scores.Angle /= n
	avg.Scores.Distance /= n
	avg.Scores.Speed /= n
	avg.Scores.Stability /= n
	avg.Scores.Overall /= n

	r.MeanQuality = sumQ / n
	r.Score = int(math.Round(r.MeanQuality))
	r.TimeInTolerance = float64(inTol) / n
	r.Grade = GradeFor(r.MeanQuality)
	r.Averages = avg
	r.Feedback = feedback(p, avg, r.Score)
	return r
}

// feedback builds the ordered advice list: an overall verdict, range
// corrections for angle, distance and speed, a steadiness note when
// vibration exceeds the technique tolerance, and the technique tips when
// the score is below 80.
func feedback(p technique.Parameters, avg Averages, score int) []string {
	var out []string
	switch {
	case score >= 80:
		out = append(out, "Excellent work. Technique well executed.")
	case score >= 60:
		out = append(out, "Good effort. Keep practising to improve further.")
	default:
		out = append(out, "Keep practising. Focus on the points below.")
	}

	switch {
	case avg.Angle < p.Angle.Min:
		out = append(out, fmt.Sprintf("Angle too closed (%.0f°). Tilt the torch more, target %s°.", avg.Angle, p.Angle))
	case avg.Angle > p.Angle.Max:
		out = append(out, fmt.Sprintf("Angle too open (%.0f°). Reduce the tilt, target %s°.", avg.Angle, p.Angle))
	}

	switch {
	case avg.Distance < p.Distance.Min:
		out = append(out, fmt.Sprintf("Too close to the work (%.1f mm). Back off slightly, target %s mm.", avg.Distance, p.Distance))
	case avg.Distance > p.Distance.Max:
		out = append(out, fmt.Sprintf("Too far from the work (%.1f mm). Move closer, target %s mm.", avg.Distance, p.Distance))
	}

	if avg.SpeedKnown {
		switch {
		case avg.Speed < p.Speed.Min:
			out = append(out, fmt.Sprintf("Travel too slow (%.1f mm/s). Speed up, target %s mm/s.", avg.Speed, p.Speed))
		case avg.Speed > p.Speed.Max:
			out = append(out, fmt.Sprintf("Travel too fast (%.1f mm/s). Slow down, target %s mm/s.", avg.Speed, p.Speed))
		}
	}

	if avg.Vibration > p.VibrationTolerance {
		out = append(out, "Hold the torch steadier. Hand vibration is above tolerance.")
	}

	if score < 80 {
		out = append(out, p.Tips[:]...)
	}
	return out
}
