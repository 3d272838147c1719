// Package report renders a completed session as PNG time-series plots and
// an interactive HTML page.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/weldcoach/internal/session"
	"github.com/banshee-data/weldcoach/internal/technique"
)

// ErrNoSamples is returned when a session has nothing to plot.
var ErrNoSamples = errors.New("report: session has no samples")

var (
	seriesColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	boundColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// series is one plotted metric.
type series struct {
	name  string
	label string
	value func(session.Sample) (float64, bool)
	band  *technique.Range
}

func metrics(p technique.Parameters) []series {
	return []series{
		{
			name:  "quality",
			label: "Quality (0-100)",
			value: func(s session.Sample) (float64, bool) { return s.Quality, true },
		},
		{
			name:  "angle",
			label: "Work angle (°)",
			value: func(s session.Sample) (float64, bool) { return s.Pose.Angle.Pitch, true },
			band:  &p.Angle,
		},
		{
			name:  "distance",
			label: "Distance (mm)",
			value: func(s session.Sample) (float64, bool) { return s.Pose.Distance, true },
			band:  &p.Distance,
		},
		{
			name:  "speed",
			label: "Travel speed (mm/s)",
			value: func(s session.Sample) (float64, bool) { return s.Pose.TravelSpeed(), s.Pose.SpeedKnown },
			band:  &p.Speed,
		},
	}
}

// PlotSession writes one PNG per metric into dir, named
// <session id>_<metric>.png, and returns the paths written.
func PlotSession(dir string, res session.Result, samples []session.Sample, p technique.Parameters) ([]string, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}

	t0 := samples[0].Timestamp
	var paths []string
	for _, m := range metrics(p) {
		pts := make(plotter.XYs, 0, len(samples))
		for _, s := range samples {
			if v, ok := m.value(s); ok {
				pts = append(pts, plotter.XY{X: s.Timestamp.Sub(t0).Seconds(), Y: v})
			}
		}
		if len(pts) == 0 {
			continue
		}

		pl := plot.New()
		pl.Title.Text = fmt.Sprintf("%s %s - %s", res.Technique, res.ID, m.label)
		pl.X.Label.Text = "Time (s)"
		pl.Y.Label.Text = m.label

		line, err := plotter.NewLine(pts)
		if err != nil {
			return paths, err
		}
		line.Color = seriesColor
		line.Width = vg.Points(1)
		pl.Add(line)
		pl.Legend.Add(m.name, line)

		if m.band != nil {
			last := pts[len(pts)-1].X
			var bandLine *plotter.Line
			for _, bound := range []float64{m.band.Min, m.band.Max} {
				b, err := plotter.NewLine(plotter.XYs{{X: 0, Y: bound}, {X: last, Y: bound}})
				if err != nil {
					return paths, err
				}
				b.Color = boundColor
				b.Width = vg.Points(0.5)
				b.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
				pl.Add(b)
				bandLine = b
			}
			pl.Legend.Add(fmt.Sprintf("target %s", m.band), bandLine)
		}

		pl.Legend.Top = true
		pl.Legend.Left = false
		pl.Legend.XOffs = -10
		pl.Legend.YOffs = -10

		path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", fileStem(res.ID), m.name))
		if err := pl.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("failed to save %s plot: %w", m.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// fileStem maps a session ID onto a safe file name component: runs of
// characters outside [A-Za-z0-9._-] become one underscore.
func fileStem(id string) string {
	var b strings.Builder
	under := false
	for _, r := range id {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-'):
			b.WriteRune(r)
			under = false
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "session"
	}
	return out
}
