package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/weldcoach/internal/session"
	"github.com/banshee-data/weldcoach/internal/technique"
)

// Spread summarises how consistently a metric was held.
type Spread struct {
	Mean   float64
	StdDev float64
}

// Consistency returns the mean and standard deviation of the work angle and
// distance over samples.
func Consistency(samples []session.Sample) (angle, distance Spread) {
	if len(samples) == 0 {
		return Spread{}, Spread{}
	}
	a := make([]float64, len(samples))
	d := make([]float64, len(samples))
	for i, s := range samples {
		a[i] = s.Pose.Angle.Pitch
		d[i] = s.Pose.Distance
	}
	angle.Mean, angle.StdDev = stat.MeanStdDev(a, nil)
	distance.Mean, distance.StdDev = stat.MeanStdDev(d, nil)
	if len(samples) == 1 {
		angle.StdDev, distance.StdDev = 0, 0
	}
	return angle, distance
}

// WriteHTML renders the session as an ECharts page: the metric time series
// with their target bands and the mean component scores.
func WriteHTML(w io.Writer, res session.Result, samples []session.Sample, p technique.Parameters) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	t0 := samples[0].Timestamp
	x := make([]string, len(samples))
	for i, s := range samples {
		x[i] = fmt.Sprintf("%.1f", s.Timestamp.Sub(t0).Seconds())
	}

	title := fmt.Sprintf("%s session %s", res.Technique, res.ID)
	angle, distance := Consistency(samples)
	subtitle := fmt.Sprintf("score %d (%s), %.0f%% in tolerance, angle %.1f±%.1f°, distance %.1f±%.1f mm",
		res.Score, res.Grade, res.TimeInTolerance*100,
		angle.Mean, angle.StdDev, distance.Mean, distance.StdDev)

	page := components.NewPage()
	page.PageTitle = title

	for _, m := range metrics(p) {
		data := make([]opts.LineData, len(samples))
		for i, s := range samples {
			if v, ok := m.value(s); ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: "-"}
			}
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
			charts.WithTitleOpts(opts.Title{Title: m.label, Subtitle: subtitleFor(m, title, subtitle)}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithXAxisOpts(opts.XAxis{Name: "s", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Name: m.label, Scale: opts.Bool(true)}),
			charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
		)

		seriesOpts := []charts.SeriesOpts{
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		}
		if m.band != nil {
			seriesOpts = append(seriesOpts, charts.WithMarkLineNameYAxisItemOpts(
				opts.MarkLineNameYAxisItem{Name: "min", YAxis: m.band.Min},
				opts.MarkLineNameYAxisItem{Name: "max", YAxis: m.band.Max},
			))
		}
		line.SetXAxis(x).AddSeries(m.name, data, seriesOpts...)
		page.AddCharts(line)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Mean component scores", Subtitle: strings.Join(res.Feedback, "\n")}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100}),
	)
	sc := res.Averages.Scores
	bar.SetXAxis([]string{"Angle", "Distance", "Speed", "Stability", "Overall"}).
		AddSeries("score", []opts.BarData{
			{Value: sc.Angle},
			{Value: sc.Distance},
			{Value: sc.Speed},
			{Value: sc.Stability},
			{Value: sc.Overall},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	page.AddCharts(bar)

	return page.Render(w)
}

// subtitleFor puts the session summary on the first chart only.
func subtitleFor(m series, title, summary string) string {
	if m.name == "quality" {
		return title + ": " + summary
	}
	if m.band != nil {
		return "target " + m.band.String()
	}
	return ""
}

// Write renders the PNG plots and <session id>.html into dir and returns
// every path written.
func Write(dir string, res session.Result, samples []session.Sample, p technique.Parameters) ([]string, error) {
	paths, err := PlotSession(dir, res, samples, p)
	if err != nil {
		return paths, err
	}

	path := filepath.Join(dir, fileStem(res.ID)+".html")
	f, err := os.Create(path)
	if err != nil {
		return paths, err
	}
	if err := WriteHTML(f, res, samples, p); err != nil {
		f.Close()
		return paths, fmt.Errorf("failed to render %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return paths, err
	}
	return append(paths, path), nil
}
