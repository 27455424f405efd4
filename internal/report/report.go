// Package report renders run telemetry as charts for PID tuning.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/trackrunner/internal/fsutil"
	"github.com/banshee-data/trackrunner/internal/telemetry"
)

// ErrNoSamples is returned when there is nothing to plot.
var ErrNoSamples = errors.New("report: no samples")

// Options controls chart titles and PNG size.
type Options struct {
	Title  string
	Width  vg.Length
	Height vg.Length
}

func (o Options) normalize() Options {
	if o.Title == "" {
		o.Title = "trackrunner"
	}
	if o.Width <= 0 {
		o.Width = 14 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 8 * vg.Inch
	}
	return o
}

// SamplesFromRows converts CSV log rows into samples numbered from 1. The
// CSV log has no timing or speed columns so those stay zero.
func SamplesFromRows(rows []telemetry.Row) []telemetry.Sample {
	samples := make([]telemetry.Sample, len(rows))
	for i, r := range rows {
		samples[i] = telemetry.Sample{
			Seq:     i + 1,
			Heading: r.HeadingDegrees * math.Pi / 180,
			Diff:    r.Diff,
		}
	}
	return samples
}

// WritePNG writes two stacked panels, heading in degrees and PID
// differential, against the cycle number.
func WritePNG(fs fsutil.FileSystem, path string, samples []telemetry.Sample, o Options) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	o = o.normalize()

	headingPts := make(plotter.XYs, len(samples))
	diffPts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		headingPts[i] = plotter.XY{X: float64(s.Seq), Y: s.HeadingDegrees()}
		diffPts[i] = plotter.XY{X: float64(s.Seq), Y: s.Diff}
	}

	pHeading, err := linePlot(o.Title+" - Heading", "Heading (deg)", "heading", headingPts)
	if err != nil {
		return err
	}
	pDiff, err := linePlot(o.Title+" - Differential", "Diff", "diff", diffPts)
	if err != nil {
		return err
	}

	plots := [][]*plot.Plot{{pHeading}, {pDiff}}
	img := vgimg.New(o.Width, o.Height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      1,
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		plots[j][0].Draw(canvases[j][0])
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create plot %s: %w", path, err)
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write plot %s: %w", path, err)
	}
	return f.Close()
}

func linePlot(title, yLabel, legend string, pts plotter.XYs) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Cycle"
	p.Y.Label.Text = yLabel

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("%s line: %w", legend, err)
	}
	line.Width = vg.Points(1)
	p.Add(plotter.NewGrid(), line)
	p.Legend.Add(legend, line)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WriteHTML writes an interactive page with heading and differential
// charts, plus left/right track speeds when the samples carry them.
func WriteHTML(w io.Writer, samples []telemetry.Sample, o Options) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	o = o.normalize()

	x := make([]int, len(samples))
	heading := make([]opts.LineData, len(samples))
	diff := make([]opts.LineData, len(samples))
	left := make([]opts.LineData, len(samples))
	right := make([]opts.LineData, len(samples))
	hasSpeeds := false
	for i, s := range samples {
		x[i] = s.Seq
		heading[i] = opts.LineData{Value: s.HeadingDegrees()}
		diff[i] = opts.LineData{Value: s.Diff}
		left[i] = opts.LineData{Value: s.Left}
		right[i] = opts.LineData{Value: s.Right}
		if s.Left != 0 || s.Right != 0 {
			hasSpeeds = true
		}
	}

	headingChart := newLine(o.Title+" heading", "deg")
	headingChart.SetXAxis(x).AddSeries("heading", heading)

	diffChart := newLine(o.Title+" differential", "diff")
	diffChart.SetXAxis(x).AddSeries("diff", diff)

	page := components.NewPage()
	page.AddCharts(headingChart, diffChart)

	if hasSpeeds {
		speedChart := newLine(o.Title+" track speeds", "speed")
		speedChart.SetXAxis(x).
			AddSeries("left", left).
			AddSeries("right", right)
		page.AddCharts(speedChart)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func newLine(title, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "cycle", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	return line
}

// WriteHTMLFile is WriteHTML to a file on fs.
func WriteHTMLFile(fs fsutil.FileSystem, path string, samples []telemetry.Sample, o Options) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := WriteHTML(f, samples, o); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
