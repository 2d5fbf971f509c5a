// Package chart renders a scene's class distribution as an HTML page
// (go-echarts) or a PNG image (gonum/plot).
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Zhao-Qihao/xbzl-data/internal/labels"
)

// ErrEmpty is returned by WritePNG when the histogram has no classes.
var ErrEmpty = errors.New("histogram has no classes")

// WriteHTML renders hist as an interactive bar chart page to w.
func WriteHTML(w io.Writer, title string, hist *labels.ClassHistogram) error {
	entries := hist.Entries()
	x := make([]string, 0, len(entries))
	y := make([]opts.BarData, 0, len(entries))
	for _, e := range entries {
		x = append(x, e.Class)
		y = append(y, opts.BarData{Value: e.Count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("classes=%d objects=%d", len(entries), hist.Total())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Class"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Count"}),
	)
	bar.SetXAxis(x).
		AddSeries("count", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// WritePNG renders hist as a bar chart image saved at path.
func WritePNG(path, title string, hist *labels.ClassHistogram) error {
	entries := hist.Entries()
	if len(entries) == 0 {
		return ErrEmpty
	}

	values := make(plotter.Values, len(entries))
	names := make([]string, len(entries))
	for i, e := range entries {
		values[i] = float64(e.Count)
		names[i] = e.Class
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Class"
	p.Y.Label.Text = "Count"

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return fmt.Errorf("create bar chart: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	p.Add(bars)
	p.NominalX(names...)

	width := vg.Length(len(entries))*vg.Inch + 2*vg.Inch
	if err := p.Save(width, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save chart %s: %w", path, err)
	}
	return nil
}
