package report

import (
	"fmt"
	"io"

	"github.com/banshee-data/rep.report/internal/tracker"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderFormChart writes an HTML page with two charts: per-rep component and
// form scores, and the angle range each rep covered.
func RenderFormChart(w io.Writer, title string, reps []tracker.CompletedRep) error {
	if len(reps) == 0 {
		return ErrNoReps
	}

	x := make([]string, len(reps))
	var (
		form       = make([]opts.BarData, len(reps))
		rom        = make([]opts.BarData, len(reps))
		smoothness = make([]opts.BarData, len(reps))
		tempo      = make([]opts.BarData, len(reps))
		stability  = make([]opts.BarData, len(reps))
		minAngle   = make([]opts.LineData, len(reps))
		maxAngle   = make([]opts.LineData, len(reps))
	)
	for i, r := range reps {
		x[i] = fmt.Sprintf("Rep %d", r.Number)
		form[i] = opts.BarData{Value: r.FormScore}
		rom[i] = opts.BarData{Value: r.ROM.Score}
		smoothness[i] = opts.BarData{Value: r.Smoothness}
		tempo[i] = opts.BarData{Value: r.Tempo.Score}
		stability[i] = opts.BarData{Value: r.Stability.Score}
		minAngle[i] = opts.LineData{Value: r.ROM.Min}
		maxAngle[i] = opts.LineData{Value: r.ROM.Max}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%s, %d reps", reps[0].Exercise, len(reps))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "Score"}),
	)
	bar.SetXAxis(x).
		AddSeries("form", form, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("rom", rom).
		AddSeries("smoothness", smoothness).
		AddSeries("tempo", tempo)
	if reps[0].Stability.Present {
		bar.AddSeries("stability", stability)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Angle range"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 180, Name: "deg"}),
	)
	line.SetXAxis(x).
		AddSeries("min", minAngle).
		AddSeries("max", maxAngle)

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(bar, line)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render form chart: %w", err)
	}
	return nil
}
