// Package report renders completed reps for offline review: a PNG of the
// angle trajectories (gonum/plot) and an HTML chart of per-rep scores
// (go-echarts).
package report

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/banshee-data/rep.report/internal/tracker"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoReps is returned when there is nothing to render.
var ErrNoReps = errors.New("no reps to render")

// PlotTrajectories writes one line per rep, angle against sample index, to
// path. The image format follows the file extension (.png, .svg, .pdf).
func PlotTrajectories(reps []tracker.CompletedRep, path string) error {
	if len(reps) == 0 {
		return ErrNoReps
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %d reps", reps[0].Exercise, len(reps))
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Angle (deg)"
	p.Y.Min = 0
	p.Y.Max = 180
	p.Add(plotter.NewGrid())

	colors := generateColors(len(reps))
	for i, r := range reps {
		if len(r.Trajectory) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(r.Trajectory))
		for j, a := range r.Trajectory {
			pts[j] = plotter.XY{X: float64(j), Y: a}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("rep %d: %w", r.Number, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		if r.TooShort {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("rep %d (%.0f)", r.Number, r.FormScore), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save trajectory plot: %w", err)
	}
	return nil
}

// generateColors creates a palette of n distinct hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
