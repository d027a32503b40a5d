// Package chart renders diagnostic line charts of mean convergence curves
// and relative benchmark times. Output format follows the file extension
// (png, svg, pdf, ...).
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/profile"
	"github.com/nvandessel/convbench/internal/reduce"
)

// Default chart size.
const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

var (
	sequentialColor = color.RGBA{R: 0x33, G: 0xBB, B: 0xEE, A: 0xFF}
	phenomenaColor  = color.RGBA{R: 0xEE, G: 0x77, B: 0x33, A: 0xFF}
	referenceColor  = color.RGBA{R: 0x7B, G: 0x85, B: 0x80, A: 0xFF}
)

// ErrNoData is returned when no curve has a finite point to draw.
var ErrNoData = errors.New("nothing to plot")

// AlgorithmColor returns the line color used for alg.
func AlgorithmColor(alg flowsheet.Algorithm) color.Color {
	if alg == flowsheet.SequentialModular {
		return sequentialColor
	}
	return phenomenaColor
}

// Curve is one line. Settled is the index of the sample marked as settled,
// or -1 for none.
type Curve struct {
	Label   string
	Time    []float64
	Values  []float64
	Color   color.Color
	Settled int
}

// MeanCurves returns the sm and po mean curves of sig with settled markers
// one decade above the lowest sequential modular value.
func MeanCurves(sm, po *reduce.MeanProfile, sig profile.Signal) ([]Curve, error) {
	var curves []Curve
	var cutoff float64
	for i, m := range []*reduce.MeanProfile{sm, po} {
		c := m.Curve(sig)
		if c == nil {
			return nil, fmt.Errorf("%s has no %s curve", m.Algorithm, sig)
		}
		if i == 0 {
			cutoff = reduce.SettledCutoff(c.Mean)
		}
		settled := reduce.SettledIndex(c.Mean, cutoff)
		if settled >= len(c.Mean) {
			settled = -1
		}
		curves = append(curves, Curve{
			Label:   fmt.Sprintf("%s (N=%d)", m.Algorithm, m.Trials),
			Time:    m.Time,
			Values:  c.Mean,
			Color:   AlgorithmColor(m.Algorithm),
			Settled: settled,
		})
	}
	return curves, nil
}

// Render draws curves against time and saves the chart to path. Undefined
// points are skipped.
func Render(path, title, ylabel string, curves ...Curve) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time [s]"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	drawn := 0
	for _, c := range curves {
		xys := finite(c.Time, c.Values)
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("plotting %s: %w", c.Label, err)
		}
		line.Color = c.Color
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(c.Label, line)
		drawn++

		if c.Settled >= 0 && c.Settled < len(c.Values) && !math.IsNaN(c.Values[c.Settled]) {
			marker, err := plotter.NewScatter(plotter.XYs{{X: c.Time[c.Settled], Y: c.Values[c.Settled]}})
			if err != nil {
				return err
			}
			marker.GlyphStyle.Shape = draw.CrossGlyph{}
			marker.GlyphStyle.Color = c.Color
			marker.GlyphStyle.Radius = vg.Points(4)
			p.Add(marker)
		}
	}
	if drawn == 0 {
		return ErrNoData
	}
	p.Legend.Top = true
	return save(p, path)
}

// errorPoints pairs points with symmetric vertical error bars.
type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

// RenderBenchmark plots the relative time of the faster algorithm for each
// comparison, with its propagated standard deviation, against a 100%
// reference line. Crosses mark systems where sequential modular was
// faster, squares where phenomena oriented was.
func RenderBenchmark(path string, comparisons []*reduce.Comparison) error {
	if len(comparisons) == 0 {
		return ErrNoData
	}
	p := plot.New()
	p.Title.Text = "Relative time to steady state"
	p.Y.Label.Text = "Relative simulation time [%]"
	p.Add(plotter.NewGrid())

	var names []string
	groups := map[bool]*errorPoints{false: {}, true: {}}
	for i, c := range comparisons {
		names = append(names, c.System)
		g := groups[c.SequentialFaster]
		g.XYs = append(g.XYs, plotter.XY{X: float64(i), Y: c.RelativeTime})
		g.YErrors = append(g.YErrors, struct{ Low, High float64 }{c.RelativeStd, c.RelativeStd})
	}
	p.NominalX(names...)

	for _, smFaster := range []bool{false, true} {
		g := groups[smFaster]
		if len(g.XYs) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(g)
		if err != nil {
			return err
		}
		bars, err := plotter.NewYErrorBars(g)
		if err != nil {
			return err
		}
		bars.Color = referenceColor
		label := "Phenomena oriented faster"
		sc.GlyphStyle.Shape = draw.BoxGlyph{}
		sc.GlyphStyle.Color = phenomenaColor
		if smFaster {
			label = "Sequential modular faster"
			sc.GlyphStyle.Shape = draw.CrossGlyph{}
			sc.GlyphStyle.Color = sequentialColor
		}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc, bars)
		p.Legend.Add(label, sc)
	}

	ref := plotter.NewFunction(func(float64) float64 { return 100 })
	ref.Color = referenceColor
	ref.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(ref)
	p.Y.Min = 0
	p.Y.Max = math.Max(125, p.Y.Max)
	p.X.Min, p.X.Max = -0.5, float64(len(comparisons))-0.5
	return save(p, path)
}

func save(p *plot.Plot, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating chart directory: %w", err)
		}
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("saving chart %s: %w", path, err)
	}
	return nil
}

func finite(xs, ys []float64) plotter.XYs {
	n := min(len(xs), len(ys))
	out := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) || math.IsNaN(xs[i]) {
			continue
		}
		out = append(out, plotter.XY{X: xs[i], Y: ys[i]})
	}
	return out
}
