// Package htmlscene renders a scene to a self-contained go-echarts HTML
// page: a 3D view of the final playback frame and the distance of every
// pair over the window against the threshold.
package htmlscene

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rahulsinghu/AstralCleanser/internal/proximity"
	"github.com/rahulsinghu/AstralCleanser/internal/render"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
)

// Options configures the page.
type Options struct {
	LimitKm       float64
	EarthRadiusKm float64
	AssetsHost    string // empty uses the go-echarts default CDN
}

func (o Options) withDefaults() Options {
	if o.LimitKm <= 0 {
		o.LimitKm = render.AxisLimitKm
	}
	if o.EarthRadiusKm <= 0 {
		o.EarthRadiusKm = render.EarthRadiusKm
	}
	return o
}

func initOpts(o Options, title string) opts.Initialization {
	return opts.Initialization{
		PageTitle:  title,
		Theme:      "dark",
		Width:      "1000px",
		Height:     "900px",
		AssetsHost: o.AssetsHost,
	}
}

func point(p r3.Vec) opts.Chart3DData {
	return opts.Chart3DData{Value: []interface{}{p.X, p.Y, p.Z}}
}

func points(ps []r3.Vec) []opts.Chart3DData {
	out := make([]opts.Chart3DData, len(ps))
	for i, p := range ps {
		out[i] = point(p)
	}
	return out
}

// FinalFrame plays sc through once and returns its last frame, which holds
// the full trails and every marker. ok is false for a scene with no samples.
func FinalFrame(sc *scene.Scene) (render.Frame, bool) {
	return render.NewPlayer(sc, false).Seek(sc.Samples() - 1)
}

// SceneChart builds the 3D view of frame f.
func SceneChart(sc *scene.Scene, f render.Frame, o Options) *charts.Scatter3D {
	o = o.withDefaults()
	lim := o.LimitKm

	c := charts.NewScatter3D()
	c.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(o, scene.Title)),
		charts.WithTitleOpts(opts.Title{
			Title:    scene.Title,
			Subtitle: fmt.Sprintf("frame %d/%d  %s  frame=%s  threshold=%.0f km", f.Index+1, sc.Samples(), f.Time.UTC().Format(time.RFC3339), sc.Frame, sc.ThresholdKm),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "X (km)", Min: -lim, Max: lim}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "Y (km)", Min: -lim, Max: lim}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "Z (km)", Min: -lim, Max: lim}),
	)

	earth := render.EarthMesh(o.EarthRadiusKm, render.EarthMeshU, render.EarthMeshV)
	c.AddSeries("Earth", points(earth),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "rgba(173,216,230,0.5)"}),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
	)

	for i, obj := range sc.Objects {
		if i >= len(f.Trails) {
			break
		}
		color := render.Hex(obj.Color)
		c.AddSeries(obj.Label(), points(f.Trails[i]),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
		)
		c.AddSeries(obj.Label()+" now", []opts.Chart3DData{point(f.Current[i])},
			charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		)
	}

	if len(f.Markers) > 0 {
		marks := make([]opts.Chart3DData, len(f.Markers))
		for k, m := range f.Markers {
			marks[k] = point(m.Position)
			marks[k].Name = fmt.Sprintf("%s / %s @ %s", sc.Objects[m.Event.I].Label(), sc.Objects[m.Event.J].Label(),
				sc.Grid.Times[m.Event.T].UTC().Format("15:04"))
		}
		c.AddSeries("Close approach", marks,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: render.Hex(render.MarkerColor)}),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		)
	}
	return c
}

// DistanceChart plots every pair's separation per sample with the
// threshold as a flat series.
func DistanceChart(sc *scene.Scene, o Options) *charts.Line {
	o = o.withDefaults()

	x := make([]string, sc.Samples())
	for k, t := range sc.Grid.Times {
		x[k] = t.UTC().Format("15:04")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(o, "Pair distances")),
		charts.WithTitleOpts(opts.Title{
			Title:    "Pair distances",
			Subtitle: fmt.Sprintf("%d close approaches below %.0f km", len(sc.Events), sc.ThresholdKm),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "km"}),
	)
	line.SetXAxis(x)

	for i := 0; i < len(sc.Paths); i++ {
		for j := i + 1; j < len(sc.Paths); j++ {
			d := proximity.PairDistances(sc.Paths, i, j)
			data := make([]opts.LineData, len(d))
			for k, v := range d {
				data[k] = opts.LineData{Value: v}
			}
			line.AddSeries(fmt.Sprintf("%s - %s", sc.Objects[i].Label(), sc.Objects[j].Label()), data)
		}
	}

	threshold := make([]opts.LineData, sc.Samples())
	for k := range threshold {
		threshold[k] = opts.LineData{Value: sc.ThresholdKm}
	}
	line.AddSeries("threshold", threshold,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: render.Hex(render.MarkerColor)}),
	)
	return line
}

// Render writes the full page for sc to w.
func Render(w io.Writer, sc *scene.Scene, o Options) error {
	f, ok := FinalFrame(sc)
	if !ok {
		return fmt.Errorf("scene has no samples")
	}

	page := components.NewPage()
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.PageTitle = scene.Title
	page.AddCharts(SceneChart(sc, f, o))
	if len(sc.Paths) >= 2 {
		page.AddCharts(DistanceChart(sc, o))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("rendering html scene: %w", err)
	}
	return nil
}
