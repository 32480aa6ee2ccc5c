// Package frames writes scene playback as a numbered PNG sequence drawn
// with gonum/plot through the render.Camera projection.
package frames

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/rahulsinghu/AstralCleanser/internal/metrics"
	"github.com/rahulsinghu/AstralCleanser/internal/render"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
)

// axisSpan bounds the projected plane; a cube corner projects to at most √3.
const axisSpan = 1.75

// Options configures the sequence.
type Options struct {
	Camera        render.Camera
	EarthRadiusKm float64
	Size          vg.Length // square image side; 0 means 8 inches
	Every         int       // write every n-th frame; 0 or 1 writes all
}

// FileName is the name of the PNG for frame k.
func FileName(k int) string {
	return fmt.Sprintf("frame_%03d.png", k)
}

// Writer writes frames into a directory.
type Writer struct {
	dir    string
	opts   Options
	earth  plotter.XYs
	logger *slog.Logger
}

// NewWriter creates dir if needed and returns a Writer for it.
func NewWriter(dir string, o Options, logger *slog.Logger) (*Writer, error) {
	if o.EarthRadiusKm <= 0 {
		o.EarthRadiusKm = render.EarthRadiusKm
	}
	if o.Camera.LimitKm <= 0 {
		o.Camera = render.NewCamera(-60, 30, render.AxisLimitKm)
	}
	if o.Size <= 0 {
		o.Size = 8 * vg.Inch
	}
	if o.Every <= 0 {
		o.Every = 1
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating frame dir: %w", err)
	}

	mesh := render.EarthMesh(o.EarthRadiusKm, render.EarthMeshU, render.EarthMeshV)
	return &Writer{
		dir:    dir,
		opts:   o,
		earth:  project(o.Camera, mesh),
		logger: logger,
	}, nil
}

func project(c render.Camera, ps []r3.Vec) plotter.XYs {
	out := make(plotter.XYs, len(ps))
	for i, p := range ps {
		x, y, _ := c.Project(p)
		out[i] = plotter.XY{X: x, Y: y}
	}
	return out
}

// WriteAll plays sc through once and writes each selected frame. It returns
// the number of files written.
func (w *Writer) WriteAll(ctx context.Context, sc *scene.Scene) (int, error) {
	player := render.NewPlayer(sc, false)
	start := time.Now()
	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		f, ok := player.Next()
		if !ok {
			break
		}
		if f.Index%w.opts.Every != 0 && f.Index != sc.Samples()-1 {
			continue
		}
		if err := w.Write(sc, f); err != nil {
			return written, err
		}
		written++
	}

	w.logger.Info("png frames written",
		"dir", w.dir,
		"frames", written,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return written, nil
}

// Write renders frame f to its file.
func (w *Writer) Write(sc *scene.Scene, f render.Frame) error {
	p, err := w.plot(sc, f)
	if err != nil {
		return fmt.Errorf("frame %d: %w", f.Index, err)
	}
	path := filepath.Join(w.dir, FileName(f.Index))
	if err := p.Save(w.opts.Size, w.opts.Size, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	metrics.IncFramesRendered("png")
	return nil
}

func earthColor() color.NRGBA {
	e := render.RGBA(render.EarthColor)
	return color.NRGBA{R: e.R, G: e.G, B: e.B, A: render.EarthAlpha}
}

func (w *Writer) plot(sc *scene.Scene, f render.Frame) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s\n%s", scene.Title, f.Time.UTC().Format(time.RFC3339))
	p.X.Min, p.X.Max = -axisSpan, axisSpan
	p.Y.Min, p.Y.Max = -axisSpan, axisSpan
	p.HideAxes()

	earth, err := plotter.NewScatter(w.earth)
	if err != nil {
		return nil, err
	}
	earth.GlyphStyle.Color = earthColor()
	earth.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(earth)

	for i, obj := range sc.Objects {
		if i >= len(f.Trails) {
			break
		}
		c := render.RGBA(obj.Color)

		trail, err := plotter.NewLine(project(w.opts.Camera, f.Trails[i]))
		if err != nil {
			return nil, err
		}
		trail.Color = c
		trail.Width = vg.Points(1)
		p.Add(trail)
		p.Legend.Add(obj.Label(), trail)

		head, err := plotter.NewScatter(project(w.opts.Camera, f.Current[i : i+1]))
		if err != nil {
			return nil, err
		}
		head.GlyphStyle.Color = c
		head.GlyphStyle.Shape = draw.CircleGlyph{}
		head.GlyphStyle.Radius = vg.Points(4)
		p.Add(head)
	}

	if len(f.Markers) > 0 {
		pos := make([]r3.Vec, len(f.Markers))
		for k, m := range f.Markers {
			pos[k] = m.Position
		}
		marks, err := plotter.NewScatter(project(w.opts.Camera, pos))
		if err != nil {
			return nil, err
		}
		marks.GlyphStyle.Color = render.RGBA(render.MarkerColor)
		marks.GlyphStyle.Shape = draw.CrossGlyph{}
		marks.GlyphStyle.Radius = vg.Points(5)
		p.Add(marks)
		p.Legend.Add("Close approach", marks)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}
