// Package terminal plays a scene back as an animated 3D view in the
// terminal.
package terminal

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rahulsinghu/AstralCleanser/internal/metrics"
	"github.com/rahulsinghu/AstralCleanser/internal/render"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
)

// Options configures playback.
type Options struct {
	Interval      time.Duration
	Loop          bool
	Camera        render.Camera
	EarthRadiusKm float64
}

// Glyphs, in increasing draw priority.
const (
	glyphEmpty   = ' '
	glyphEarth   = '·'
	glyphTrail   = '•'
	glyphCurrent = '●'
	glyphMarker  = 'x'
)

// cell is one canvas position: a glyph, the object that drew it (-1 for
// none) and its depth for painter ordering among same-priority glyphs.
type cell struct {
	glyph rune
	obj   int
	depth float64
}

type tickMsg time.Time

// Model is the bubbletea model driving a render.Player.
type Model struct {
	sc     *scene.Scene
	player *render.Player
	opts   Options
	earth  []r3.Vec

	width, height int
	frame         render.Frame
	hasFrame      bool
	done          bool

	objStyles   []lipgloss.Style
	earthStyle  lipgloss.Style
	markerStyle lipgloss.Style
	titleStyle  lipgloss.Style
	dimStyle    lipgloss.Style
	warnStyle   lipgloss.Style
}

// New creates a Model in the Idle state.
func New(sc *scene.Scene, opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.EarthRadiusKm <= 0 {
		opts.EarthRadiusKm = render.EarthRadiusKm
	}
	if opts.Camera.LimitKm <= 0 {
		opts.Camera = render.NewCamera(-60, 30, render.AxisLimitKm)
	}

	styles := make([]lipgloss.Style, len(sc.Objects))
	for i, o := range sc.Objects {
		styles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(render.Hex(o.Color)))
	}

	return Model{
		sc:          sc,
		player:      render.NewPlayer(sc, opts.Loop),
		opts:        opts,
		earth:       render.EarthMesh(opts.EarthRadiusKm, render.EarthMeshU, render.EarthMeshV),
		width:       80,
		height:      30,
		objStyles:   styles,
		earthStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color(render.Hex(render.EarthColor))).Faint(true),
		markerStyle: lipgloss.NewStyle().Foreground(lipgloss.Color(render.Hex(render.MarkerColor))).Background(lipgloss.Color("#d0d0d0")).Bold(true),
		titleStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		dimStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		warnStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#E84A27")).Bold(true),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.player.State() == render.StateDone {
		return nil
	}
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		f, ok := m.player.Next()
		if !ok {
			// The last frame stays on screen until the user quits.
			m.done = true
			return m, nil
		}
		m.frame = f
		m.hasFrame = true
		metrics.IncFramesRendered("terminal")
		return m, m.tick()
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.titleStyle.Render(scene.Title))
	b.WriteByte('\n')
	b.WriteString(m.renderStatus())
	b.WriteByte('\n')
	b.WriteString(m.renderCanvas())
	b.WriteString(m.renderLegend())
	return b.String()
}

func (m Model) renderStatus() string {
	if !m.hasFrame {
		return m.dimStyle.Render(fmt.Sprintf("%d objects, %d samples, threshold %.0f km", len(m.sc.Objects), m.sc.Samples(), m.sc.ThresholdKm))
	}
	status := fmt.Sprintf("frame %d/%d  %s  close approaches %d",
		m.frame.Index+1, m.sc.Samples(), m.frame.Time.UTC().Format("2006-01-02 15:04Z"), len(m.frame.Markers))
	if m.done {
		status += "  (done)"
	}
	line := m.dimStyle.Render(status)
	if m.frame.Added > 0 {
		line += "  " + m.warnStyle.Render(fmt.Sprintf("+%d close approach", m.frame.Added))
	}
	return line
}

func (m Model) canvasSize() (w, h int) {
	// Title, status and legend take three lines.
	w, h = m.width, m.height-3
	if w < 20 {
		w = 20
	}
	if h < 10 {
		h = 10
	}
	return w, h
}

// toScreen maps a point to a canvas cell. Terminal cells are about twice
// as tall as wide, so the horizontal scale is doubled.
func (m Model) toScreen(p r3.Vec, w, h int) (col, row int, depth float64, ok bool) {
	x, y, d := m.opts.Camera.Project(p)
	half := math.Min(float64(w)/4, float64(h)/2)
	col = int(math.Round(float64(w)/2 + x*half*2))
	row = int(math.Round(float64(h)/2 - y*half))
	if col < 0 || col >= w || row < 0 || row >= h {
		return 0, 0, 0, false
	}
	return col, row, d, true
}

func priority(g rune) int {
	switch g {
	case glyphEarth:
		return 1
	case glyphTrail:
		return 2
	case glyphCurrent:
		return 3
	case glyphMarker:
		return 4
	default:
		return 0
	}
}

func (m Model) buildGrid() [][]cell {
	w, h := m.canvasSize()
	grid := make([][]cell, h)
	for y := range grid {
		grid[y] = make([]cell, w)
		for x := range grid[y] {
			grid[y][x] = cell{glyph: glyphEmpty, obj: -1, depth: math.Inf(-1)}
		}
	}

	plot := func(p r3.Vec, g rune, obj int) {
		col, row, d, ok := m.toScreen(p, w, h)
		if !ok {
			return
		}
		c := &grid[row][col]
		pc, pg := priority(c.glyph), priority(g)
		if pg > pc || (pg == pc && d >= c.depth) {
			*c = cell{glyph: g, obj: obj, depth: d}
		}
	}

	for _, p := range m.earth {
		plot(p, glyphEarth, -1)
	}
	if !m.hasFrame {
		return grid
	}
	for i, trail := range m.frame.Trails {
		for _, p := range trail {
			plot(p, glyphTrail, i)
		}
	}
	for i, p := range m.frame.Current {
		plot(p, glyphCurrent, i)
	}
	for _, mk := range m.frame.Markers {
		plot(mk.Position, glyphMarker, -1)
	}
	return grid
}

func (m Model) renderCanvas() string {
	var b strings.Builder
	for _, row := range m.buildGrid() {
		for _, c := range row {
			switch {
			case c.glyph == glyphEmpty:
				b.WriteRune(c.glyph)
			case c.glyph == glyphEarth:
				b.WriteString(m.earthStyle.Render(string(c.glyph)))
			case c.glyph == glyphMarker:
				b.WriteString(m.markerStyle.Render(string(c.glyph)))
			case c.obj >= 0 && c.obj < len(m.objStyles):
				b.WriteString(m.objStyles[c.obj].Render(string(c.glyph)))
			default:
				b.WriteRune(c.glyph)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (m Model) renderLegend() string {
	parts := make([]string, 0, len(m.sc.Objects)+1)
	for i, o := range m.sc.Objects {
		parts = append(parts, m.objStyles[i].Render(string(glyphCurrent))+" "+o.Label())
	}
	parts = append(parts, m.dimStyle.Render("q quit"))
	return strings.Join(parts, "  ")
}

// Run plays sc until the user quits or ctx is cancelled.
func Run(ctx context.Context, sc *scene.Scene, opts Options, progOpts ...tea.ProgramOption) error {
	p := tea.NewProgram(New(sc, opts), progOpts...)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-stop:
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal player: %w", err)
	}
	return nil
}
