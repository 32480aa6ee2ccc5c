// Package render drives scene playback. A Player walks a Scene frame by
// frame; renderer subpackages draw the Frames it yields.
package render

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rahulsinghu/AstralCleanser/internal/proximity"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
)

// State is the playback position of a Player.
type State int

const (
	StateIdle State = iota
	StateFrame
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFrame:
		return "frame"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Marker is a drawn close approach.
type Marker struct {
	Event    proximity.Event
	Position r3.Vec
}

// Frame is everything drawn at one playback step. Trail slices share the
// scene's storage and must not be modified.
type Frame struct {
	Index   int
	Time    time.Time
	Trails  [][]r3.Vec // Trails[i] = positions 0..Index of object i
	Current []r3.Vec
	Markers []Marker // every marker added since the last loop restart
	Added   int      // markers added by this frame, at the end of Markers
	Pass    int      // completed loops before this frame
}

// Player is the playback state machine:
//
//	Idle -> Frame[0] -> ... -> Frame[T-1] -> Idle -> Frame[0] (looping)
//	                                      -> Done             (not looping)
//
// The marker list is its only mutable state. It grows within one pass and
// is cleared on loop restart. A Player is not safe for concurrent use; give
// each consumer its own.
type Player struct {
	sc      *scene.Scene
	loop    bool
	byTime  map[int][]proximity.Event
	state   State
	index   int
	pass    int
	markers []Marker
}

// NewPlayer returns a Player in Idle, or Done if the scene has no samples.
func NewPlayer(sc *scene.Scene, loop bool) *Player {
	p := &Player{
		sc:     sc,
		loop:   loop,
		byTime: proximity.ByTime(sc.Events),
		index:  -1,
	}
	if sc.Samples() == 0 || len(sc.Paths) == 0 {
		p.state = StateDone
	}
	return p
}

// State returns the current state.
func (p *Player) State() State { return p.state }

// Index returns the current frame index, or -1 outside StateFrame.
func (p *Player) Index() int {
	if p.state != StateFrame {
		return -1
	}
	return p.index
}

// Samples returns the number of frames in one pass.
func (p *Player) Samples() int { return p.sc.Samples() }

// Next advances one step and returns the new frame. ok is false once the
// player is Done.
func (p *Player) Next() (f Frame, ok bool) {
	switch p.state {
	case StateDone:
		return Frame{}, false
	case StateFrame:
		if p.index+1 >= p.sc.Samples() {
			if !p.loop {
				p.state = StateDone
				return Frame{}, false
			}
			p.restart()
		}
	}

	p.state = StateFrame
	p.index++
	return p.frame(p.addMarkers(p.index)), true
}

// Seek jumps to frame k within the current pass, replaying the markers
// for frames 0..k. It reports false if k is out of range.
func (p *Player) Seek(k int) (Frame, bool) {
	if k < 0 || k >= p.sc.Samples() {
		return Frame{}, false
	}
	p.markers = p.markers[:0]
	var added int
	for i := 0; i <= k; i++ {
		added = p.addMarkers(i)
	}
	p.state = StateFrame
	p.index = k
	return p.frame(added), true
}

// Reset returns the player to Idle with no markers.
func (p *Player) Reset() {
	if p.sc.Samples() == 0 || len(p.sc.Paths) == 0 {
		p.state = StateDone
		return
	}
	p.state = StateIdle
	p.index = -1
	p.pass = 0
	p.markers = nil
}

// restart is the Frame[T-1] -> Idle transition of a looping player.
func (p *Player) restart() {
	p.state = StateIdle
	p.index = -1
	p.pass++
	p.markers = nil
}

func (p *Player) addMarkers(k int) int {
	events := p.byTime[k]
	for _, e := range events {
		p.markers = append(p.markers, Marker{
			Event:    e,
			Position: proximity.Midpoint(p.sc.Paths, e),
		})
	}
	return len(events)
}

func (p *Player) frame(added int) Frame {
	k := p.index
	trails := make([][]r3.Vec, len(p.sc.Paths))
	current := make([]r3.Vec, len(p.sc.Paths))
	end := k + 1
	for i, path := range p.sc.Paths {
		trails[i] = path[:end:end]
		current[i] = path[k]
	}
	markers := make([]Marker, len(p.markers))
	copy(markers, p.markers)

	return Frame{
		Index:   k,
		Time:    p.sc.Grid.Times[k],
		Trails:  trails,
		Current: current,
		Markers: markers,
		Added:   added,
		Pass:    p.pass,
	}
}
