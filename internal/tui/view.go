// Package tui renders simulation frames as a top-down terminal view,
// looking down the pole (y) axis onto the x-z plane.
package tui

import (
	"context"
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"

	"github.com/signalsfoundry/marslink-sim/core"
	"github.com/signalsfoundry/marslink-sim/model"
)

// Scene bounds in scene units; the default scenario fits with margin.
var defaultBounds = bounds{minX: -4.5, maxX: 15.5, minZ: -4.5, maxZ: 4.5}

type bounds struct {
	minX, maxX, minZ, maxZ float64
}

var linkStyles = map[core.LinkKind]tcell.Style{
	core.LinkEarthSatellites:      tcell.StyleDefault.Foreground(tcell.ColorTeal),
	core.LinkMarsSatellites:       tcell.StyleDefault.Foreground(tcell.ColorOrange),
	core.LinkEarthGround:          tcell.StyleDefault.Foreground(tcell.ColorBlue),
	core.LinkEarthAdversaryGround: tcell.StyleDefault.Foreground(tcell.ColorPurple),
	core.LinkMarsGround:           tcell.StyleDefault.Foreground(tcell.ColorOlive),
	core.LinkAdversaryDownlink:    tcell.StyleDefault.Foreground(tcell.ColorMaroon),
}

var (
	styleStatus  = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	styleBeam    = tcell.StyleDefault.Foreground(tcell.ColorFuchsia)
	styleSensing = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleLaser   = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)

// glyph returns the rune and style for an entity role.
func glyph(role string) (rune, tcell.Style) {
	switch role {
	case model.RoleFriendlySatellite.String():
		return 'o', tcell.StyleDefault.Foreground(tcell.ColorGreen)
	case model.RoleAdversarySatellite.String():
		return 'X', tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	case model.RoleSpacecraft.String():
		return 'R', tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	case model.RoleGroundStation.String():
		return '^', tcell.StyleDefault.Foreground(tcell.ColorSilver)
	case model.RoleAdversaryGroundStation.String():
		return 'A', tcell.StyleDefault.Foreground(tcell.ColorRed)
	case model.RoleLaserStation.String():
		return '+', tcell.StyleDefault.Foreground(tcell.ColorRed)
	default:
		return '?', tcell.StyleDefault
	}
}

// View draws frames onto a tcell screen.
type View struct {
	screen tcell.Screen
	bounds bounds
}

// NewView wraps an initialised screen.
func NewView(screen tcell.Screen) *View {
	return &View{screen: screen, bounds: defaultBounds}
}

// project maps a scene point to a cell, reserving the top row for status.
func (v *View) project(p core.Vec3) (int, int, bool) {
	w, h := v.screen.Size()
	if w <= 0 || h <= 1 {
		return 0, 0, false
	}
	b := v.bounds
	fx := (p.X - b.minX) / (b.maxX - b.minX)
	fz := (p.Z - b.minZ) / (b.maxZ - b.minZ)
	if fx < 0 || fx > 1 || fz < 0 || fz > 1 || math.IsNaN(fx) || math.IsNaN(fz) {
		return 0, 0, false
	}
	x := int(fx * float64(w-1))
	y := 1 + int((1-fz)*float64(h-2))
	return x, y, true
}

func (v *View) line(a, b core.Vec3, r rune, style tcell.Style) {
	x0, y0, ok0 := v.project(a)
	x1, y1, ok1 := v.project(b)
	if !ok0 || !ok1 {
		return
	}
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	err := dx + dy
	for {
		v.screen.SetContent(x0, y0, r, nil, style)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// Draw renders one frame. Later layers overwrite earlier ones: links,
// beams, sensing cones, lasers, then entities on top.
func (v *View) Draw(f *core.Frame) {
	v.screen.Clear()
	if f == nil {
		v.screen.Show()
		return
	}

	for _, l := range f.Links {
		style, ok := linkStyles[l.Kind]
		if !ok {
			style = tcell.StyleDefault
		}
		v.line(l.From, l.To, '.', style)
	}
	for _, b := range f.Beams {
		v.line(b.Start, b.End, '~', styleBeam)
	}
	for _, s := range f.Sensing {
		dir, ok := s.Surface.Sub(s.Start).Normalize()
		if !ok {
			continue
		}
		v.line(s.Start, s.Start.Add(dir.Scale(s.Length)), ':', styleSensing)
	}
	for _, l := range f.Lasers {
		v.line(l.From, l.To, '=', styleLaser)
	}
	for _, e := range f.Entities {
		x, y, ok := v.project(e.Position)
		if !ok {
			continue
		}
		r, style := glyph(e.Role)
		v.screen.SetContent(x, y, r, nil, style)
	}

	v.drawStatus(f)
	v.screen.Show()
}

func (v *View) drawStatus(f *core.Frame) {
	counts := f.LinkCounts()
	status := fmt.Sprintf("frame %d  t=%.1fs  links %d (sat %d/%d, ground %d/%d)  beams %d  sensing %d  lasers %d  [q] quit",
		f.Number, f.SimTime, len(f.Links),
		counts[core.LinkEarthSatellites], counts[core.LinkMarsSatellites],
		counts[core.LinkEarthGround]+counts[core.LinkEarthAdversaryGround], counts[core.LinkMarsGround],
		len(f.Beams), len(f.Sensing), len(f.Lasers),
	)
	w, _ := v.screen.Size()
	for i, r := range []rune(status) {
		if i >= w {
			break
		}
		v.screen.SetContent(i, 0, r, nil, styleStatus)
	}
}

// Run draws frames as they arrive until ctx is done, frames is closed, or
// the user presses q, Esc or Ctrl-C.
func (v *View) Run(ctx context.Context, frames <-chan *core.Frame) error {
	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for {
			ev := v.screen.PollEvent()
			switch ev := ev.(type) {
			case nil:
				return
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
					return
				}
			case *tcell.EventResize:
				v.screen.Sync()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-quit:
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			// Skip to the newest queued frame.
			for len(frames) > 0 {
				next, ok := <-frames
				if !ok {
					break
				}
				f = next
			}
			v.Draw(f)
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
