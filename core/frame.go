package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/marslink-sim/model"
)

// ErrNonFiniteFrame is returned by Frame.Validate when any coordinate is
// NaN or infinite.
var ErrNonFiniteFrame = errors.New("frame contains non-finite coordinates")

// LinkKind tags a committed link so renderers can colour it.
type LinkKind string

const (
	LinkEarthSatellites      LinkKind = "earth-sat"
	LinkMarsSatellites       LinkKind = "mars-sat"
	LinkEarthGround          LinkKind = "earth-ground"
	LinkEarthAdversaryGround LinkKind = "earth-adversary-ground"
	LinkMarsGround           LinkKind = "mars-ground"
	LinkAdversaryDownlink    LinkKind = "adversary-ground"
)

// EntitySnapshot is an entity's transform for one frame.
type EntitySnapshot struct {
	ID       model.EntityID `json:"id"`
	Name     string         `json:"name"`
	Role     string         `json:"role"`
	Body     string         `json:"body"`
	Position Vec3           `json:"pos"`
}

// CommLink is a committed link between two entities.
type CommLink struct {
	Kind LinkKind       `json:"kind"`
	A    model.EntityID `json:"a"`
	B    model.EntityID `json:"b"`
	From Vec3           `json:"from"`
	To   Vec3           `json:"to"`
}

// AdversaryBeam is the shadowing beam from an adversary to its target.
type AdversaryBeam struct {
	Body      string         `json:"body"`
	Adversary model.EntityID `json:"adversary"`
	Target    model.EntityID `json:"target"`
	Start     Vec3           `json:"start"`
	End       Vec3           `json:"end"`
}

// SensingCone is the footprint of an actively sensing satellite.
type SensingCone struct {
	Body      string         `json:"body"`
	Satellite model.EntityID `json:"satellite"`
	Start     Vec3           `json:"start"`
	Surface   Vec3           `json:"surface"`
	Length    float64        `json:"length"`
}

// LaserSegment is the lit part of one laser system's path.
type LaserSegment struct {
	Relay     model.EntityID `json:"relay"`
	System    int            `json:"system"`
	Direction string         `json:"direction"`
	State     string         `json:"state"`
	Tail      float64        `json:"tail"`
	Head      float64        `json:"head"`
	From      Vec3           `json:"from"`
	To        Vec3           `json:"to"`
}

// Frame is the immutable per-step output handed to render sinks.
type Frame struct {
	Number   uint64           `json:"n"`
	SimTime  float64          `json:"t"`
	Entities []EntitySnapshot `json:"entities"`
	Links    []CommLink       `json:"links"`
	Beams    []AdversaryBeam  `json:"beams"`
	Sensing  []SensingCone    `json:"sensing"`
	Lasers   []LaserSegment   `json:"lasers"`
	Beacons  Beacons          `json:"beacons"`
}

// Validate reports the first non-finite coordinate found in the frame.
func (f *Frame) Validate() error {
	check := func(what string, v Vec3) error {
		if !v.IsFinite() {
			return fmt.Errorf("frame %d %s: %w", f.Number, what, ErrNonFiniteFrame)
		}
		return nil
	}
	for _, e := range f.Entities {
		if err := check("entity "+e.Name, e.Position); err != nil {
			return err
		}
	}
	for _, l := range f.Links {
		if err := check(fmt.Sprintf("link %d-%d", l.A, l.B), l.From); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("link %d-%d", l.A, l.B), l.To); err != nil {
			return err
		}
	}
	for _, b := range f.Beams {
		if err := check(fmt.Sprintf("beam %d", b.Adversary), b.Start); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("beam %d", b.Adversary), b.End); err != nil {
			return err
		}
	}
	for _, c := range f.Sensing {
		if err := check(fmt.Sprintf("sensing %d", c.Satellite), c.Start); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("sensing %d", c.Satellite), c.Surface); err != nil {
			return err
		}
	}
	for _, l := range f.Lasers {
		if err := check(fmt.Sprintf("laser %d/%d", l.Relay, l.System), l.From); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("laser %d/%d", l.Relay, l.System), l.To); err != nil {
			return err
		}
	}
	return nil
}

// LinkCounts returns the number of committed links per kind.
func (f *Frame) LinkCounts() map[LinkKind]int {
	out := make(map[LinkKind]int)
	for _, l := range f.Links {
		out[l.Kind]++
	}
	return out
}

// FrameSink consumes frames produced by the engine.
type FrameSink interface {
	Publish(f *Frame)
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(f *Frame)

// Publish calls fn(f).
func (fn FrameSinkFunc) Publish(f *Frame) { fn(f) }
