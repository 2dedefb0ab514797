package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/marslink-sim/internal/logging"
	"github.com/signalsfoundry/marslink-sim/kb"
	"github.com/signalsfoundry/marslink-sim/model"
)

// FrameStep is the simulated time added by every Step, regardless of how
// much wall-clock time passed between calls.
const FrameStep = 1.0 / 60

const tracerName = "github.com/signalsfoundry/marslink-sim/core"

// MetricsRecorder receives per-frame observations. Label values are plain
// strings so implementations need not import core.
type MetricsRecorder interface {
	ObserveFrame(elapsed time.Duration, links, sessions, sensingActive map[string]int)
	IncRetarget(body string)
	IncLaserPulse(direction string)
	IncInvalidFrame()
}

// SimulationEngine is the frame driver. It owns the SimulationState and
// runs every controller in a fixed order on each Step.
type SimulationEngine struct {
	Registry            *kb.Registry
	State               *SimulationState
	ConnectivityService *ConnectivityService

	opts    BuildOptions
	rng     Rand
	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer

	tickListeners []func(*Frame)
}

// EngineOption customises SimulationEngine construction.
type EngineOption func(*SimulationEngine)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(se *SimulationEngine) {
		if l != nil {
			se.log = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) EngineOption {
	return func(se *SimulationEngine) {
		se.metrics = m
	}
}

// WithRand sets the randomness source used by the controllers.
func WithRand(r Rand) EngineOption {
	return func(se *SimulationEngine) {
		if r != nil {
			se.rng = r
		}
	}
}

// WithTracer overrides the tracer used for frame spans.
func WithTracer(t trace.Tracer) EngineOption {
	return func(se *SimulationEngine) {
		if t != nil {
			se.tracer = t
		}
	}
}

// WithControllerConfig overrides the pursuit, sensing and laser tuning.
func WithControllerConfig(o BuildOptions) EngineOption {
	return func(se *SimulationEngine) {
		se.opts = o
	}
}

// NewSimulationEngine wraps an already built state.
func NewSimulationEngine(reg *kb.Registry, st *SimulationState, options ...EngineOption) *SimulationEngine {
	se := &SimulationEngine{
		Registry:            reg,
		State:               st,
		ConnectivityService: NewConnectivityService(st.Sessions),
		opts:                DefaultBuildOptions(),
		log:                 logging.Noop(),
		tracer:              otel.Tracer(tracerName),
	}
	for _, opt := range options {
		opt(se)
	}
	if se.rng == nil {
		se.rng = NewRand(0)
	}
	return se
}

// RegisterTickListener adds a callback invoked with every produced frame.
func (se *SimulationEngine) RegisterTickListener(fn func(*Frame)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// AddSink registers a render sink.
func (se *SimulationEngine) AddSink(s FrameSink) {
	se.RegisterTickListener(s.Publish)
}

// Run executes frames steps, stopping early if ctx is cancelled. It
// returns the number of frames produced.
func (se *SimulationEngine) Run(ctx context.Context, frames int) int {
	ctx, span := se.tracer.Start(ctx, "sim.Run", trace.WithAttributes(attribute.Int("frames", frames)))
	defer span.End()

	for i := 0; i < frames; i++ {
		if ctx.Err() != nil {
			span.SetAttributes(attribute.Int("frames_done", i))
			return i
		}
		se.Step(ctx)
	}
	return frames
}

// Step advances the simulation by one FrameStep and returns the frame.
//
// Order: orbit positions, adversary pursuit, remote sensing, laser pulses,
// connectivity, frame assembly, validation, metrics, listeners.
func (se *SimulationEngine) Step(ctx context.Context) *Frame {
	start := time.Now()
	_, span := se.tracer.Start(ctx, "sim.Step")
	defer span.End()

	st := se.State
	st.FrameNumber++
	st.SimTime = float64(st.FrameNumber) * FrameStep

	se.advanceOrbits()
	se.advancePursuit(ctx)
	sensingActive := se.advanceSensing()
	se.advanceLasers()
	links := se.ConnectivityService.UpdateConnectivity(st)

	frame := se.buildFrame(links)
	span.SetAttributes(
		attribute.Int64("frame", int64(frame.Number)),
		attribute.Int("links", len(frame.Links)),
	)

	if err := frame.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		se.log.Error(ctx, "invalid frame",
			logging.Any("frame", frame.Number),
			logging.Error(err),
		)
		if se.metrics != nil {
			se.metrics.IncInvalidFrame()
		}
	}

	if se.metrics != nil {
		linkCounts := make(map[string]int)
		for k, n := range frame.LinkCounts() {
			linkCounts[string(k)] = n
		}
		se.metrics.ObserveFrame(time.Since(start), linkCounts, st.Sessions.CountByKind(), sensingActive)
	}

	for _, fn := range se.tickListeners {
		fn(frame)
	}
	return frame
}

func (se *SimulationEngine) advanceOrbits() {
	st := se.State
	for _, bs := range st.Bodies() {
		for i, m := range bs.Orbits {
			pos := m.Position(st.SimTime)
			bs.SatPos[i] = pos
			se.setPosition(bs.Satellites[i], pos)
		}
	}
}

func (se *SimulationEngine) advancePursuit(ctx context.Context) {
	for _, bs := range se.State.Bodies() {
		for _, adv := range bs.Adversaries {
			pos, retargeted := PursuitStep(se.opts.Pursuit, &adv.Pursuit, adv.Position, bs.SatPos, bs.Center, bs.OrbitRadius, FrameStep, se.rng)
			adv.Position = pos
			se.setPosition(adv.Entity, pos)
			if !retargeted {
				continue
			}
			se.log.Debug(ctx, "adversary retargeted",
				logging.String("adversary", adv.Entity.Name),
				logging.String("target", bs.Satellites[adv.Pursuit.TargetIndex].Name),
			)
			if se.metrics != nil {
				se.metrics.IncRetarget(bs.Body.String())
			}
		}
	}
}

func (se *SimulationEngine) advanceSensing() map[string]int {
	active := make(map[string]int)
	for _, bs := range se.State.Bodies() {
		n := 0
		for _, s := range bs.Sensing {
			s.State.Step(se.opts.Sensing, FrameStep, se.rng)
			if s.State.Active {
				n++
			}
		}
		active[bs.Body.String()] = n
	}
	return active
}

func (se *SimulationEngine) advanceLasers() {
	for _, l := range se.State.Lasers {
		if l.Pulse.Step(se.opts.Laser, FrameStep, se.rng) && se.metrics != nil {
			se.metrics.IncLaserPulse(l.Pulse.Direction.String())
		}
	}
}

func (se *SimulationEngine) setPosition(e *model.Entity, pos Vec3) {
	if se.Registry == nil {
		return
	}
	// Non-finite positions are rejected by the registry and surface later
	// through Frame.Validate.
	_ = se.Registry.SetPosition(e.ID, pos)
}

func (se *SimulationEngine) buildFrame(links []CommLink) *Frame {
	st := se.State
	f := &Frame{
		Number:  st.FrameNumber,
		SimTime: st.SimTime,
		Links:   links,
		Beacons: BeaconsAt(st.SimTime),
	}

	if se.Registry != nil {
		entities := se.Registry.Entities()
		positions := se.Registry.Positions(entities)
		f.Entities = make([]EntitySnapshot, len(entities))
		for i, e := range entities {
			f.Entities[i] = EntitySnapshot{
				ID:       e.ID,
				Name:     e.Name,
				Role:     e.Role.String(),
				Body:     e.Body.String(),
				Position: positions[i],
			}
		}
	}
	// Adversary and satellite positions come from the state so a rejected
	// registry write still shows up in validation.
	for _, bs := range st.Bodies() {
		for i, sat := range bs.Satellites {
			f.overridePosition(sat.ID, bs.SatPos[i])
		}
		for _, adv := range bs.Adversaries {
			f.overridePosition(adv.Entity.ID, adv.Position)
		}
	}

	for _, bs := range st.Bodies() {
		for _, adv := range bs.Adversaries {
			if len(bs.Satellites) == 0 {
				continue
			}
			target := bs.SatPos[adv.Pursuit.TargetIndex]
			start, ok := BeamStart(se.opts.Pursuit, adv.Position, target)
			if !ok {
				continue
			}
			f.Beams = append(f.Beams, AdversaryBeam{
				Body:      bs.Body.String(),
				Adversary: adv.Entity.ID,
				Target:    bs.Satellites[adv.Pursuit.TargetIndex].ID,
				Start:     start,
				End:       target,
			})
		}
		for _, s := range bs.Sensing {
			if !s.State.Active {
				continue
			}
			start, surface, length, ok := SensingFootprint(se.opts.Sensing, bs.SatPos[s.SatIndex], bs.Center, bs.Radius)
			if !ok {
				continue
			}
			f.Sensing = append(f.Sensing, SensingCone{
				Body:      bs.Body.String(),
				Satellite: s.Entity.ID,
				Start:     start,
				Surface:   surface,
				Length:    length,
			})
		}
	}

	for _, l := range st.Lasers {
		tail, head, ok := l.Pulse.Segment(se.opts.Laser)
		if !ok {
			continue
		}
		f.Lasers = append(f.Lasers, LaserSegment{
			Relay:     l.Relay.ID,
			System:    l.System,
			Direction: l.Pulse.Direction.String(),
			State:     l.Pulse.State.String(),
			Tail:      tail,
			Head:      head,
			From:      l.Path.Point(l.Pulse.Direction, tail),
			To:        l.Path.Point(l.Pulse.Direction, head),
		})
	}
	return f
}

func (f *Frame) overridePosition(id model.EntityID, pos Vec3) {
	// Registry ids are dense and assigned in registration order.
	i := int(id) - 1
	if i >= 0 && i < len(f.Entities) && f.Entities[i].ID == id {
		f.Entities[i].Position = pos
	}
}
