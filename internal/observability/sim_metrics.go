package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimCollector exposes simulation-loop Prometheus metrics. It satisfies
// core.MetricsRecorder.
type SimCollector struct {
	gatherer prometheus.Gatherer

	FramesTotal    prometheus.Counter
	FrameDuration  prometheus.Histogram
	InvalidFrames  prometheus.Counter
	CommittedLinks *prometheus.GaugeVec
	Sessions       *prometheus.GaugeVec
	SensingActive  *prometheus.GaugeVec
	Retargets      *prometheus.CounterVec
	LaserPulses    *prometheus.CounterVec

	mu        sync.Mutex
	seenLinks map[string]struct{}
}

// NewSimCollector registers simulation metrics against the provided registerer.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	frames, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_frames_total",
		Help: "Total number of simulation frames stepped.",
	}), "sim_frames_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_frame_duration_seconds",
		Help:    "Wall-clock time spent computing one simulation frame.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.025, 0.05},
	}), "sim_frame_duration_seconds")
	if err != nil {
		return nil, err
	}

	invalid, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_invalid_frames_total",
		Help: "Frames that failed validation (non-finite coordinates).",
	}), "sim_invalid_frames_total")
	if err != nil {
		return nil, err
	}

	links, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_committed_links",
		Help: "Committed communication links in the latest frame, by link kind.",
	}, []string{"kind"}), "sim_committed_links")
	if err != nil {
		return nil, err
	}

	sessions, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_sessions",
		Help: "Communication sessions created so far, by pair kind.",
	}, []string{"kind"}), "sim_sessions")
	if err != nil {
		return nil, err
	}

	sensing, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_remote_sensing_active",
		Help: "Satellites currently remote sensing, by body.",
	}, []string{"body"}), "sim_remote_sensing_active")
	if err != nil {
		return nil, err
	}

	retargets, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_adversary_retargets_total",
		Help: "Adversary target switches, by body.",
	}, []string{"body"}), "sim_adversary_retargets_total")
	if err != nil {
		return nil, err
	}

	pulses, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_laser_pulses_total",
		Help: "Interplanetary laser pulses fired, by direction.",
	}, []string{"direction"}), "sim_laser_pulses_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:       gatherer,
		FramesTotal:    frames,
		FrameDuration:  duration,
		InvalidFrames:  invalid,
		CommittedLinks: links,
		Sessions:       sessions,
		SensingActive:  sensing,
		Retargets:      retargets,
		LaserPulses:    pulses,
		seenLinks:      make(map[string]struct{}),
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveFrame records one frame. Link kinds seen earlier but absent now
// are reset to zero so the gauge reflects the latest frame only.
func (c *SimCollector) ObserveFrame(elapsed time.Duration, links, sessions, sensingActive map[string]int) {
	if c == nil {
		return
	}
	c.FramesTotal.Inc()
	c.FrameDuration.Observe(elapsed.Seconds())

	c.mu.Lock()
	for kind := range links {
		c.seenLinks[kind] = struct{}{}
	}
	for kind := range c.seenLinks {
		c.CommittedLinks.WithLabelValues(kind).Set(float64(links[kind]))
	}
	c.mu.Unlock()

	for kind, n := range sessions {
		c.Sessions.WithLabelValues(kind).Set(float64(n))
	}
	for body, n := range sensingActive {
		c.SensingActive.WithLabelValues(body).Set(float64(n))
	}
}

// IncRetarget counts an adversary target switch.
func (c *SimCollector) IncRetarget(body string) {
	if c == nil {
		return
	}
	c.Retargets.WithLabelValues(body).Inc()
}

// IncLaserPulse counts a fired laser pulse.
func (c *SimCollector) IncLaserPulse(direction string) {
	if c == nil {
		return
	}
	c.LaserPulses.WithLabelValues(direction).Inc()
}

// IncInvalidFrame counts a frame that failed validation.
func (c *SimCollector) IncInvalidFrame() {
	if c == nil {
		return
	}
	c.InvalidFrames.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
