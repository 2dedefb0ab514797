package observability

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// FeedCollector bundles Prometheus metrics for the frame feed surfaces
// (WebSocket and gRPC) and provides helpers to wire them into gRPC servers
// and HTTP handlers.
type FeedCollector struct {
	gatherer prometheus.Gatherer

	Streams        *prometheus.CounterVec
	StreamDuration *prometheus.HistogramVec
	Subscribers    *prometheus.GaugeVec
	DroppedFrames  *prometheus.CounterVec
}

// NewFeedCollector registers feed metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewFeedCollector(reg prometheus.Registerer) (*FeedCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	streams := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_streams_total",
		Help: "Total number of finished feed streams, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"})
	streams, err := registerCounterVec(reg, streams, "feed_streams_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_stream_duration_seconds",
		Help:    "Lifetime of feed streams in seconds.",
		Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"service", "method"})
	durations, err = registerHistogramVec(reg, durations, "feed_stream_duration_seconds")
	if err != nil {
		return nil, err
	}

	subscribers := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feed_subscribers",
		Help: "Current number of frame feed subscribers by transport.",
	}, []string{"transport"})
	subscribers, err = registerGaugeVec(reg, subscribers, "feed_subscribers")
	if err != nil {
		return nil, err
	}

	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_dropped_frames_total",
		Help: "Frames dropped because a subscriber could not keep up, by transport.",
	}, []string{"transport"})
	dropped, err = registerCounterVec(reg, dropped, "feed_dropped_frames_total")
	if err != nil {
		return nil, err
	}

	return &FeedCollector{
		gatherer:       gatherer,
		Streams:        streams,
		StreamDuration: durations,
		Subscribers:    subscribers,
		DroppedFrames:  dropped,
	}, nil
}

// StreamServerInterceptor records stream counts and lifetimes for
// server-streaming RPCs.
func (c *FeedCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)

		if c == nil {
			return err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.Streams != nil {
			c.Streams.WithLabelValues(service, method, code).Inc()
		}
		if c.StreamDuration != nil {
			c.StreamDuration.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}
		return err
	}
}

// SubscriberAdded increments the subscriber gauge for transport.
func (c *FeedCollector) SubscriberAdded(transport string) {
	if c == nil || c.Subscribers == nil {
		return
	}
	c.Subscribers.WithLabelValues(transport).Inc()
}

// SubscriberRemoved decrements the subscriber gauge for transport.
func (c *FeedCollector) SubscriberRemoved(transport string) {
	if c == nil || c.Subscribers == nil {
		return
	}
	c.Subscribers.WithLabelValues(transport).Dec()
}

// FrameDropped counts a frame skipped for a slow subscriber.
func (c *FeedCollector) FrameDropped(transport string) {
	if c == nil || c.DroppedFrames == nil {
		return
	}
	c.DroppedFrames.WithLabelValues(transport).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *FeedCollector) Handler() http.Handler {
	return HandlerFor(c.gatherer)
}

// HandlerFor exposes gatherer on a /metrics handler, falling back to the
// default gatherer when nil.
func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
