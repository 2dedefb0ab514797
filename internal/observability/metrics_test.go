package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStreamInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewFeedCollector(reg)
	if err != nil {
		t.Fatalf("NewFeedCollector: %v", err)
	}

	interceptor := collector.StreamServerInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/marslink.feed.v1.FrameFeed/Subscribe", IsServerStream: true}

	err = interceptor(struct{}{}, nil, info, func(srv interface{}, ss grpc.ServerStream) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.Streams.WithLabelValues("FrameFeed", "Subscribe", "OK")); got != 1 {
		t.Fatalf("feed_streams_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "feed_stream_duration_seconds", map[string]string{
		"service": "FrameFeed",
		"method":  "Subscribe",
	}); count != 1 {
		t.Fatalf("feed_stream_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestStreamInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewFeedCollector(reg)
	if err != nil {
		t.Fatalf("NewFeedCollector: %v", err)
	}

	interceptor := collector.StreamServerInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/marslink.feed.v1.FrameFeed/Subscribe"}
	_ = interceptor(struct{}{}, nil, info, func(interface{}, grpc.ServerStream) error {
		return status.Error(codes.Canceled, "client went away")
	})

	if got := testutil.ToFloat64(collector.Streams.WithLabelValues("FrameFeed", "Subscribe", "Canceled")); got != 1 {
		t.Fatalf("feed_streams_total error label = %v, want 1", got)
	}
}

func TestFeedCollectorSubscribersAndDrops(t *testing.T) {
	collector, err := NewFeedCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewFeedCollector: %v", err)
	}
	collector.SubscriberAdded("ws")
	collector.SubscriberAdded("ws")
	collector.SubscriberRemoved("ws")
	collector.SubscriberAdded("grpc")
	collector.FrameDropped("ws")
	collector.FrameDropped("ws")

	if got := testutil.ToFloat64(collector.Subscribers.WithLabelValues("ws")); got != 1 {
		t.Fatalf("feed_subscribers{ws} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Subscribers.WithLabelValues("grpc")); got != 1 {
		t.Fatalf("feed_subscribers{grpc} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.DroppedFrames.WithLabelValues("ws")); got != 2 {
		t.Fatalf("feed_dropped_frames_total{ws} = %v, want 2", got)
	}

	var nilCollector *FeedCollector
	nilCollector.SubscriberAdded("ws")
	nilCollector.FrameDropped("ws")
}

func TestFeedCollectorReusesRegisteredVectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewFeedCollector(reg)
	if err != nil {
		t.Fatalf("NewFeedCollector: %v", err)
	}
	second, err := NewFeedCollector(reg)
	if err != nil {
		t.Fatalf("second NewFeedCollector: %v", err)
	}
	first.FrameDropped("ws")
	if got := testutil.ToFloat64(second.DroppedFrames.WithLabelValues("ws")); got != 1 {
		t.Fatalf("second collector sees %v drops, want 1", got)
	}
}

func TestSimCollectorObserveFrame(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.ObserveFrame(2*time.Millisecond,
		map[string]int{"earth-sat": 3, "mars-ground": 1},
		map[string]int{"earth-satellites": 10},
		map[string]int{"earth": 2, "mars": 0},
	)
	collector.ObserveFrame(time.Millisecond,
		map[string]int{"earth-sat": 1},
		map[string]int{"earth-satellites": 12},
		map[string]int{"earth": 1, "mars": 1},
	)
	collector.IncRetarget("mars")
	collector.IncLaserPulse("earth-to-mars")
	collector.IncLaserPulse("earth-to-mars")
	collector.IncInvalidFrame()

	if got := testutil.ToFloat64(collector.FramesTotal); got != 2 {
		t.Fatalf("sim_frames_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.CommittedLinks.WithLabelValues("earth-sat")); got != 1 {
		t.Fatalf("sim_committed_links{earth-sat} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.CommittedLinks.WithLabelValues("mars-ground")); got != 0 {
		t.Fatalf("stale link kind not reset: %v", got)
	}
	if got := testutil.ToFloat64(collector.Sessions.WithLabelValues("earth-satellites")); got != 12 {
		t.Fatalf("sim_sessions = %v, want 12", got)
	}
	if got := testutil.ToFloat64(collector.SensingActive.WithLabelValues("mars")); got != 1 {
		t.Fatalf("sim_remote_sensing_active{mars} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Retargets.WithLabelValues("mars")); got != 1 {
		t.Fatalf("sim_adversary_retargets_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.LaserPulses.WithLabelValues("earth-to-mars")); got != 2 {
		t.Fatalf("sim_laser_pulses_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.InvalidFrames); got != 1 {
		t.Fatalf("sim_invalid_frames_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "sim_frame_duration_seconds", nil); count != 2 {
		t.Fatalf("sim_frame_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestMetricsHandlerExposesSimAndFeed(t *testing.T) {
	reg := prometheus.NewRegistry()
	sim, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	feed, err := NewFeedCollector(reg)
	if err != nil {
		t.Fatalf("NewFeedCollector: %v", err)
	}
	sim.ObserveFrame(time.Millisecond, map[string]int{"earth-ground": 4}, nil, nil)
	feed.SubscriberAdded("ws")
	feed.Streams.WithLabelValues("FrameFeed", "Subscribe", "OK").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	feed.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sim_frames_total",
		"sim_frame_duration_seconds",
		`sim_committed_links{kind="earth-ground"} 4`,
		`feed_subscribers{transport="ws"} 1`,
		"feed_streams_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		in, service, method string
	}{
		{"/marslink.feed.v1.FrameFeed/Subscribe", "FrameFeed", "Subscribe"},
		{"FrameFeed/Subscribe", "FrameFeed", "Subscribe"},
		{"", "unknown", "unknown"},
		{"/Subscribe", "unknown", "unknown"},
	}
	for _, tc := range cases {
		s, m := SplitMethod(tc.in)
		if s != tc.service || m != tc.method {
			t.Fatalf("SplitMethod(%q) = %q,%q want %q,%q", tc.in, s, m, tc.service, tc.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
