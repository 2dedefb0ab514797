package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/marslink-sim/core"
	"github.com/signalsfoundry/marslink-sim/internal/config"
	"github.com/signalsfoundry/marslink-sim/internal/feed"
	"github.com/signalsfoundry/marslink-sim/internal/logging"
	"github.com/signalsfoundry/marslink-sim/internal/observability"
	"github.com/signalsfoundry/marslink-sim/kb"
	"github.com/signalsfoundry/marslink-sim/timectrl"
)

// summaryEvery is how often (in frames) the run loop logs a summary.
const summaryEvery = 600

func main() {
	configPath := flag.String("config", "", "path to a marslink config file (default: ./marslink.yaml if present)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading MARSLINK_* variables")
	scenarioPath := flag.String("scenario", "", "YAML scenario document (overrides sim.scenario)")
	mode := flag.String("mode", "", "realtime or accelerated (overrides sim.mode)")
	duration := flag.Duration("duration", -1, "simulated duration; 0 runs until interrupted (overrides sim.duration)")
	seed := flag.Uint64("seed", 0, "random seed; 0 seeds from the clock (overrides sim.seed)")
	wsAddr := flag.String("ws-addr", "", "HTTP address serving the /ws frame feed (overrides feed.wsAddr)")
	grpcAddr := flag.String("grpc-addr", "", "TCP address of the gRPC frame feed (overrides feed.grpcAddr)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides metrics.addr)")
	flag.Parse()

	opts := config.Options{File: *configPath, EnvFile: *envFile}
	if opts.File == "" {
		opts.Dirs = []string{"."}
	}
	cfg, err := config.Load(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marslink-sim: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scenario":
			cfg.Sim.Scenario = *scenarioPath
		case "mode":
			cfg.Sim.Mode = *mode
		case "duration":
			cfg.Sim.Duration = *duration
		case "seed":
			cfg.Sim.Seed = *seed
		case "ws-addr":
			cfg.Feed.WSAddr = *wsAddr
		case "grpc-addr":
			cfg.Feed.GRPCAddr = *grpcAddr
		case "metrics-addr":
			cfg.Metrics.Addr = *metricsAddr
		}
	})

	log := logging.New(cfg.Logging())
	if err := cfg.Validate(); err != nil {
		log.Error(context.Background(), "invalid configuration", logging.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, runDeps{}); err != nil {
		log.Error(ctx, "marslink-sim exited with error", logging.Error(err))
		os.Exit(1)
	}
}

// runDeps lets tests inject listeners and a private metrics registry.
// Nil listeners are opened from the configured addresses; an empty address
// disables that surface.
type runDeps struct {
	Registry        *prometheus.Registry
	WSListener      net.Listener
	GRPCListener    net.Listener
	MetricsListener net.Listener
	// OnFrame, when set, observes every frame after it was published.
	OnFrame func(*core.Frame)
}

func run(ctx context.Context, cfg *config.Config, log logging.Logger, deps runDeps) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingSettings(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	if deps.Registry != nil {
		registerer = deps.Registry
	}
	simMetrics, err := observability.NewSimCollector(registerer)
	if err != nil {
		return fmt.Errorf("init sim metrics: %w", err)
	}
	feedMetrics, err := observability.NewFeedCollector(registerer)
	if err != nil {
		return fmt.Errorf("init feed metrics: %w", err)
	}

	sc, err := loadScenario(cfg.Sim.Scenario)
	if err != nil {
		return err
	}

	rng := core.NewRand(cfg.Sim.Seed)
	reg := kb.NewRegistry()
	state, err := core.NewSimulationState(sc, reg, core.DefaultBuildOptions(), rng)
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}
	log.Info(ctx, "simulation built",
		logging.Int("entities", reg.Len()),
		logging.Any("roles", reg.CountByRole()),
		logging.Any("seed", cfg.Sim.Seed),
	)

	engine := core.NewSimulationEngine(reg, state,
		core.WithRand(rng),
		core.WithLogger(log.With(logging.String("component", "engine"))),
		core.WithMetrics(simMetrics),
	)

	hub := feed.NewHub(feed.WithFeedMetrics(feedMetrics), feed.WithHubLogger(log))
	engine.AddSink(hub)
	engine.RegisterTickListener(func(f *core.Frame) {
		if f.Number%summaryEvery == 0 {
			log.Info(ctx, "simulation progress",
				logging.Any("frame", f.Number),
				logging.Float("sim_time", f.SimTime),
				logging.Int("links", len(f.Links)),
				logging.Int("sessions", state.Sessions.Len()),
			)
		}
	})
	if deps.OnFrame != nil {
		engine.RegisterTickListener(deps.OnFrame)
	}

	var (
		httpSrvs []*http.Server
		grpcSrv  *grpc.Server
	)
	stopServers := func() {
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range httpSrvs {
			if srv != nil {
				_ = srv.Shutdown(shutdownCtx)
			}
		}
	}

	metricsSrv, err := serveMetrics(cfg.Metrics.Addr, deps.MetricsListener, feedMetrics, log)
	if err != nil {
		return err
	}
	httpSrvs = append(httpSrvs, metricsSrv)
	wsSrv, err := serveWebSocket(cfg.Feed.WSAddr, deps.WSListener, hub, log)
	if err != nil {
		stopServers()
		return err
	}
	httpSrvs = append(httpSrvs, wsSrv)
	if grpcSrv, err = serveGRPC(cfg.Feed.GRPCAddr, deps.GRPCListener, hub, feedMetrics, log); err != nil {
		stopServers()
		return err
	}

	mode, _ := timectrl.ParseMode(cfg.Sim.Mode)
	tc := timectrl.NewTimeController(time.Unix(0, 0).UTC(), timectrl.FrameTick, mode)
	tc.AddListener(func(time.Time) {
		engine.Step(ctx)
	})

	log.Info(ctx, "starting simulation",
		logging.String("mode", mode.String()),
		logging.String("duration", cfg.Sim.Duration.String()),
	)
	<-tc.Start(ctx, cfg.Sim.Duration)
	if ctx.Err() == nil {
		log.Info(ctx, "simulation complete", logging.Any("frames", tc.Ticks()))
	}

	log.Info(context.Background(), "shutting down")
	hub.Close()
	stopServers()
	return nil
}

func loadScenario(path string) (*core.Scenario, error) {
	if path == "" {
		return core.DefaultScenario(), nil
	}
	sc, err := core.LoadScenarioFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	return sc, nil
}

func listen(addr string, lis net.Listener) (net.Listener, error) {
	if lis != nil || addr == "" {
		return lis, nil
	}
	return net.Listen("tcp", addr)
}

func serveMetrics(addr string, lis net.Listener, collector *observability.FeedCollector, log logging.Logger) (*http.Server, error) {
	lis, err := listen(addr, lis)
	if err != nil {
		return nil, fmt.Errorf("listen metrics %s: %w", addr, err)
	}
	if lis == nil {
		return nil, nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go serveHTTP(srv, lis, "metrics", log)

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", lis.Addr().String()))
	return srv, nil
}

func serveWebSocket(addr string, lis net.Listener, hub *feed.Hub, log logging.Logger) (*http.Server, error) {
	lis, err := listen(addr, lis)
	if err != nil {
		return nil, fmt.Errorf("listen websocket %s: %w", addr, err)
	}
	if lis == nil {
		return nil, nil
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", feed.NewWebSocketHandler(hub, log))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go serveHTTP(srv, lis, "websocket feed", log)

	log.Info(context.Background(), "serving websocket feed", logging.String("addr", lis.Addr().String()))
	return srv, nil
}

func serveGRPC(addr string, lis net.Listener, hub *feed.Hub, collector *observability.FeedCollector, log logging.Logger) (*grpc.Server, error) {
	lis, err := listen(addr, lis)
	if err != nil {
		return nil, fmt.Errorf("listen grpc %s: %w", addr, err)
	}
	if lis == nil {
		return nil, nil
	}
	srv := feed.NewGRPCServer(hub, collector, log)
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Error(context.Background(), "gRPC server exited", logging.Error(err))
		}
	}()

	log.Info(context.Background(), "serving gRPC frame feed", logging.String("addr", lis.Addr().String()))
	return srv, nil
}

func serveHTTP(srv *http.Server, lis net.Listener, name string, log logging.Logger) {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn(context.Background(), name+" server exited", logging.Error(err))
	}
}
