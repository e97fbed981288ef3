package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/directional-radio-medium/core"
	"github.com/signalsfoundry/directional-radio-medium/internal/bus"
	"github.com/signalsfoundry/directional-radio-medium/internal/config"
	"github.com/signalsfoundry/directional-radio-medium/internal/grpcserver"
	"github.com/signalsfoundry/directional-radio-medium/internal/logging"
	"github.com/signalsfoundry/directional-radio-medium/internal/observability"
	"github.com/signalsfoundry/directional-radio-medium/internal/radiolog"
	"github.com/signalsfoundry/directional-radio-medium/kb"
	"github.com/signalsfoundry/directional-radio-medium/timectrl"
)

type options struct {
	configPath   string
	scenarioPath string
	patternPath  string
	recordPath   string
	metricsAddr  string
	grpcAddr     string

	ticks    uint64
	tick     time.Duration
	realtime bool
	seed     int64
	txTicks  uint64
	txProb   float64

	// logOutput overrides the logger destination; nil means stderr.
	logOutput io.Writer
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "configs/medium.yaml", "path to the YAML medium configuration (empty for defaults)")
	flag.StringVar(&opts.scenarioPath, "scenario", "configs/scenario.json", "path to the JSON radio scenario")
	flag.StringVar(&opts.patternPath, "pattern", "configs/rad_pattern_RPA.txt", "path to the radiation pattern table (empty for an isotropic antenna)")
	flag.StringVar(&opts.recordPath, "record", "", "SQLite file to record connections into")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (overrides metrics.addr)")
	flag.StringVar(&opts.grpcAddr, "grpc-addr", "", "TCP address for the gRPC health service")
	flag.Uint64Var(&opts.ticks, "ticks", 100, "number of ticks to run (0 runs until interrupted)")
	flag.DurationVar(&opts.tick, "tick", 100*time.Millisecond, "simulated duration of one tick")
	flag.BoolVar(&opts.realtime, "realtime", false, "pace ticks against the wall clock")
	flag.Int64Var(&opts.seed, "seed", 1, "seed for the medium and traffic generators")
	flag.Uint64Var(&opts.txTicks, "tx-ticks", 1, "ticks a transmission stays on air")
	flag.Float64Var(&opts.txProb, "tx-prob", 0.2, "per-tick probability that an idle radio transmits")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

// run wires the medium from opts, drives it for the requested ticks and
// writes a per-radio report to out.
func run(ctx context.Context, opts options, out io.Writer) error {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = opts.logOutput
	ctx, log := logging.WithRunLogger(ctx, logging.New(logCfg))
	runID := logging.RunIDFromContext(ctx)
	for _, key := range cfg.LegacyKeys {
		log.Warn(ctx, "deprecated configuration key", logging.String("key", key))
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(cfg.TracingConfig()), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	promReg := prometheus.NewRegistry()
	mediumMetrics, err := observability.NewMediumCollector(promReg)
	if err != nil {
		return fmt.Errorf("medium metrics: %w", err)
	}
	engineMetrics, err := observability.NewEngineCollector(promReg)
	if err != nil {
		return fmt.Errorf("engine metrics: %w", err)
	}

	mediumOpts := []core.MediumOption{
		core.WithLogger(log),
		core.WithMetricsRecorder(mediumMetrics),
		core.WithRandom(rand.New(rand.NewSource(opts.seed))),
	}
	if opts.patternPath != "" {
		pattern, err := core.LoadRadiationPatternFile(opts.patternPath)
		if err != nil {
			return err
		}
		mediumOpts = append(mediumOpts, core.WithRadiationPattern(pattern))
	}
	medium, err := core.NewMedium(kb.NewRegistry(), cfg.Params(), mediumOpts...)
	if err != nil {
		return err
	}

	scenario, err := core.LoadScenarioFile(medium, opts.scenarioPath)
	if err != nil {
		return err
	}
	log.Info(ctx, "scenario loaded",
		logging.String("path", opts.scenarioPath),
		logging.Int("radios", len(scenario.Handles)),
	)

	engine := core.NewSimulationEngine(medium,
		core.WithEngineLogger(log),
		core.WithEngineMetrics(engineMetrics),
		core.WithTracer(observability.Tracer()),
	)
	engine.Antennas = scenario.Antennas
	engine.Mobility = scenario.Mobility
	engine.Traffic = core.NewRandomTraffic(opts.txProb, opts.seed+1)
	if opts.txTicks > 0 {
		engine.TxTicks = opts.txTicks
	}

	stats := newRunStats()
	engine.RegisterTickListener(stats.observe)

	var recorder *radiolog.Recorder
	if opts.recordPath != "" {
		db, err := radiolog.Open(ctx, opts.recordPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if recorder, err = radiolog.NewRecorder(ctx, db, runID, medium.Params(), log); err != nil {
			return err
		}
		engine.RegisterTickListener(recorder.TickListener())
	}

	metricsAddr := opts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if srv := serveMetrics(ctx, metricsAddr, mediumMetrics.Handler(), log); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if opts.grpcAddr != "" {
		hs, err := grpcserver.ServeHealth(ctx, opts.grpcAddr, log)
		if err != nil {
			return err
		}
		defer hs.Stop()
	}

	mode := timectrl.Accelerated
	if opts.realtime {
		mode = timectrl.RealTime
	}
	tc := timectrl.NewTimeController(time.Unix(0, 0).UTC(), opts.tick, mode)
	engine.Attach(tc)

	events := bus.New(bus.DefaultCapacity, log)
	sub := events.Subscribe(bus.TopicAntenna, bus.TopicConnections, bus.TopicSignal)
	counted := make(chan map[string]int, 1)
	go countTopics(sub, counted)
	engine.RegisterTickListener(bus.TickListener(events))

	log.Info(ctx, "simulation starting",
		logging.Uint64("ticks", opts.ticks),
		logging.Any("seed", opts.seed),
		logging.Bool("realtime", opts.realtime),
	)
	runErr := tc.Run(ctx, opts.ticks)
	events.Close()
	topics := <-counted
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	log.Info(ctx, "simulation finished",
		logging.Uint64("ticks", tc.Ticks()),
		logging.Int("in_flight", engine.InFlight()),
	)

	if err := writeReport(out, medium, scenario.Handles, stats, topics); err != nil {
		return err
	}
	if recorder != nil {
		sum, err := recorder.Summarize(context.WithoutCancel(ctx))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nrecorded %d connections to %s (run %s)\n", sum.Connections, opts.recordPath, runID)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func countTopics(sub bus.Subscription, done chan<- map[string]int) {
	counts := make(map[string]int)
	for msg := range sub {
		if m, ok := msg.(bus.Message); ok {
			counts[bus.TopicFor(m.Event)]++
		}
	}
	done <- counts
}

// runStats tallies connection activity per radio.
type runStats struct {
	transmissions map[kb.Handle]int
	receptions    map[kb.Handle]int
	interfered    map[kb.Handle]int
	empty         int
}

func newRunStats() *runStats {
	return &runStats{
		transmissions: make(map[kb.Handle]int),
		receptions:    make(map[kb.Handle]int),
		interfered:    make(map[kb.Handle]int),
	}
}

// observe counts membership from the activation snapshot; a connection
// activated later in the same tick may still demote a destination on the
// live Connection.
func (s *runStats) observe(_ context.Context, _ uint64, events []core.Event) {
	for _, ev := range events {
		if ev.Kind != core.EventConnectionsChanged || !ev.Activated || ev.Connection == nil {
			continue
		}
		s.transmissions[ev.Connection.Source]++
		if len(ev.Destinations) == 0 && len(ev.Interfered) == 0 {
			s.empty++
		}
		for _, h := range ev.Destinations {
			s.receptions[h]++
		}
		for _, h := range ev.Interfered {
			s.interfered[h]++
		}
	}
}

func writeReport(out io.Writer, m *core.Medium, handles []kb.Handle, stats *runStats, topics map[string]int) error {
	sorted := append([]kb.Handle(nil), handles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	// RX and INTERFERED count membership at activation time.
	fmt.Fprintln(tw, "RADIO\tX\tY\tTX\tRX\tINTERFERED\tSIGNAL_DBM")
	for _, h := range sorted {
		r := m.Registry().Get(h)
		if r == nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%d\t%d\t%d\t%.1f\n",
			r.Name, r.Position.X, r.Position.Y,
			stats.transmissions[h], stats.receptions[h], stats.interfered[h],
			r.SignalStrength,
		)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	_, err := fmt.Fprintf(out, "\nunheard transmissions: %d\nevents: antenna=%d connections=%d signal=%d\n",
		stats.empty, topics[bus.TopicAntenna], topics[bus.TopicConnections], topics[bus.TopicSignal])
	return err
}
