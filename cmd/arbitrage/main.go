// Package main is the entry point for the perpetual-futures arbitrage
// engine: one configured bot, two venue adapters, a fixed-rate spread
// monitor, and the execution state machine, joined by a supervisor that
// owns shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	executionapp "github.com/deltaneutral/perp-arb-engine/business/execution/app"
	"github.com/deltaneutral/perp-arb-engine/business/execution/domain"
	executioninfra "github.com/deltaneutral/perp-arb-engine/business/execution/infra"
	"github.com/deltaneutral/perp-arb-engine/business/venue"
	venuedi "github.com/deltaneutral/perp-arb-engine/business/venue/di"
	"github.com/deltaneutral/perp-arb-engine/business/venue/infra/venueA"
	"github.com/deltaneutral/perp-arb-engine/business/venue/infra/venueB"
	"github.com/deltaneutral/perp-arb-engine/internal/apm"
	"github.com/deltaneutral/perp-arb-engine/internal/config"
	"github.com/deltaneutral/perp-arb-engine/internal/di"
	"github.com/deltaneutral/perp-arb-engine/internal/health"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
	"github.com/deltaneutral/perp-arb-engine/internal/metrics"
	"github.com/deltaneutral/perp-arb-engine/internal/monolith"
	"github.com/deltaneutral/perp-arb-engine/internal/supervisor"
	"github.com/deltaneutral/perp-arb-engine/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("perp-arb-engine %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	code := run(context.Background(), *configPath, !*cliMode)
	os.Exit(int(code))
}

func run(ctx context.Context, configPath string, tuiMode bool) supervisor.ExitCode {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		return supervisor.ExitConfigError
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	var log *logger.Logger
	if tuiMode {
		// In TUI mode stdout/stderr are owned by the dashboard; logs still flow
		// through the structured logger, just discarded rather than printed.
		log = logger.New(io.Discard, logLevel, cfg.App.Name, nil)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, nil, logger.WithFormat(logger.FormatTUI))
		log.Info(ctx, "starting perp-arb-engine", "version", version, "environment", cfg.App.Environment)
	}

	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "provider", "zipkin", "endpoint", cfg.Telemetry.OTLPEndpoint)

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthServer := health.NewServer(8081, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", 8081)
	}
	defer healthServer.Stop(ctx)

	mono, err := monolith.New(cfg, log)
	if err != nil {
		log.Error(ctx, "failed to create application container", "error", err)
		return supervisor.ExitConfigError
	}
	defer mono.Close()

	modules := []monolith.Module{venue.Module{}}
	if err := mono.RegisterModules(modules...); err != nil {
		log.Error(ctx, "failed to register modules", "error", err)
		return supervisor.ExitConfigError
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		log.Error(ctx, "failed to start modules", "error", err)
		return supervisor.ExitConfigError
	}

	bot := cfg.Bots[0]
	venueAAdapter := di.Resolve[*venueA.Adapter](mono.Services(), venuedi.VenueA)
	venueBAdapter := di.Resolve[*venueB.Adapter](mono.Services(), venuedi.VenueB)

	shutdown := make(chan struct{})
	opportunities := make(chan domain.Opportunity, 1)

	var reporter executionapp.Reporter
	if tuiMode {
		reporter = executioninfra.NewTUIReporter()
	} else {
		reporter = executioninfra.NewConsoleReporter(log.With("component", "reporter"))
	}
	if err := reporter.Start(ctx); err != nil {
		log.Warn(ctx, "failed to start reporter", "error", err)
	}
	defer reporter.Stop()

	engine := executionapp.New(
		executionapp.Config{
			BotID:        bot.ID,
			Symbol:       bot.Pair,
			SpreadEntry:  bot.SpreadEntry,
			SpreadExit:   bot.SpreadExit,
			PositionSize: bot.PositionSize,
		},
		venueAAdapter, venueBAdapter,
		opportunities, shutdown, reporter, log.With("component", "engine"),
	)

	monitor := executionapp.NewMonitor(
		executionapp.MonitorConfig{
			BotID:       bot.ID,
			Symbol:      bot.Pair,
			SpreadEntry: bot.SpreadEntry,
		},
		venueAAdapter, venueBAdapter,
		engine, opportunities, shutdown, reporter, log.With("component", "monitor"),
	)

	healthServer.RegisterCheck("venue_a_connected", func(context.Context) (bool, string) {
		if !venueAAdapter.IsConnected() {
			return false, "venue A disconnected"
		}
		return true, ""
	})
	healthServer.RegisterCheck("venue_b_connected", func(context.Context) (bool, string) {
		if !venueBAdapter.IsConnected() {
			return false, "venue B disconnected"
		}
		return true, ""
	})
	healthServer.RegisterCheck("engine_not_halted", func(context.Context) (bool, string) {
		if engine.State() == domain.StateHalted {
			return false, "execution engine halted"
		}
		return true, ""
	})

	sup := supervisor.New(venueAAdapter, venueBAdapter, monitor, engine, shutdown, log)

	if tuiMode {
		return runTUI(ctx, sup, bot.ID, bot.Pair)
	}
	return runCLI(ctx, sup)
}

func runCLI(ctx context.Context, sup *supervisor.Supervisor) supervisor.ExitCode {
	return sup.Run(ctx)
}

// runTUI runs the supervisor in the background while the dashboard owns the
// terminal; the TUI's own ctrl+c/q handling broadcasts shutdown indirectly
// by cancelling ctx once the program exits.
func runTUI(ctx context.Context, sup *supervisor.Supervisor, botID, symbol string) supervisor.ExitCode {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.New(botID, symbol), tea.WithAltScreen())
	ui.Program = p

	exitCh := make(chan supervisor.ExitCode, 1)
	go func() {
		exitCh <- sup.Run(runCtx)
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
	}
	cancel()

	return <-exitCh
}
