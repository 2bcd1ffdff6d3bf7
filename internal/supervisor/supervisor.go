// Package supervisor owns the top-level shutdown broadcast and joins the
// monitor and execution engine tasks on termination.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	executionapp "github.com/deltaneutral/perp-arb-engine/business/execution/app"
	executiondomain "github.com/deltaneutral/perp-arb-engine/business/execution/domain"
	venueapp "github.com/deltaneutral/perp-arb-engine/business/venue/app"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
)

const (
	// shutdownGrace bounds how long the supervisor waits for the monitor and
	// engine tasks to exit once shutdown has been broadcast.
	shutdownGrace = 10 * time.Second

	// signalEscalationWindow is how long a second identical interrupt signal
	// still counts as an escalation rather than a no-op repeat.
	signalEscalationWindow = 2 * time.Second
)

// ExitCode is the process exit code contract: 0 clean, 1 config error,
// 2 halted, 3 shutdown deadline exceeded or signal escalation.
type ExitCode int

const (
	ExitClean       ExitCode = 0
	ExitConfigError ExitCode = 1
	ExitHalted      ExitCode = 2
	ExitDeadline    ExitCode = 3
)

// Supervisor starts the monitor and execution engine, watches for
// SIGINT/SIGTERM, and drives the shutdown sequence on termination.
type Supervisor struct {
	venueA venueapp.Adapter
	venueB venueapp.Adapter

	monitor *executionapp.Monitor
	engine  *executionapp.Engine

	shutdown     chan struct{}
	shutdownOnce sync.Once

	log logger.LoggerInterface
}

// New constructs a Supervisor. shutdown is the broadcast channel already
// wired into the monitor and engine at construction time; the supervisor
// closes it exactly once.
func New(
	venueA, venueB venueapp.Adapter,
	monitor *executionapp.Monitor,
	engine *executionapp.Engine,
	shutdown chan struct{},
	log logger.LoggerInterface,
) *Supervisor {
	return &Supervisor{
		venueA:   venueA,
		venueB:   venueB,
		monitor:  monitor,
		engine:   engine,
		shutdown: shutdown,
		log:      log,
	}
}

// Run starts the monitor and engine tasks, blocks until a termination
// signal or ctx cancellation arrives, drives the shutdown sequence, and
// returns the process exit code.
func (s *Supervisor) Run(ctx context.Context) ExitCode {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.monitor.Start(runCtx)
	s.engine.Start(runCtx)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	escalated := make(chan struct{})
	go s.watchSignals(sigCh, escalated)

	select {
	case <-escalated:
		s.log.Error(ctx, "second shutdown signal received within grace window, exiting immediately")
		s.broadcastShutdown()
		return ExitDeadline
	case <-ctx.Done():
		s.broadcastShutdown()
	case <-s.shutdown:
		// Shutdown already initiated by something other than our own signal
		// handler (e.g. a test harness).
	}

	result := make(chan ExitCode, 1)
	go func() { result <- s.drainAndExit(cancel) }()
	select {
	case code := <-result:
		return code
	case <-escalated:
		s.log.Error(ctx, "second shutdown signal received within grace window, exiting immediately")
		return ExitDeadline
	}
}

// watchSignals broadcasts shutdown on the first SIGINT/SIGTERM and signals
// escalated if a second identical signal arrives within
// signalEscalationWindow.
func (s *Supervisor) watchSignals(sigCh <-chan os.Signal, escalated chan<- struct{}) {
	first, ok := <-sigCh
	if !ok {
		return
	}
	s.log.Warn(context.Background(), "shutdown signal received", "signal", first.String())
	s.broadcastShutdown()

	timer := time.After(signalEscalationWindow)
	for {
		select {
		case second, ok := <-sigCh:
			if !ok {
				return
			}
			if second != first {
				continue
			}
			s.log.Error(context.Background(), "second shutdown signal received", "signal", second.String())
			close(escalated)
			return
		case <-timer:
			return
		}
	}
}

func (s *Supervisor) broadcastShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// drainAndExit joins the monitor and engine tasks, disconnects both
// adapters, and maps the outcome to an exit code. If the tasks have not
// joined within shutdownGrace, cancel aborts their contexts and the
// supervisor returns ExitDeadline without waiting further.
func (s *Supervisor) drainAndExit(cancel context.CancelFunc) ExitCode {
	joined := make(chan struct{})
	go func() {
		<-s.engine.Done()
		<-s.monitor.Done()
		ctx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = s.venueA.Disconnect(ctx)
		_ = s.venueB.Disconnect(ctx)
		close(joined)
	}()

	select {
	case <-joined:
	case <-time.After(shutdownGrace):
		cancel()
		s.log.Error(context.Background(), "shutdown deadline exceeded, forcing exit")
		return ExitDeadline
	}

	if s.engine.State() == executiondomain.StateHalted {
		return ExitHalted
	}
	return ExitClean
}
