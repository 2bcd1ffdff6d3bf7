package app

import (
	"context"
	"time"

	marketdomain "github.com/deltaneutral/perp-arb-engine/business/market/domain"

	"github.com/deltaneutral/perp-arb-engine/business/execution/domain"
)

// Reporter is the outbound port the monitor and engine publish operator-facing
// events through: the TUI dashboard in interactive mode, a log-backed reporter
// in CLI mode. Implementations must never block — every method is called from
// the 25 ms tick path or from a state transition.
type Reporter interface {
	// Start initializes the reporter. The TUI implementation uses this to
	// begin forwarding into the (already running) Bubble Tea program.
	Start(ctx context.Context) error

	// ReportSpread publishes a spread sample. The monitor decimates these to
	// at most one per second per direction before calling.
	ReportSpread(result marketdomain.SpreadResult)

	// ReportTransition publishes an engine state transition.
	ReportTransition(botID string, from, to domain.State)

	// ReportPosition publishes the engine's current position; nil means flat.
	ReportPosition(pos *domain.Position)

	// UpdateConnectionStatus publishes a venue adapter's connection state.
	UpdateConnectionStatus(name string, connected bool, latency time.Duration)

	// ReportError publishes an error-level event. The engine calls it when
	// it enters Halted.
	ReportError(err error)

	// Stop gracefully shuts down the reporter.
	Stop() error
}

// NopReporter discards every event. Used in tests and as the default when no
// reporter is wired.
type NopReporter struct{}

var _ Reporter = NopReporter{}

func (NopReporter) Start(ctx context.Context) error { return nil }

func (NopReporter) ReportSpread(marketdomain.SpreadResult) {}

func (NopReporter) ReportTransition(string, domain.State, domain.State) {}

func (NopReporter) ReportPosition(*domain.Position) {}

func (NopReporter) UpdateConnectionStatus(name string, connected bool, latency time.Duration) {}

func (NopReporter) ReportError(error) {}

func (NopReporter) Stop() error { return nil }
