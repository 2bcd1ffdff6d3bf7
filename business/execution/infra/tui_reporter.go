// Package infra contains infrastructure adapters for the execution context:
// the reporters that carry monitor/engine events to the operator.
package infra

import (
	"context"
	"time"

	marketdomain "github.com/deltaneutral/perp-arb-engine/business/market/domain"
	"github.com/deltaneutral/perp-arb-engine/pkg/ui"

	"github.com/deltaneutral/perp-arb-engine/business/execution/app"
	"github.com/deltaneutral/perp-arb-engine/business/execution/domain"
)

// TUIReporter implements app.Reporter for the Bubble Tea dashboard.
//
// Note: the TUI program itself is started by main; this reporter only sends
// messages to the already-running program (ui.Send drops them silently when
// no program is up, so CLI-mode code paths can share wiring).
type TUIReporter struct {
	started bool
}

// NewTUIReporter creates a new TUIReporter.
func NewTUIReporter() *TUIReporter {
	return &TUIReporter{}
}

var _ app.Reporter = (*TUIReporter)(nil)

// Start initializes the TUI reporter.
func (r *TUIReporter) Start(ctx context.Context) error {
	r.started = true
	ui.Send(ui.LogMsg{Level: "info", Message: "engine started"})
	return nil
}

// ReportSpread forwards a (decimated) spread sample to the dashboard.
func (r *TUIReporter) ReportSpread(result marketdomain.SpreadResult) {
	if !r.started {
		return
	}
	ui.Send(ui.SpreadMsg{
		Direction: string(result.Direction),
		SpreadPct: result.SpreadPct,
		AskA:      result.AskA,
		BidA:      result.BidA,
		AskB:      result.AskB,
		BidB:      result.BidB,
		Timestamp: result.Timestamp,
	})
}

// ReportTransition forwards an engine state transition.
func (r *TUIReporter) ReportTransition(botID string, from, to domain.State) {
	if !r.started {
		return
	}
	ui.Send(ui.StateMsg{BotID: botID, From: from.String(), To: to.String()})
	if to == domain.StateHalted {
		ui.Send(ui.LogMsg{Level: "error", Message: "engine halted; operator action required"})
	}
}

// ReportPosition forwards the current position snapshot; nil means flat.
func (r *TUIReporter) ReportPosition(pos *domain.Position) {
	if !r.started {
		return
	}
	if pos == nil {
		ui.Send(ui.PositionMsg{Open: false})
		return
	}
	ui.Send(ui.PositionMsg{
		Open:            true,
		Symbol:          pos.Symbol,
		Direction:       string(pos.EntryDirection),
		FilledQuantity:  pos.FilledQuantity,
		LongVenue:       pos.LongVenue,
		ShortVenue:      pos.ShortVenue,
		LongEntryPrice:  pos.LongEntryPrice,
		ShortEntryPrice: pos.ShortEntryPrice,
		OpenedAt:        pos.OpenedAt,
	})
}

// UpdateConnectionStatus forwards a venue adapter's connection state.
func (r *TUIReporter) UpdateConnectionStatus(name string, connected bool, latency time.Duration) {
	if !r.started {
		return
	}
	ui.Send(ui.ConnectionStatusMsg{Name: name, Connected: connected, Latency: latency})
}

// ReportError forwards an error-level event.
func (r *TUIReporter) ReportError(err error) {
	if !r.started {
		return
	}
	ui.Send(ui.ErrorMsg{Error: err})
}

// Stop gracefully shuts down the TUI reporter.
func (r *TUIReporter) Stop() error {
	r.started = false
	return nil
}
