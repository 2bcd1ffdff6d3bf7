package infra

import (
	"context"
	"time"

	marketdomain "github.com/deltaneutral/perp-arb-engine/business/market/domain"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"

	"github.com/deltaneutral/perp-arb-engine/business/execution/app"
	"github.com/deltaneutral/perp-arb-engine/business/execution/domain"
)

// ConsoleReporter implements app.Reporter for CLI mode: every event becomes a
// structured log record instead of a dashboard update.
type ConsoleReporter struct {
	log logger.LoggerInterface
}

// NewConsoleReporter creates a ConsoleReporter writing through log.
func NewConsoleReporter(log logger.LoggerInterface) *ConsoleReporter {
	return &ConsoleReporter{log: log}
}

var _ app.Reporter = (*ConsoleReporter)(nil)

func (r *ConsoleReporter) Start(ctx context.Context) error {
	r.log.Info(ctx, "engine started")
	return nil
}

func (r *ConsoleReporter) ReportSpread(result marketdomain.SpreadResult) {
	r.log.Debug(context.Background(), "spread sample",
		"direction", string(result.Direction),
		"spread_pct", result.SpreadPct,
		"ask_a", result.AskA, "bid_a", result.BidA,
		"ask_b", result.AskB, "bid_b", result.BidB,
	)
}

func (r *ConsoleReporter) ReportTransition(botID string, from, to domain.State) {
	r.log.Info(context.Background(), "state transition",
		"bot_id", botID, "from", from.String(), "to", to.String())
}

func (r *ConsoleReporter) ReportPosition(pos *domain.Position) {
	if pos == nil {
		r.log.Info(context.Background(), "position closed")
		return
	}
	r.log.Info(context.Background(), "position opened",
		"symbol", pos.Symbol,
		"direction", string(pos.EntryDirection),
		"quantity", pos.FilledQuantity,
		"long_venue", pos.LongVenue, "long_entry", pos.LongEntryPrice,
		"short_venue", pos.ShortVenue, "short_entry", pos.ShortEntryPrice,
	)
}

func (r *ConsoleReporter) UpdateConnectionStatus(name string, connected bool, latency time.Duration) {
	r.log.Debug(context.Background(), "venue connection status",
		"venue", name, "connected", connected, "latency", latency)
}

func (r *ConsoleReporter) ReportError(err error) {
	r.log.Error(context.Background(), "execution error", "error", err)
}

func (r *ConsoleReporter) Stop() error {
	return nil
}
