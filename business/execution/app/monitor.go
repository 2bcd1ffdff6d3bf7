package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	marketdomain "github.com/deltaneutral/perp-arb-engine/business/market/domain"
	venueapp "github.com/deltaneutral/perp-arb-engine/business/venue/app"

	"github.com/deltaneutral/perp-arb-engine/business/execution/domain"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
)

const (
	monitorMeterName = "github.com/deltaneutral/perp-arb-engine/business/execution/app"

	monitorTickInterval = 25 * time.Millisecond
	orderbookStaleness  = 5 * time.Second
	spreadLogDecimation = time.Second
)

// ReadySignal is the backpressure signal the monitor consults before
// publishing: the execution engine is the only implementation,
// kept as a narrow interface so the monitor can be tested without a whole
// Engine.
type ReadySignal interface {
	ReadyForOpportunity() bool
}

// MonitorConfig configures one Monitor instance, one per configured bot.
type MonitorConfig struct {
	BotID       string
	Symbol      string
	SpreadEntry float64
}

type monitorMetrics struct {
	spreadsObserved        metric.Int64Counter
	opportunitiesPublished metric.Int64Counter
	opportunitiesDropped   metric.Int64Counter
}

// Monitor is the fixed-rate sampler: every tick it reads the latest
// top-of-book for both venues, invokes the pure spread calculator, and
// publishes an Opportunity when the spread clears the entry threshold and
// the engine is ready to act on one.
type Monitor struct {
	cfg MonitorConfig

	venueA venueapp.Adapter
	venueB venueapp.Adapter

	engine        ReadySignal
	opportunities chan<- domain.Opportunity
	shutdown      <-chan struct{}

	reporter Reporter
	log      logger.LoggerInterface
	metrics  *monitorMetrics

	lastLogged       map[marketdomain.SpreadDirection]time.Time
	lastConnReported time.Time

	done chan struct{}
}

// NewMonitor constructs a Monitor. opportunities must be a channel of
// capacity 1; the monitor itself never blocks on it (drop-newest policy).
// A nil reporter is replaced with NopReporter.
func NewMonitor(
	cfg MonitorConfig,
	venueA, venueB venueapp.Adapter,
	engine ReadySignal,
	opportunities chan<- domain.Opportunity,
	shutdown <-chan struct{},
	reporter Reporter,
	log logger.LoggerInterface,
) *Monitor {
	if reporter == nil {
		reporter = NopReporter{}
	}
	m := &Monitor{
		cfg:           cfg,
		venueA:        venueA,
		venueB:        venueB,
		engine:        engine,
		opportunities: opportunities,
		shutdown:      shutdown,
		reporter:      reporter,
		log:           log,
		lastLogged:    make(map[marketdomain.SpreadDirection]time.Time),
		done:          make(chan struct{}),
	}
	if err := m.initMetrics(); err != nil {
		log.Warn(context.Background(), "failed to init monitor metrics", "error", err)
	}
	return m
}

func (m *Monitor) initMetrics() error {
	meter := otel.Meter(monitorMeterName)
	var err error
	mm := &monitorMetrics{}

	mm.spreadsObserved, err = meter.Int64Counter(
		"monitor_spreads_observed_total",
		metric.WithDescription("Total spread samples computed by the monitor"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return err
	}
	mm.opportunitiesPublished, err = meter.Int64Counter(
		"monitor_opportunities_published_total",
		metric.WithDescription("Total opportunities published into the execution channel"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}
	mm.opportunitiesDropped, err = meter.Int64Counter(
		"monitor_opportunities_dropped_total",
		metric.WithDescription("Total opportunities dropped because the channel was full (drop-newest)"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}
	m.metrics = mm
	return nil
}

// Start launches the monitor's tick loop in its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

// Done is closed once the tick loop has exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(monitorTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one sampling pass. It never blocks: a missing or
// stale book is a silent skip, and a full opportunity channel drops the
// newest sample rather than waiting for the consumer.
func (m *Monitor) tick(ctx context.Context) {
	now := time.Now()

	if now.Sub(m.lastConnReported) >= time.Second {
		m.lastConnReported = now
		m.reporter.UpdateConnectionStatus(m.venueA.Name(), m.venueA.IsConnected(), 0)
		m.reporter.UpdateConnectionStatus(m.venueB.Name(), m.venueB.IsConnected(), 0)
	}

	bookA, okA := m.venueA.Snapshot(m.cfg.Symbol)
	bookB, okB := m.venueB.Snapshot(m.cfg.Symbol)
	if !okA || !okB {
		return
	}
	if bookA.IsStale(now, orderbookStaleness) || bookB.IsStale(now, orderbookStaleness) {
		return
	}

	result, ok := marketdomain.Calculate(bookA, bookB)
	if !ok {
		return
	}

	if m.metrics != nil {
		m.metrics.spreadsObserved.Add(ctx, 1, metric.WithAttributes(
			attribute.String("direction", string(result.Direction)),
		))
	}
	m.logSpreadDecimated(ctx, result)

	if result.SpreadPct < m.cfg.SpreadEntry {
		return
	}
	if !m.engine.ReadyForOpportunity() {
		return
	}

	opp := domain.Opportunity{
		BotID:     m.cfg.BotID,
		Symbol:    m.cfg.Symbol,
		Direction: result.Direction,
		SpreadPct: result.SpreadPct,
		AskA:      result.AskA,
		BidA:      result.BidA,
		AskB:      result.AskB,
		BidB:      result.BidB,
		Timestamp: result.Timestamp,
	}

	select {
	case m.opportunities <- opp:
		if m.metrics != nil {
			m.metrics.opportunitiesPublished.Add(ctx, 1)
		}
	default:
		if m.metrics != nil {
			m.metrics.opportunitiesDropped.Add(ctx, 1)
		}
	}
}

// logSpreadDecimated emits at most one "spread observed" diagnostic per
// second per direction.
func (m *Monitor) logSpreadDecimated(ctx context.Context, result marketdomain.SpreadResult) {
	last, ok := m.lastLogged[result.Direction]
	if ok && result.Timestamp.Sub(last) < spreadLogDecimation {
		return
	}
	m.lastLogged[result.Direction] = result.Timestamp
	m.reporter.ReportSpread(result)
	m.log.Debug(ctx, "spread observed",
		"bot_id", m.cfg.BotID,
		"symbol", m.cfg.Symbol,
		"direction", string(result.Direction),
		"spread_pct", round4(result.SpreadPct),
	)
}

// round4 rounds to 4 decimal places for logging only;
// threshold comparisons always use the raw, unrounded value.
func round4(v float64) float64 {
	const scale = 10000
	return float64(int64(v*scale+sign(v)*0.5)) / scale
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
