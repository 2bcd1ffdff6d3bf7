// Package app implements the execution state machine: the component
// that turns a published Opportunity into a pair of venue orders, tracks
// the resulting delta-neutral position, and unwinds it once the reverse
// spread crosses the exit threshold.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	marketdomain "github.com/deltaneutral/perp-arb-engine/business/market/domain"
	venueapp "github.com/deltaneutral/perp-arb-engine/business/venue/app"
	venuedomain "github.com/deltaneutral/perp-arb-engine/business/venue/domain"

	"github.com/deltaneutral/perp-arb-engine/business/execution/domain"
	"github.com/deltaneutral/perp-arb-engine/internal/apperror"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
)

const (
	tracerName = "github.com/deltaneutral/perp-arb-engine/business/execution/app"
	meterName  = "github.com/deltaneutral/perp-arb-engine/business/execution/app"

	exitSampleInterval = 25 * time.Millisecond
	legTimeout         = 2 * time.Second
)

// Config configures one Engine instance, one per configured bot.
type Config struct {
	BotID        string
	Symbol       string
	SpreadEntry  float64
	SpreadExit   float64
	PositionSize float64
}

// engineMetrics holds OTEL metric instruments for the engine.
type engineMetrics struct {
	transitions    metric.Int64Counter
	legFailures    metric.Int64Counter
	haltedTotal    metric.Int64Counter
	entryLatencyMs metric.Float64Histogram
}

// Engine is the per-bot execution state machine. A single goroutine
// (run) ever mutates position and performs transitions, so the only truly
// concurrent pieces of state are the ones other goroutines read:
// state (atomic.Value) and ready (atomic.Bool), which together enforce the
// single-flight invariant.
type Engine struct {
	cfg Config

	venueA venueapp.Adapter
	venueB venueapp.Adapter

	opportunities <-chan domain.Opportunity
	shutdown      <-chan struct{}

	state atomic.Value // domain.State
	ready atomic.Bool

	position *domain.Position // nil unless Holding/Exiting

	reporter Reporter
	log      logger.LoggerInterface
	tracer   trace.Tracer
	metrics  *engineMetrics

	done chan struct{}
}

// New constructs an Engine. A nil reporter is replaced with NopReporter, so
// tests and headless deployments need no wiring.
func New(
	cfg Config,
	venueA, venueB venueapp.Adapter,
	opportunities <-chan domain.Opportunity,
	shutdown <-chan struct{},
	reporter Reporter,
	log logger.LoggerInterface,
) *Engine {
	if reporter == nil {
		reporter = NopReporter{}
	}
	e := &Engine{
		cfg:           cfg,
		venueA:        venueA,
		venueB:        venueB,
		opportunities: opportunities,
		shutdown:      shutdown,
		reporter:      reporter,
		log:           log,
		tracer:        otel.Tracer(tracerName),
		done:          make(chan struct{}),
	}
	e.state.Store(domain.StateIdle)
	e.ready.Store(true)
	if err := e.initMetrics(); err != nil {
		log.Warn(context.Background(), "failed to init execution engine metrics", "error", err)
	}
	return e
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	e.metrics = &engineMetrics{}

	e.metrics.transitions, err = meter.Int64Counter(
		"execution_state_transitions_total",
		metric.WithDescription("Total execution engine state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return err
	}
	e.metrics.legFailures, err = meter.Int64Counter(
		"execution_leg_failures_total",
		metric.WithDescription("Total failed order legs"),
		metric.WithUnit("{leg}"),
	)
	if err != nil {
		return err
	}
	e.metrics.haltedTotal, err = meter.Int64Counter(
		"execution_halted_total",
		metric.WithDescription("Total transitions into the Halted sink"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return err
	}
	e.metrics.entryLatencyMs, err = meter.Float64Histogram(
		"execution_entry_latency_ms",
		metric.WithDescription("Wall-clock time from Opportunity receipt to Holding or failure"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000),
	)
	return err
}

// State returns the engine's current state. Safe for concurrent callers.
func (e *Engine) State() domain.State {
	return e.state.Load().(domain.State)
}

// ReadyForOpportunity reports the backpressure signal the monitor consults
// before publishing.
func (e *Engine) ReadyForOpportunity() bool {
	return e.ready.Load()
}

// transition performs a single-flight compare-and-swap from `from` to `to`
// and updates the backpressure flag to match the new state.
func (e *Engine) transition(ctx context.Context, from, to domain.State) bool {
	if !e.state.CompareAndSwap(from, to) {
		return false
	}
	e.ready.Store(to.ReadyForOpportunity())
	if e.metrics != nil {
		e.metrics.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(from)),
			attribute.String("to", string(to)),
		))
		if to == domain.StateHalted {
			e.metrics.haltedTotal.Add(ctx, 1)
		}
	}
	e.log.Info(ctx, "execution state transition",
		"bot_id", e.cfg.BotID, "from", string(from), "to", string(to))
	e.reporter.ReportTransition(e.cfg.BotID, from, to)
	return true
}

// Start launches the engine's run loop in its own goroutine.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

// Done is closed once the run loop has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(exitSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.shutdown:
			e.onShutdown(ctx)
			return
		case <-ctx.Done():
			e.onShutdown(ctx)
			return
		case opp := <-e.opportunities:
			e.handleOpportunity(ctx, opp)
		case <-ticker.C:
			if e.State() == domain.StateHolding {
				e.checkExitCondition(ctx)
			}
		}
	}
}

// handleOpportunity implements Idle -> Entering. Opportunities
// arriving in any other state are ignored (Holding drops them at the
// channel; any other state already failed the CAS below).
func (e *Engine) handleOpportunity(ctx context.Context, opp domain.Opportunity) {
	if !e.transition(ctx, domain.StateIdle, domain.StateEntering) {
		return
	}
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "enterPosition", trace.WithAttributes(
		attribute.String("symbol", opp.Symbol),
		attribute.String("direction", string(opp.Direction)),
		attribute.Float64("spread_pct", opp.SpreadPct),
	))
	defer span.End()

	legs := domain.AssignLegs(opp.Direction)
	longPrice, shortPrice := entryPrices(opp)

	longResp, shortResp := e.dispatchLegs(ctx, legs, opp, longPrice, shortPrice, false)

	if e.metrics != nil {
		e.metrics.entryLatencyMs.Record(ctx, float64(time.Since(start).Milliseconds()))
	}

	switch {
	case legFilled(longResp) && legFilled(shortResp):
		e.onEntrySuccess(ctx, opp, legs, longResp, shortResp)
	case legFilled(longResp) != legFilled(shortResp):
		e.onEntryPartial(ctx, opp, legs, longResp, shortResp)
	default:
		e.transition(ctx, domain.StateEntering, domain.StateIdle)
	}
}

// onEntrySuccess handles the case where both legs filled (Entering ->
// Holding). A fill-quantity imbalance is closed immediately on the larger
// leg before the position is recorded.
func (e *Engine) onEntrySuccess(ctx context.Context, opp domain.Opportunity, legs domain.LegAssignment, longResp, shortResp venuedomain.OrderResponse) {
	filled := longResp.FilledQuantity
	if shortResp.FilledQuantity < filled {
		filled = shortResp.FilledQuantity
	}

	if longResp.FilledQuantity > filled {
		excess := longResp.FilledQuantity - filled
		e.closeExcess(ctx, legs.LongVenue, venuedomain.SideSell, opp.Symbol, excess)
	} else if shortResp.FilledQuantity > filled {
		excess := shortResp.FilledQuantity - filled
		e.closeExcess(ctx, legs.ShortVenue, venuedomain.SideBuy, opp.Symbol, excess)
	}

	e.position = &domain.Position{
		Symbol:          opp.Symbol,
		EntryDirection:  opp.Direction,
		FilledQuantity:  filled,
		LongVenue:       legs.LongVenue,
		ShortVenue:      legs.ShortVenue,
		LongEntryPrice:  longResp.FilledPrice,
		ShortEntryPrice: shortResp.FilledPrice,
		OpenedAt:        time.Now(),
	}
	e.transition(ctx, domain.StateEntering, domain.StateHolding)
	e.reporter.ReportPosition(e.position)
}

// onEntryPartial handles one-leg-failed:
// the successful leg's fill is immediately closed at the opposite side.
func (e *Engine) onEntryPartial(ctx context.Context, opp domain.Opportunity, legs domain.LegAssignment, longResp, shortResp venuedomain.OrderResponse) {
	e.transition(ctx, domain.StateEntering, domain.StateEntryAborting)
	if e.metrics != nil {
		e.metrics.legFailures.Add(ctx, 1)
	}

	var venue string
	var closeSide venuedomain.Side
	var qty float64
	if legFilled(longResp) {
		venue, closeSide, qty = legs.LongVenue, venuedomain.SideSell, longResp.FilledQuantity
	} else {
		venue, closeSide, qty = legs.ShortVenue, venuedomain.SideBuy, shortResp.FilledQuantity
	}

	adapter := e.adapterFor(venue)
	price, ok := topOfBookForClose(adapter, opp.Symbol, closeSide)
	if !ok {
		e.halt(ctx, "no top-of-book available for abort-close", nil)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, legTimeout)
	defer cancel()
	_, err := adapter.PlaceOrder(reqCtx, venuedomain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        opp.Symbol,
		Side:          closeSide,
		OrderType:     venuedomain.OrderTypeLimit,
		Price:         price,
		Quantity:      qty,
		TimeInForce:   venuedomain.TimeInForceIOC,
		ReduceOnly:    true,
	})
	if err != nil {
		e.halt(ctx, "abort-close failed", err)
		return
	}
	e.transition(ctx, domain.StateEntryAborting, domain.StateIdle)
}

// closeExcess reduces the over-filled leg by qty at that venue's current
// opposite top-of-book; part of the Entering -> Holding transition, not a
// retry.
func (e *Engine) closeExcess(ctx context.Context, venue string, side venuedomain.Side, symbol string, qty float64) {
	adapter := e.adapterFor(venue)
	price, ok := topOfBookForClose(adapter, symbol, side)
	if !ok {
		e.log.Warn(ctx, "could not price excess close, skipping", "venue", venue)
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, legTimeout)
	defer cancel()
	if _, err := adapter.PlaceOrder(reqCtx, venuedomain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        symbol,
		Side:          side,
		OrderType:     venuedomain.OrderTypeLimit,
		Price:         price,
		Quantity:      qty,
		TimeInForce:   venuedomain.TimeInForceIOC,
		ReduceOnly:    true,
	}); err != nil {
		e.log.Error(ctx, "excess close failed", "venue", venue, "error", err)
	}
}

// checkExitCondition samples the reverse spread while Holding and triggers
// Holding -> Exiting once it crosses spread_exit_pct.
func (e *Engine) checkExitCondition(ctx context.Context) {
	pos := e.position
	if pos == nil {
		return
	}
	bookA, okA := e.venueA.Snapshot(e.cfg.Symbol)
	bookB, okB := e.venueB.Snapshot(e.cfg.Symbol)
	if !okA || !okB {
		return
	}
	reverse, ok := marketdomain.ReverseSpreadPct(bookA, bookB, pos.EntryDirection)
	if !ok {
		return
	}
	if reverse > e.cfg.SpreadExit {
		return
	}
	e.exitPosition(ctx, pos, bookA, bookB)
}

// exitPosition implements Holding -> Exiting -> Idle: two parallel
// reducing IOC orders on the reverse sides of the entry legs.
func (e *Engine) exitPosition(ctx context.Context, pos *domain.Position, bookA, bookB marketdomain.Orderbook) {
	if !e.transition(ctx, domain.StateHolding, domain.StateExiting) {
		return
	}

	longClose, shortClose := closeOrders(pos, bookA, bookB)
	longResp, shortResp := e.dispatchClosePair(ctx, pos, longClose, shortClose)

	if legFilled(longResp) && legFilled(shortResp) {
		e.position = nil
		e.transition(ctx, domain.StateExiting, domain.StateIdle)
		e.reporter.ReportPosition(nil)
		return
	}

	// Re-attempt once at the then-current top-of-book.
	bookA, okA := e.venueA.Snapshot(pos.Symbol)
	bookB, okB := e.venueB.Snapshot(pos.Symbol)
	if okA && okB {
		longClose, shortClose = closeOrders(pos, bookA, bookB)
		longResp, shortResp = e.dispatchClosePair(ctx, pos, longClose, shortClose)
		if legFilled(longResp) && legFilled(shortResp) {
			e.position = nil
			e.transition(ctx, domain.StateExiting, domain.StateIdle)
			e.reporter.ReportPosition(nil)
			return
		}
	}

	e.halt(ctx, "close leg retry failed", nil)
}

func (e *Engine) dispatchClosePair(ctx context.Context, pos *domain.Position, longClose, shortClose venuedomain.OrderRequest) (venuedomain.OrderResponse, venuedomain.OrderResponse) {
	longAdapter := e.adapterFor(pos.LongVenue)
	shortAdapter := e.adapterFor(pos.ShortVenue)

	var longResp, shortResp venuedomain.OrderResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reqCtx, cancel := context.WithTimeout(gctx, legTimeout)
		defer cancel()
		resp, err := longAdapter.PlaceOrder(reqCtx, longClose)
		longResp = resp
		return swallowLegErr(err)
	})
	g.Go(func() error {
		reqCtx, cancel := context.WithTimeout(gctx, legTimeout)
		defer cancel()
		resp, err := shortAdapter.PlaceOrder(reqCtx, shortClose)
		shortResp = resp
		return swallowLegErr(err)
	})
	_ = g.Wait()
	return longResp, shortResp
}

// dispatchLegs launches both entry PlaceOrder calls in parallel and joins
// them. Errors are
// swallowed into a zero-value, non-filled OrderResponse: a transport error
// is just another leg-failure shape to the caller.
func (e *Engine) dispatchLegs(ctx context.Context, legs domain.LegAssignment, opp domain.Opportunity, longPrice, shortPrice float64, reduceOnly bool) (venuedomain.OrderResponse, venuedomain.OrderResponse) {
	longAdapter := e.adapterFor(legs.LongVenue)
	shortAdapter := e.adapterFor(legs.ShortVenue)

	var longResp, shortResp venuedomain.OrderResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reqCtx, cancel := context.WithTimeout(gctx, legTimeout)
		defer cancel()
		resp, err := longAdapter.PlaceOrder(reqCtx, venuedomain.OrderRequest{
			ClientOrderID: uuid.NewString(),
			Symbol:        opp.Symbol,
			Side:          venuedomain.SideBuy,
			OrderType:     venuedomain.OrderTypeLimit,
			Price:         longPrice,
			Quantity:      e.cfg.PositionSize,
			TimeInForce:   venuedomain.TimeInForceIOC,
			ReduceOnly:    reduceOnly,
		})
		longResp = resp
		return swallowLegErr(err)
	})
	g.Go(func() error {
		reqCtx, cancel := context.WithTimeout(gctx, legTimeout)
		defer cancel()
		resp, err := shortAdapter.PlaceOrder(reqCtx, venuedomain.OrderRequest{
			ClientOrderID: uuid.NewString(),
			Symbol:        opp.Symbol,
			Side:          venuedomain.SideSell,
			OrderType:     venuedomain.OrderTypeLimit,
			Price:         shortPrice,
			Quantity:      e.cfg.PositionSize,
			TimeInForce:   venuedomain.TimeInForceIOC,
			ReduceOnly:    reduceOnly,
		})
		shortResp = resp
		return swallowLegErr(err)
	})
	_ = g.Wait()
	return longResp, shortResp
}

// onShutdown implements the engine's half of the supervisor's shutdown
// sequence: refuse new entries and, if Holding, issue a
// best-effort close immediately regardless of spread_exit.
func (e *Engine) onShutdown(ctx context.Context) {
	e.ready.Store(false)
	if e.State() != domain.StateHolding {
		return
	}
	pos := e.position
	if pos == nil {
		return
	}
	bookA, okA := e.venueA.Snapshot(pos.Symbol)
	bookB, okB := e.venueB.Snapshot(pos.Symbol)
	if !okA || !okB {
		e.halt(ctx, "no book available for shutdown close", nil)
		return
	}
	e.exitPosition(ctx, pos, bookA, bookB)
}

func (e *Engine) halt(ctx context.Context, reason string, cause error) {
	e.transition(ctx, e.State(), domain.StateHalted)
	e.state.Store(domain.StateHalted)
	e.ready.Store(false)
	e.log.Error(ctx, "execution engine halted", "bot_id", e.cfg.BotID, "reason", reason, "error", cause)
	e.reporter.ReportError(apperror.New(apperror.CodeHalted, apperror.WithContext(reason), apperror.WithCause(cause)))
}

func (e *Engine) adapterFor(venue string) venueapp.Adapter {
	if venue == "A" {
		return e.venueA
	}
	return e.venueB
}

func legFilled(resp venuedomain.OrderResponse) bool {
	return resp.Status.Filled() && resp.FilledQuantity > 0
}

// swallowLegErr always returns nil: the errgroup here is only used for
// fan-out/join, never to abort the sibling call. A leg error (any
// apperror.Code) is reported through the zero-value, non-filled
// OrderResponse, not by failing g.Wait().
func swallowLegErr(err error) error {
	return nil
}

// entryPrices returns the (long, short) prices to use for an entry: the
// opposite side's top-of-book price observed in the opportunity (we are
// always the taker).
func entryPrices(opp domain.Opportunity) (longPrice, shortPrice float64) {
	if opp.Direction == marketdomain.DirectionAOverB {
		// Long leg on B at askB, short leg on A at bidA.
		return opp.AskB, opp.BidA
	}
	// Long leg on A at askA, short leg on B at bidB.
	return opp.AskA, opp.BidB
}

// closeOrders builds the two reducing IOC close requests for an open
// position, pricing each at that venue's current opposite top-of-book.
func closeOrders(pos *domain.Position, bookA, bookB marketdomain.Orderbook) (venuedomain.OrderRequest, venuedomain.OrderRequest) {
	var longBook, shortBook marketdomain.Orderbook
	if pos.LongVenue == "A" {
		longBook, shortBook = bookA, bookB
	} else {
		longBook, shortBook = bookB, bookA
	}
	longBid, _ := longBook.BestBid()
	shortAsk, _ := shortBook.BestAsk()

	longClose := venuedomain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        pos.Symbol,
		Side:          venuedomain.SideSell,
		OrderType:     venuedomain.OrderTypeLimit,
		Price:         longBid.Price,
		Quantity:      pos.FilledQuantity,
		TimeInForce:   venuedomain.TimeInForceIOC,
		ReduceOnly:    true,
	}
	shortClose := venuedomain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        pos.Symbol,
		Side:          venuedomain.SideBuy,
		OrderType:     venuedomain.OrderTypeLimit,
		Price:         shortAsk.Price,
		Quantity:      pos.FilledQuantity,
		TimeInForce:   venuedomain.TimeInForceIOC,
		ReduceOnly:    true,
	}
	return longClose, shortClose
}

func topOfBookForClose(adapter venueapp.Adapter, symbol string, side venuedomain.Side) (float64, bool) {
	book, ok := adapter.Snapshot(symbol)
	if !ok {
		return 0, false
	}
	if side == venuedomain.SideSell {
		level, ok := book.BestBid()
		return level.Price, ok
	}
	level, ok := book.BestAsk()
	return level.Price, ok
}
