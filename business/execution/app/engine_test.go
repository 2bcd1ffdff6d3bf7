package app

import (
	"context"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	marketdomain "github.com/deltaneutral/perp-arb-engine/business/market/domain"
	venuedomain "github.com/deltaneutral/perp-arb-engine/business/venue/domain"

	"github.com/deltaneutral/perp-arb-engine/business/execution/domain"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
)

// fakeAdapter is a minimal, test-only venueapp.Adapter: a static orderbook
// and a scriptable PlaceOrder response, matching the shape the engine
// actually calls (Snapshot for pricing, PlaceOrder for legs).
type fakeAdapter struct {
	name string

	mu        sync.Mutex
	book      marketdomain.Orderbook
	placeFunc func(req venuedomain.OrderRequest) (venuedomain.OrderResponse, error)
	placed    []venuedomain.OrderRequest
}

func newFakeAdapter(name string, bid, ask float64) *fakeAdapter {
	return &fakeAdapter{
		name: name,
		book: marketdomain.Orderbook{
			Symbol:    "BTC-PERP",
			Venue:     name,
			Timestamp: time.Now(),
			Bids:      []marketdomain.BookLevel{{Price: bid, Quantity: 10}},
			Asks:      []marketdomain.BookLevel{{Price: ask, Quantity: 10}},
		},
	}
}

func (f *fakeAdapter) setBook(bid, ask float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.book.Bids = []marketdomain.BookLevel{{Price: bid, Quantity: 10}}
	f.book.Asks = []marketdomain.BookLevel{{Price: ask, Quantity: 10}}
	f.book.Timestamp = time.Now()
}

func (f *fakeAdapter) Connect(ctx context.Context) error    { return nil }
func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }
func (f *fakeAdapter) SubscribeOrderbook(ctx context.Context, symbol string) error   { return nil }
func (f *fakeAdapter) UnsubscribeOrderbook(ctx context.Context, symbol string) error { return nil }

func (f *fakeAdapter) PlaceOrder(ctx context.Context, req venuedomain.OrderRequest) (venuedomain.OrderResponse, error) {
	f.mu.Lock()
	fn := f.placeFunc
	f.placed = append(f.placed, req)
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return venuedomain.OrderResponse{
		Status:         venuedomain.OrderStatusFilled,
		FilledQuantity: req.Quantity,
		FilledPrice:    req.Price,
	}, nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, orderID string) error { return nil }

func (f *fakeAdapter) Snapshot(symbol string) (marketdomain.Orderbook, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.book, true
}

func (f *fakeAdapter) IsConnected() bool { return true }
func (f *fakeAdapter) IsStale() bool     { return false }
func (f *fakeAdapter) Reconnect(ctx context.Context) error { return nil }

func (f *fakeAdapter) Position(ctx context.Context, symbol string) (venuedomain.PositionInfo, bool, error) {
	return venuedomain.PositionInfo{}, false, nil
}

func (f *fakeAdapter) Name() string { return f.name }

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func testConfig() Config {
	return Config{
		BotID:        "bot-1",
		Symbol:       "BTC-PERP",
		SpreadEntry:  0.05,
		SpreadExit:   0.01,
		PositionSize: 1,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// waitForState polls e.State() until it equals want or the deadline passes.
func waitForState(t *testing.T, e *Engine, want domain.State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v after %s, want %v", e.State(), timeout, want)
}

// Both legs fill: Idle -> Entering -> Holding. Venue A's bid is kept above
// venue B's ask so the reverse spread stays positive and the engine holds
// instead of exiting on its next sample tick.
func TestEngine_EntrySuccess(t *testing.T) {
	venueA := newFakeAdapter("A", 42120, 42130)
	venueB := newFakeAdapter("B", 42100, 42110)

	opportunities := make(chan domain.Opportunity, 1)
	shutdown := make(chan struct{})
	e := New(testConfig(), venueA, venueB, opportunities, shutdown, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	opportunities <- domain.Opportunity{
		BotID: "bot-1", Symbol: "BTC-PERP",
		Direction: marketdomain.DirectionBOverA,
		SpreadPct: 0.2,
		AskA: 42010, BidA: 42000, AskB: 42110, BidB: 42100,
		Timestamp: time.Now(),
	}

	waitForState(t, e, domain.StateHolding, time.Second)

	close(shutdown)
	<-e.Done()
}

// Venue B's leg is rejected: Entering -> EntryAborting -> Idle, with
// venue A's filled leg immediately closed.
func TestEngine_EntryPartial_AbortsSuccessfulLeg(t *testing.T) {
	venueA := newFakeAdapter("A", 42000, 42010)
	venueB := newFakeAdapter("B", 42100, 42110)
	venueB.placeFunc = func(req venuedomain.OrderRequest) (venuedomain.OrderResponse, error) {
		return venuedomain.OrderResponse{Status: venuedomain.OrderStatusRejected}, nil
	}

	opportunities := make(chan domain.Opportunity, 1)
	shutdown := make(chan struct{})
	e := New(testConfig(), venueA, venueB, opportunities, shutdown, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	opportunities <- domain.Opportunity{
		BotID: "bot-1", Symbol: "BTC-PERP",
		Direction: marketdomain.DirectionBOverA,
		SpreadPct: 0.2,
		AskA: 42010, BidA: 42000, AskB: 42110, BidB: 42100,
		Timestamp: time.Now(),
	}

	// The engine starts out Idle, so first wait for venue A to see the entry
	// and the abort-close before waiting for the return to Idle.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		venueA.mu.Lock()
		n := len(venueA.placed)
		venueA.mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	waitForState(t, e, domain.StateIdle, time.Second)

	venueA.mu.Lock()
	placed := len(venueA.placed)
	venueA.mu.Unlock()
	if placed != 2 {
		t.Errorf("venue A PlaceOrder calls = %d, want 2 (entry + abort-close)", placed)
	}

	close(shutdown)
	<-e.Done()
}

// Both legs fill but at different quantities: the excess of the larger leg
// is closed with a single reducing IOC at that venue, and the engine holds
// with the smaller fill as the position size.
func TestEngine_EntryFillImbalance_ClosesExcess(t *testing.T) {
	venueA := newFakeAdapter("A", 42120, 42130)
	venueB := newFakeAdapter("B", 42100, 42110)
	// Short leg on venue B only partially fills: 0.6 of the requested 1.0.
	venueB.placeFunc = func(req venuedomain.OrderRequest) (venuedomain.OrderResponse, error) {
		return venuedomain.OrderResponse{
			Status:         venuedomain.OrderStatusPartiallyFilled,
			FilledQuantity: req.Quantity * 0.6,
			FilledPrice:    req.Price,
		}, nil
	}

	opportunities := make(chan domain.Opportunity, 1)
	shutdown := make(chan struct{})
	e := New(testConfig(), venueA, venueB, opportunities, shutdown, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	opportunities <- domain.Opportunity{
		BotID: "bot-1", Symbol: "BTC-PERP",
		Direction: marketdomain.DirectionBOverA,
		SpreadPct: 0.2,
		AskA: 42010, BidA: 42000, AskB: 42110, BidB: 42100,
		Timestamp: time.Now(),
	}

	waitForState(t, e, domain.StateHolding, time.Second)

	if e.position == nil {
		t.Fatal("expected an open position while Holding")
	}
	if got := e.position.FilledQuantity; !almostEqual(got, 0.6) {
		t.Errorf("position.FilledQuantity = %v, want 0.6 (the smaller fill)", got)
	}

	// Venue A (the over-filled long leg) must see exactly two orders: the
	// entry and one reducing IOC close for the 0.4 excess.
	venueA.mu.Lock()
	placed := append([]venuedomain.OrderRequest{}, venueA.placed...)
	venueA.mu.Unlock()
	if len(placed) != 2 {
		t.Fatalf("venue A PlaceOrder calls = %d, want 2 (entry + excess close)", len(placed))
	}
	excess := placed[1]
	if !excess.ReduceOnly {
		t.Error("excess close must be reduce-only")
	}
	if excess.Side != venuedomain.SideSell {
		t.Errorf("excess close side = %q, want sell (reducing the long leg)", excess.Side)
	}
	if !almostEqual(excess.Quantity, 0.4) {
		t.Errorf("excess close quantity = %v, want 0.4", excess.Quantity)
	}

	close(shutdown)
	<-e.Done()
}

// Both legs rejected: Entering -> Idle, no position recorded.
func TestEngine_EntryBothLegsFail(t *testing.T) {
	venueA := newFakeAdapter("A", 42000, 42010)
	venueB := newFakeAdapter("B", 42100, 42110)
	reject := func(req venuedomain.OrderRequest) (venuedomain.OrderResponse, error) {
		return venuedomain.OrderResponse{Status: venuedomain.OrderStatusRejected}, nil
	}
	venueA.placeFunc = reject
	venueB.placeFunc = reject

	opportunities := make(chan domain.Opportunity, 1)
	shutdown := make(chan struct{})
	e := New(testConfig(), venueA, venueB, opportunities, shutdown, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	opportunities <- domain.Opportunity{
		BotID: "bot-1", Symbol: "BTC-PERP",
		Direction: marketdomain.DirectionAOverB,
		SpreadPct: 0.2,
		AskA: 42010, BidA: 42000, AskB: 42110, BidB: 42100,
		Timestamp: time.Now(),
	}

	waitForState(t, e, domain.StateIdle, time.Second)

	close(shutdown)
	<-e.Done()
}

// Holding -> Exiting -> Idle once the reverse spread crosses spread_exit.
func TestEngine_ExitOnReverseSpread(t *testing.T) {
	venueA := newFakeAdapter("A", 42120, 42130)
	venueB := newFakeAdapter("B", 42100, 42110)

	opportunities := make(chan domain.Opportunity, 1)
	shutdown := make(chan struct{})
	e := New(testConfig(), venueA, venueB, opportunities, shutdown, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	opportunities <- domain.Opportunity{
		BotID: "bot-1", Symbol: "BTC-PERP",
		Direction: marketdomain.DirectionBOverA,
		SpreadPct: 0.2,
		AskA: 42010, BidA: 42000, AskB: 42110, BidB: 42100,
		Timestamp: time.Now(),
	}
	waitForState(t, e, domain.StateHolding, time.Second)

	// Converge the books so the reverse (A_over_B) spread collapses below
	// spread_exit (0.01%).
	venueA.setBook(42100, 42101)
	venueB.setBook(42100, 42101)

	waitForState(t, e, domain.StateIdle, time.Second)

	close(shutdown)
	<-e.Done()
}

// Both close legs fail on the first attempt and on the single retry ->
// Halted; close legs get exactly one re-attempt, never more.
func TestEngine_CloseRetryExhausted_Halts(t *testing.T) {
	venueA := newFakeAdapter("A", 42120, 42130)
	venueB := newFakeAdapter("B", 42100, 42110)

	opportunities := make(chan domain.Opportunity, 1)
	shutdown := make(chan struct{})
	e := New(testConfig(), venueA, venueB, opportunities, shutdown, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	opportunities <- domain.Opportunity{
		BotID: "bot-1", Symbol: "BTC-PERP",
		Direction: marketdomain.DirectionBOverA,
		SpreadPct: 0.2,
		AskA: 42010, BidA: 42000, AskB: 42110, BidB: 42100,
		Timestamp: time.Now(),
	}
	waitForState(t, e, domain.StateHolding, time.Second)

	reject := func(req venuedomain.OrderRequest) (venuedomain.OrderResponse, error) {
		return venuedomain.OrderResponse{Status: venuedomain.OrderStatusRejected}, nil
	}
	venueA.mu.Lock()
	venueA.placeFunc = reject
	venueA.mu.Unlock()
	venueB.mu.Lock()
	venueB.placeFunc = reject
	venueB.mu.Unlock()

	venueA.setBook(42100, 42101)
	venueB.setBook(42100, 42101)

	waitForState(t, e, domain.StateHalted, time.Second)

	close(shutdown)
	<-e.Done()
}

// ReadyForOpportunity is false while Entering, true again once Holding
// or back to Idle.
func TestEngine_ReadyForOpportunity_Backpressure(t *testing.T) {
	venueA := newFakeAdapter("A", 42120, 42130)
	venueB := newFakeAdapter("B", 42100, 42110)
	block := make(chan struct{})
	venueB.placeFunc = func(req venuedomain.OrderRequest) (venuedomain.OrderResponse, error) {
		<-block
		return venuedomain.OrderResponse{
			Status: venuedomain.OrderStatusFilled, FilledQuantity: req.Quantity, FilledPrice: req.Price,
		}, nil
	}

	opportunities := make(chan domain.Opportunity, 1)
	shutdown := make(chan struct{})
	e := New(testConfig(), venueA, venueB, opportunities, shutdown, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	opportunities <- domain.Opportunity{
		BotID: "bot-1", Symbol: "BTC-PERP",
		Direction: marketdomain.DirectionBOverA,
		SpreadPct: 0.2,
		AskA: 42010, BidA: 42000, AskB: 42110, BidB: 42100,
		Timestamp: time.Now(),
	}

	deadline := time.Now().Add(time.Second)
	for e.State() != domain.StateEntering && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if e.State() != domain.StateEntering {
		t.Fatalf("engine never reached Entering")
	}
	if e.ReadyForOpportunity() {
		t.Error("ReadyForOpportunity() = true while Entering, want false")
	}

	close(block)
	waitForState(t, e, domain.StateHolding, time.Second)
	if !e.ReadyForOpportunity() {
		t.Error("ReadyForOpportunity() = false while Holding, want true")
	}

	close(shutdown)
	<-e.Done()
}
