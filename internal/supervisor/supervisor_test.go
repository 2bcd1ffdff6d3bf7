package supervisor

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	executionapp "github.com/deltaneutral/perp-arb-engine/business/execution/app"
	executiondomain "github.com/deltaneutral/perp-arb-engine/business/execution/domain"
	marketdomain "github.com/deltaneutral/perp-arb-engine/business/market/domain"
	venuedomain "github.com/deltaneutral/perp-arb-engine/business/venue/domain"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
)

// stubAdapter is the minimal venueapp.Adapter the supervisor and the engine
// it drives need: every order fills immediately, and Snapshot's availability
// can be toggled to force the shutdown-time halt path. Each stub quotes its
// own fixed book; the tests pick prices that keep the reverse spread above
// the exit threshold so a Holding engine stays Holding until shutdown.
type stubAdapter struct {
	name          string
	bid, ask      float64
	bookAvailable atomic.Bool
}

func newStubAdapter(name string, bid, ask float64) *stubAdapter {
	a := &stubAdapter{name: name, bid: bid, ask: ask}
	a.bookAvailable.Store(true)
	return a
}

func (s *stubAdapter) Connect(ctx context.Context) error                            { return nil }
func (s *stubAdapter) Disconnect(ctx context.Context) error                         { return nil }
func (s *stubAdapter) SubscribeOrderbook(ctx context.Context, symbol string) error   { return nil }
func (s *stubAdapter) UnsubscribeOrderbook(ctx context.Context, symbol string) error { return nil }

func (s *stubAdapter) PlaceOrder(ctx context.Context, req venuedomain.OrderRequest) (venuedomain.OrderResponse, error) {
	return venuedomain.OrderResponse{
		Status:         venuedomain.OrderStatusFilled,
		FilledQuantity: req.Quantity,
		FilledPrice:    req.Price,
	}, nil
}

func (s *stubAdapter) CancelOrder(ctx context.Context, orderID string) error { return nil }

func (s *stubAdapter) Snapshot(symbol string) (marketdomain.Orderbook, bool) {
	if !s.bookAvailable.Load() {
		return marketdomain.Orderbook{}, false
	}
	return marketdomain.Orderbook{
		Symbol:    symbol,
		Venue:     s.name,
		Timestamp: time.Now(),
		Bids:      []marketdomain.BookLevel{{Price: s.bid, Quantity: 1}},
		Asks:      []marketdomain.BookLevel{{Price: s.ask, Quantity: 1}},
	}, true
}

func (s *stubAdapter) IsConnected() bool                   { return true }
func (s *stubAdapter) IsStale() bool                       { return false }
func (s *stubAdapter) Reconnect(ctx context.Context) error  { return nil }

func (s *stubAdapter) Position(ctx context.Context, symbol string) (venuedomain.PositionInfo, bool, error) {
	return venuedomain.PositionInfo{}, false, nil
}

func (s *stubAdapter) Name() string { return s.name }

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func newTestSupervisor(t *testing.T) (*Supervisor, *stubAdapter, *stubAdapter, chan executiondomain.Opportunity) {
	t.Helper()
	// Venue B quotes above venue A's ask, so an A_over_B entry's reverse
	// spread stays positive (well above spread_exit) and the engine holds.
	venueA := newStubAdapter("A", 100, 101)
	venueB := newStubAdapter("B", 102, 103)
	shutdown := make(chan struct{})
	opportunities := make(chan executiondomain.Opportunity, 1)

	engine := executionapp.New(
		executionapp.Config{BotID: "bot-1", Symbol: "BTC-PERP", SpreadEntry: 5, SpreadExit: 0.01, PositionSize: 1},
		venueA, venueB, opportunities, shutdown, nil, testLogger(),
	)
	monitor := executionapp.NewMonitor(
		executionapp.MonitorConfig{BotID: "bot-1", Symbol: "BTC-PERP", SpreadEntry: 5},
		venueA, venueB, engine, opportunities, shutdown, nil, testLogger(),
	)

	sup := New(venueA, venueB, monitor, engine, shutdown, testLogger())
	return sup, venueA, venueB, opportunities
}

// Cancelling the run context with the engine idle must join cleanly and
// return ExitClean.
func TestSupervisor_Run_CleanShutdownOnContextCancel(t *testing.T) {
	sup, _, _, _ := newTestSupervisor(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan ExitCode, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		if code != ExitClean {
			t.Errorf("exit code = %v, want ExitClean", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not exit after context cancellation")
	}
}

// If the engine is Holding a position and the order book disappears right
// as shutdown begins, onShutdown halts the engine and the supervisor must
// surface ExitHalted instead of ExitClean.
func TestSupervisor_Run_HaltedEngineReturnsExitHalted(t *testing.T) {
	sup, venueA, venueB, opportunities := newTestSupervisor(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan ExitCode, 1)
	go func() { done <- sup.Run(ctx) }()

	opportunities <- executiondomain.Opportunity{
		BotID: "bot-1", Symbol: "BTC-PERP", Direction: marketdomain.DirectionAOverB,
		SpreadPct: 0.1, AskA: 101, BidA: 100, AskB: 99, BidB: 98,
	}

	deadline := time.Now().Add(2 * time.Second)
	for sup.engine.State() != executiondomain.StateHolding {
		if time.Now().After(deadline) {
			t.Fatal("engine never reached Holding")
		}
		time.Sleep(5 * time.Millisecond)
	}

	venueA.bookAvailable.Store(false)
	venueB.bookAvailable.Store(false)
	cancel()

	select {
	case code := <-done:
		if code != ExitHalted {
			t.Errorf("exit code = %v, want ExitHalted", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not exit after halting")
	}
}
