package app

import (
	"context"
	"testing"
	"time"

	"github.com/deltaneutral/perp-arb-engine/business/execution/domain"
)

// fixedReady is the ReadySignal stub the monitor tests need: a constant
// answer instead of a whole Engine.
type fixedReady bool

func (f fixedReady) ReadyForOpportunity() bool { return bool(f) }

func monitorConfig() MonitorConfig {
	return MonitorConfig{BotID: "bot-1", Symbol: "BTC-PERP", SpreadEntry: 0.05}
}

// tick publishes once the spread clears the entry threshold and the engine
// is ready.
func TestMonitor_PublishesWhenAboveThresholdAndReady(t *testing.T) {
	venueA := newFakeAdapter("A", 42000, 42010)
	venueB := newFakeAdapter("B", 42100, 42110)
	opportunities := make(chan domain.Opportunity, 1)

	m := NewMonitor(monitorConfig(), venueA, venueB, fixedReady(true), opportunities, make(chan struct{}), nil, testLogger())
	m.tick(context.Background())

	select {
	case opp := <-opportunities:
		if opp.Symbol != "BTC-PERP" {
			t.Errorf("Symbol = %q, want BTC-PERP", opp.Symbol)
		}
		if opp.SpreadPct <= 0 {
			t.Errorf("SpreadPct = %v, want > 0", opp.SpreadPct)
		}
	default:
		t.Fatal("expected an opportunity to be published")
	}
}

// Below the entry threshold, nothing is published even though the books
// are fresh and the engine is ready.
func TestMonitor_NoPublishBelowThreshold(t *testing.T) {
	venueA := newFakeAdapter("A", 42000, 42001)
	venueB := newFakeAdapter("B", 42000, 42001)
	opportunities := make(chan domain.Opportunity, 1)

	cfg := monitorConfig()
	cfg.SpreadEntry = 5.0
	m := NewMonitor(cfg, venueA, venueB, fixedReady(true), opportunities, make(chan struct{}), nil, testLogger())
	m.tick(context.Background())

	select {
	case opp := <-opportunities:
		t.Fatalf("unexpected publish: %+v", opp)
	default:
	}
}

// The monitor never publishes while the engine's backpressure signal is
// false, even with a clearly favorable spread.
func TestMonitor_NoPublishWhenEngineNotReady(t *testing.T) {
	venueA := newFakeAdapter("A", 42000, 42010)
	venueB := newFakeAdapter("B", 42100, 42110)
	opportunities := make(chan domain.Opportunity, 1)

	m := NewMonitor(monitorConfig(), venueA, venueB, fixedReady(false), opportunities, make(chan struct{}), nil, testLogger())
	m.tick(context.Background())

	select {
	case opp := <-opportunities:
		t.Fatalf("unexpected publish while not ready: %+v", opp)
	default:
	}
}

// A stale book on either venue silently suppresses the tick.
func TestMonitor_NoPublishOnStaleBook(t *testing.T) {
	venueA := newFakeAdapter("A", 42000, 42010)
	venueB := newFakeAdapter("B", 42100, 42110)
	venueA.mu.Lock()
	venueA.book.Timestamp = time.Now().Add(-time.Minute)
	venueA.mu.Unlock()

	opportunities := make(chan domain.Opportunity, 1)
	m := NewMonitor(monitorConfig(), venueA, venueB, fixedReady(true), opportunities, make(chan struct{}), nil, testLogger())
	m.tick(context.Background())

	select {
	case opp := <-opportunities:
		t.Fatalf("unexpected publish with a stale book: %+v", opp)
	default:
	}
}

// A full opportunity channel drops the newest sample rather than blocking.
func TestMonitor_DropsNewestWhenChannelFull(t *testing.T) {
	venueA := newFakeAdapter("A", 42000, 42010)
	venueB := newFakeAdapter("B", 42100, 42110)
	opportunities := make(chan domain.Opportunity, 1)
	opportunities <- domain.Opportunity{Symbol: "already-queued"}

	m := NewMonitor(monitorConfig(), venueA, venueB, fixedReady(true), opportunities, make(chan struct{}), nil, testLogger())
	m.tick(context.Background())

	got := <-opportunities
	if got.Symbol != "already-queued" {
		t.Errorf("channel contents = %+v, want the pre-queued opportunity untouched", got)
	}
	select {
	case extra := <-opportunities:
		t.Fatalf("unexpected second item in channel: %+v", extra)
	default:
	}
}
