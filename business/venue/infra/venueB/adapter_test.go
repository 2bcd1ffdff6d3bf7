package venueB

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	marketapp "github.com/deltaneutral/perp-arb-engine/business/market/app"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
	"github.com/deltaneutral/perp-arb-engine/internal/secret"
)

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func newTestAdapter(t *testing.T) (*Adapter, *marketapp.Store) {
	t.Helper()
	store := marketapp.NewStore()
	signer := NewHMACSigner(secret.String("k"), "0xaccount")
	a, err := New(Config{
		WSURL:          "wss://example.invalid/ws",
		RESTBaseURL:    "https://example.invalid",
		AccountAddress: "0xaccount",
		Symbol:         "BTC-PERP",
	}, signer, store, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, store
}

// TestAdapter_CrossedBookDropped verifies the no-crossed-book invariant: a
// depth message whose normalized book would have bids[0] >= asks[0] never
// reaches the store.
func TestAdapter_CrossedBookDropped(t *testing.T) {
	a, store := newTestAdapter(t)

	crossed := depthMessage{
		Symbol: "BTC-USD-PERP",
		Bids:   [][2]float64{{100, 1}},
		Asks:   [][2]float64{{99, 1}}, // ask below bid: crossed
	}
	raw, err := json.Marshal(crossed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	a.handleMessage(context.Background(), raw)

	if _, ok := store.Snapshot(venueName, "BTC-PERP"); ok {
		t.Fatal("crossed book must not be published into the store")
	}
}

func TestAdapter_NormalBookPublished(t *testing.T) {
	a, store := newTestAdapter(t)

	normal := depthMessage{
		Symbol: "BTC-USD-PERP",
		Bids:   [][2]float64{{100, 1}},
		Asks:   [][2]float64{{101, 1}},
	}
	raw, err := json.Marshal(normal)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	a.handleMessage(context.Background(), raw)

	book, ok := store.Snapshot(venueName, "BTC-PERP")
	if !ok {
		t.Fatal("expected book to be published")
	}
	if book.Bids[0].Price != 100 || book.Asks[0].Price != 101 {
		t.Errorf("unexpected book: %+v", book)
	}
	// The store is always keyed by the internal canonical symbol, not the
	// venue's own wire spelling.
	if book.Symbol != "BTC-PERP" {
		t.Errorf("book.Symbol = %q, want canonical BTC-PERP", book.Symbol)
	}
}
