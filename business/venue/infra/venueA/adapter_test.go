package venueA

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	marketapp "github.com/deltaneutral/perp-arb-engine/business/market/app"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
	"github.com/deltaneutral/perp-arb-engine/internal/secret"
)

// testSigningKey is an arbitrary valid secp256k1 private key, good enough to
// construct the signer without meaning anything on-chain.
const testSigningKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func newTestAdapter(t *testing.T) (*Adapter, *marketapp.Store) {
	t.Helper()
	store := marketapp.NewStore()
	signer, err := NewEIP712Signer(secret.String(testSigningKey), apitypes.TypedDataDomain{
		Name:    "venue-a",
		Version: "1",
	})
	if err != nil {
		t.Fatalf("NewEIP712Signer: %v", err)
	}
	a, err := New(Config{
		WSURL:       "wss://example.invalid/ws",
		RESTBaseURL: "https://example.invalid",
		Address:     "0xabc",
		Symbol:      "BTC-PERP",
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
		Symbol: "BTC-PERP",
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
		Symbol: "BTC-PERP",
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
	if book.Venue != venueName {
		t.Errorf("book.Venue = %q, want %q", book.Venue, venueName)
	}
}
