package app

import (
	"sync"
	"testing"
	"time"

	"github.com/deltaneutral/perp-arb-engine/business/market/domain"
)

func TestStore_PutSnapshot(t *testing.T) {
	s := NewStore()

	if _, ok := s.Snapshot("A", "BTC-PERP"); ok {
		t.Fatal("expected ok=false before any Put")
	}

	book := domain.Orderbook{
		Symbol:    "BTC-PERP",
		Venue:     "A",
		Timestamp: time.Now(),
		Bids:      []domain.BookLevel{{Price: 100, Quantity: 1}},
		Asks:      []domain.BookLevel{{Price: 101, Quantity: 1}},
	}
	s.Put("A", "BTC-PERP", book)

	got, ok := s.Snapshot("A", "BTC-PERP")
	if !ok {
		t.Fatal("expected ok=true after Put")
	}
	if got.Symbol != "BTC-PERP" || got.Bids[0].Price != 100 {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}

func TestStore_VenueNamespacing(t *testing.T) {
	s := NewStore()
	s.Put("A", "BTC-PERP", domain.Orderbook{Venue: "A", Symbol: "BTC-PERP"})
	s.Put("B", "BTC-USD-PERP", domain.Orderbook{Venue: "B", Symbol: "BTC-USD-PERP"})

	if _, ok := s.Snapshot("A", "BTC-USD-PERP"); ok {
		t.Error("expected no collision between venue A and venue B symbol spaces")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

// TestStore_ConcurrentReadWrite exercises the single-writer/multi-reader
// access pattern the store is built for: one goroutine writing, many
// reading, run under -race in CI.
func TestStore_ConcurrentReadWrite(t *testing.T) {
	s := NewStore()
	s.Put("A", "BTC-PERP", domain.Orderbook{Venue: "A", Symbol: "BTC-PERP"})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				s.Put("A", "BTC-PERP", domain.Orderbook{
					Venue:     "A",
					Symbol:    "BTC-PERP",
					Timestamp: time.Now(),
					Bids:      []domain.BookLevel{{Price: float64(i), Quantity: 1}},
				})
			}
		}
	}()

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				s.Snapshot("A", "BTC-PERP")
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()
}
