// Package app hosts the orderbook store: the single point of contact between
// venue adapters (writers) and the spread calculator / monitor task
// (readers).
package app

import (
	"sync"

	"github.com/deltaneutral/perp-arb-engine/business/market/domain"
)

// Store serves the most recent top-of-book snapshot for each (venue, symbol)
// pair without blocking producers and without copying more than level 0 to
// readers. Each symbol key has exactly one writer (the owning
// adapter); any number of readers may call Snapshot concurrently.
type Store struct {
	mu    sync.RWMutex
	books map[string]domain.Orderbook
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{books: make(map[string]domain.Orderbook)}
}

// key namespaces a symbol by venue so two adapters never collide on the same
// map entry even when they quote the same underlying under different
// venue-local symbols.
func key(venue, symbol string) string {
	return venue + ":" + symbol
}

// Put records the latest snapshot for (venue, symbol). Called only by the
// adapter that owns that venue's feed.
func (s *Store) Put(venue, symbol string, book domain.Orderbook) {
	s.mu.Lock()
	s.books[key(venue, symbol)] = book
	s.mu.Unlock()
}

// Snapshot returns the latest known top-of-book for (venue, symbol), or
// ok=false if the adapter has not produced one yet. Callers must treat
// ok=false as "no data yet", never as an error.
func (s *Store) Snapshot(venue, symbol string) (domain.Orderbook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.books[key(venue, symbol)]
	return book, ok
}

// Len reports how many (venue, symbol) entries currently have data. Used by
// readiness checks, not by the trading path.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}
