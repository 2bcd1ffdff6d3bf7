// Package domain contains the core market-data types: book levels, the
// top-of-book snapshot, and the pure spread calculation over two snapshots.
package domain

import "time"

// BookLevel is a single price/quantity rung of an orderbook side. A quantity
// of zero means the level was removed by the venue.
type BookLevel struct {
	Price    float64
	Quantity float64
}

// Valid reports whether the level satisfies the non-negativity invariant.
func (l BookLevel) Valid() bool {
	return l.Price >= 0 && l.Quantity >= 0
}

// Orderbook is the top-of-book snapshot for one (venue, symbol) pair. Bids
// are sorted descending by price, asks ascending; only level 0 is required
// by the core, but the store preserves up to MaxLevels for feed diagnostics.
type Orderbook struct {
	Symbol    string
	Venue     string
	Timestamp time.Time
	Bids      []BookLevel
	Asks      []BookLevel
}

// MaxLevels bounds how many levels an adapter keeps per side of each
// normalized book; the core only ever reads level 0.
const MaxLevels = 20

// BestBid returns the highest bid level, or the zero value and false if the
// book has no bids yet.
func (o Orderbook) BestBid() (BookLevel, bool) {
	if len(o.Bids) == 0 {
		return BookLevel{}, false
	}
	return o.Bids[0], true
}

// BestAsk returns the lowest ask level, or the zero value and false if the
// book has no asks yet.
func (o Orderbook) BestAsk() (BookLevel, bool) {
	if len(o.Asks) == 0 {
		return BookLevel{}, false
	}
	return o.Asks[0], true
}

// Crossed reports whether the book violates bids[0].price < asks[0].price.
// A book with either side empty is not considered crossed (it is simply
// incomplete); callers treat an incomplete book as "not ready" separately.
func (o Orderbook) Crossed() bool {
	bid, okB := o.BestBid()
	ask, okA := o.BestAsk()
	if !okB || !okA {
		return false
	}
	return bid.Price >= ask.Price
}

// IsStale reports whether the snapshot is older than threshold relative to
// now; the connection-health staleness rule applies identically to
// per-symbol data freshness.
func (o Orderbook) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(o.Timestamp) > threshold
}
