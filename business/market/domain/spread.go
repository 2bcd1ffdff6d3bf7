package domain

import "time"

// SpreadDirection is the tagged variant identifying which cross-venue
// direction is profitable. A_over_B means selling on venue A and buying on
// venue B is the favorable entry; B_over_A is its mirror.
type SpreadDirection string

const (
	DirectionAOverB SpreadDirection = "A_OVER_B"
	DirectionBOverA SpreadDirection = "B_OVER_A"
	// DirectionNone is never produced by Calculate, but is the zero value
	// unknown-decoded-value target for the round-trip property.
	DirectionNone SpreadDirection = ""
)

// MarshalText implements encoding.TextMarshaler.
func (d SpreadDirection) MarshalText() ([]byte, error) {
	return []byte(d), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown encoded values
// decode to DirectionNone rather than erroring.
func (d *SpreadDirection) UnmarshalText(text []byte) error {
	switch SpreadDirection(text) {
	case DirectionAOverB:
		*d = DirectionAOverB
	case DirectionBOverA:
		*d = DirectionBOverA
	default:
		*d = DirectionNone
	}
	return nil
}

// Opposite returns the reverse direction, used when the execution engine
// evaluates the exit condition against the entry direction's reverse spread.
func (d SpreadDirection) Opposite() SpreadDirection {
	switch d {
	case DirectionAOverB:
		return DirectionBOverA
	case DirectionBOverA:
		return DirectionAOverB
	default:
		return DirectionNone
	}
}

// SpreadResult is the per-tick output of Calculate. Never persisted.
type SpreadResult struct {
	Direction  SpreadDirection
	SpreadPct  float64
	AskA, BidA float64
	AskB, BidB float64
	Timestamp  time.Time
}

// Calculate computes the directional cross-venue spread from two top-of-book
// snapshots. It is a pure function: no I/O, no logging, no locking.
//
// ok is false when either book is missing a side or any of the four top
// prices is non-positive.
func Calculate(bookA, bookB Orderbook) (SpreadResult, bool) {
	askA, okAskA := bookA.BestAsk()
	bidA, okBidA := bookA.BestBid()
	askB, okAskB := bookB.BestAsk()
	bidB, okBidB := bookB.BestBid()
	if !okAskA || !okBidA || !okAskB || !okBidB {
		return SpreadResult{}, false
	}
	if askA.Price <= 0 || bidA.Price <= 0 || askB.Price <= 0 || bidB.Price <= 0 {
		return SpreadResult{}, false
	}

	// Sell A at bidA, buy B at askB.
	sAoverB := (bidA.Price - askB.Price) / askB.Price * 100
	// Sell B at bidB, buy A at askA.
	sBoverA := (bidB.Price - askA.Price) / askA.Price * 100

	direction := DirectionAOverB
	spreadPct := sAoverB
	if sBoverA > sAoverB {
		direction = DirectionBOverA
		spreadPct = sBoverA
	}
	// Exact-equality tie-break: keep A_over_B (already the default above).

	return SpreadResult{
		Direction: direction,
		SpreadPct: spreadPct,
		AskA:      askA.Price,
		BidA:      bidA.Price,
		AskB:      askB.Price,
		BidB:      bidB.Price,
		Timestamp: time.Now(),
	}, true
}

// ReverseSpreadPct computes the realized reverse spread for an open position
// entered in direction: the engine samples this every 25 ms while
// Holding and exits once it falls to or below spread_exit_pct. The reverse
// of an A_over_B entry is evaluated with the B_over_A formula's components
// and vice versa — it is not simply "whichever formula is currently larger",
// which is what plain Calculate returns.
func ReverseSpreadPct(bookA, bookB Orderbook, direction SpreadDirection) (float64, bool) {
	askA, okAskA := bookA.BestAsk()
	bidA, okBidA := bookA.BestBid()
	askB, okAskB := bookB.BestAsk()
	bidB, okBidB := bookB.BestBid()
	if !okAskA || !okBidA || !okAskB || !okBidB {
		return 0, false
	}
	if askA.Price <= 0 || askB.Price <= 0 {
		return 0, false
	}

	switch direction {
	case DirectionBOverA:
		// Entry direction was B_over_A; reverse is the A_over_B formula.
		return (bidA.Price - askB.Price) / askB.Price * 100, true
	default:
		// Entry direction was A_over_B (or unset, treated the same way);
		// reverse is the B_over_A formula.
		return (bidB.Price - askA.Price) / askA.Price * 100, true
	}
}
