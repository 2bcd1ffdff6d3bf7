package domain

import (
	"time"

	marketdomain "github.com/deltaneutral/perp-arb-engine/business/market/domain"
)

// Opportunity is what the monitor task publishes into the bounded
// opportunity channel. It carries everything the engine needs to
// assign legs without re-reading the store.
type Opportunity struct {
	BotID     string
	Symbol    string
	Direction marketdomain.SpreadDirection
	SpreadPct float64
	AskA      float64
	BidA      float64
	AskB      float64
	BidB      float64
	Timestamp time.Time
}

// LegAssignment describes which venue takes the long leg and which takes
// the short leg for an entry:
//
//	A_over_B: long leg on venue B, short leg on venue A.
//	B_over_A: long leg on venue A, short leg on venue B.
type LegAssignment struct {
	LongVenue  string
	ShortVenue string
}

// AssignLegs computes the leg assignment for direction. DirectionNone is
// never produced by the calculator and is not a valid input here; callers
// must have already checked Calculate's ok return.
func AssignLegs(direction marketdomain.SpreadDirection) LegAssignment {
	if direction == marketdomain.DirectionAOverB {
		return LegAssignment{LongVenue: "B", ShortVenue: "A"}
	}
	return LegAssignment{LongVenue: "A", ShortVenue: "B"}
}

// Position is the delta-neutral pair of fills the engine is carrying while
// Holding. EntryDirection records which direction the position was entered
// in so the exit condition reads the reverse spread correctly.
type Position struct {
	Symbol          string
	EntryDirection  marketdomain.SpreadDirection
	FilledQuantity  float64
	LongVenue       string
	ShortVenue      string
	LongEntryPrice  float64
	ShortEntryPrice float64
	OpenedAt        time.Time
}
