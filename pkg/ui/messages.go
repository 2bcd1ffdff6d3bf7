// Package ui provides the Bubble Tea status dashboard: a single read-only
// view of venue connection health, the execution engine's current state,
// the last observed spread, and any open position.
package ui

import "time"

// Message types for TUI updates.

// SpreadMsg is sent for the monitor's decimated spread samples: at most one
// per second per direction.
type SpreadMsg struct {
	Direction string
	SpreadPct float64
	AskA      float64
	BidA      float64
	AskB      float64
	BidB      float64
	Timestamp time.Time
}

// StateMsg is sent on every execution engine state transition.
type StateMsg struct {
	BotID string
	From  string
	To    string
}

// PositionMsg carries the execution engine's current position snapshot,
// sent whenever a position opens or closes.
type PositionMsg struct {
	Open            bool
	Symbol          string
	Direction       string
	FilledQuantity  float64
	LongVenue       string
	ShortVenue      string
	LongEntryPrice  float64
	ShortEntryPrice float64
	OpenedAt        time.Time
}

// ConnectionStatusMsg carries a venue adapter's connection state; the
// monitor sends one per venue every second.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Latency   time.Duration
}

// ErrorMsg is sent when the execution engine enters Halted.
type ErrorMsg struct {
	Error error
}

// LogMsg carries a decimated diagnostic line for the activity feed.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// TickMsg drives the periodic re-render (relative timestamps, spinners).
type TickMsg struct{}
