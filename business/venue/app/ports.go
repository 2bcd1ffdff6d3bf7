// Package app defines the venue adapter capability set: the single
// interface the monitor, execution engine, and supervisor program against,
// regardless of which concrete venue backs it.
package app

import (
	"context"

	marketdomain "github.com/deltaneutral/perp-arb-engine/business/market/domain"
	"github.com/deltaneutral/perp-arb-engine/business/venue/domain"
)

// Adapter is the capability set every venue implementation satisfies.
type Adapter interface {
	// Connect establishes the streaming transport and completes venue
	// authentication. Fails with apperror.CodeConnectionFailed or
	// apperror.CodeAuthenticationFailed.
	Connect(ctx context.Context) error

	// Disconnect closes transports and flushes in-flight subscriptions.
	Disconnect(ctx context.Context) error

	SubscribeOrderbook(ctx context.Context, symbol string) error
	UnsubscribeOrderbook(ctx context.Context, symbol string) error

	// PlaceOrder dispatches a signed order and returns as soon as the venue
	// acknowledges acceptance or rejection. It does not poll for fills and
	// is never retried internally.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error)

	CancelOrder(ctx context.Context, orderID string) error

	// Snapshot returns the latest known top-of-book for symbol.
	Snapshot(symbol string) (marketdomain.Orderbook, bool)

	IsConnected() bool
	IsStale() bool

	// Reconnect re-authenticates and resubscribes every previously
	// subscribed symbol.
	Reconnect(ctx context.Context) error

	// Position is a best-effort query of the venue-side position.
	Position(ctx context.Context, symbol string) (domain.PositionInfo, bool, error)

	Name() string
}

// Signer is the black-box signing port behind PlaceOrder: the only contract
// the core relies on is that signing either succeeds or the call fails
// within PlaceOrder's bounded deadline. Each venue's wire scheme
// (EIP-712 for venue A, Starknet typed data for venue B) lives entirely
// behind this interface in the venue's infra package.
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
	Address() string
}
