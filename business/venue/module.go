// Package venue wires the orderbook store and the two venue adapters into
// the application container. V1 runs exactly one configured
// bot per process, so this module binds its single pair to both adapters.
package venue

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/sync/errgroup"

	marketapp "github.com/deltaneutral/perp-arb-engine/business/market/app"
	venuedi "github.com/deltaneutral/perp-arb-engine/business/venue/di"
	"github.com/deltaneutral/perp-arb-engine/business/venue/infra/venueA"
	"github.com/deltaneutral/perp-arb-engine/business/venue/infra/venueB"
	"github.com/deltaneutral/perp-arb-engine/internal/config"
	"github.com/deltaneutral/perp-arb-engine/internal/di"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
	"github.com/deltaneutral/perp-arb-engine/internal/monolith"
)

// Module registers the orderbook store and both venue adapters, then
// connects and subscribes them on Startup.
type Module struct{}

var _ monolith.Module = Module{}

func (Module) RegisterServices(c di.Container) error {
	cfg := di.Resolve[*config.Config](c, "config")
	log := di.Resolve[logger.LoggerInterface](c, "logger")
	bot := cfg.Bots[0]

	store := marketapp.NewStore()
	c.Register(venuedi.Store, store)

	signerA, err := venueA.NewEIP712Signer(cfg.Venues.A.SigningKey, apitypes.TypedDataDomain{
		Name:    "venue-a",
		Version: "1",
	})
	if err != nil {
		return err
	}
	adapterA, err := venueA.New(venueA.Config{
		WSURL:       cfg.Venues.A.WSURL,
		RESTBaseURL: cfg.Venues.A.RESTBaseURL,
		Address:     cfg.Venues.A.Address,
		Symbol:      bot.Pair,
	}, signerA, store, log.With("venue", "A"))
	if err != nil {
		return err
	}
	c.Register(venuedi.VenueA, adapterA)

	signerB := venueB.NewHMACSigner(cfg.Venues.B.PrivateKey, cfg.Venues.B.AccountAddress)
	adapterB, err := venueB.New(venueB.Config{
		WSURL:          cfg.Venues.B.WSURL,
		RESTBaseURL:    cfg.Venues.B.RESTBaseURL,
		AccountAddress: cfg.Venues.B.AccountAddress,
		Symbol:         bot.Pair,
	}, signerB, store, log.With("venue", "B"))
	if err != nil {
		return err
	}
	c.Register(venuedi.VenueB, adapterB)

	return nil
}

func (Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()
	bot := cfg.Bots[0]

	adapterA := di.Resolve[*venueA.Adapter](mono.Services(), venuedi.VenueA)
	adapterB := di.Resolve[*venueB.Adapter](mono.Services(), venuedi.VenueB)

	// The two venues are independent; connect and subscribe them in parallel
	// so one venue's slow handshake never delays the other's feed.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := adapterA.Connect(gctx); err != nil {
			return err
		}
		return adapterA.SubscribeOrderbook(gctx, bot.VenueASymbol())
	})
	g.Go(func() error {
		if err := adapterB.Connect(gctx); err != nil {
			return err
		}
		return adapterB.SubscribeOrderbook(gctx, bot.VenueBSymbol())
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info(ctx, "venue adapters connected and subscribed",
		"symbol_a", bot.VenueASymbol(), "symbol_b", bot.VenueBSymbol())
	return nil
}
