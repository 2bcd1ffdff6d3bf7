package venue

import (
	"io"
	"testing"

	venuedi "github.com/deltaneutral/perp-arb-engine/business/venue/di"
	"github.com/deltaneutral/perp-arb-engine/business/venue/infra/venueA"
	"github.com/deltaneutral/perp-arb-engine/business/venue/infra/venueB"
	"github.com/deltaneutral/perp-arb-engine/internal/config"
	"github.com/deltaneutral/perp-arb-engine/internal/di"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
	"github.com/deltaneutral/perp-arb-engine/internal/secret"
)

// testSigningKey is an arbitrary valid secp256k1 private key, good enough to
// exercise NewEIP712Signer without meaning anything on-chain.
const testSigningKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testConfigWithVenues() *config.Config {
	cfg := &config.Config{
		Bots: []config.BotConfig{
			{ID: "bot-1", Pair: "BTC-PERP", SpreadEntry: 0.05, SpreadExit: 0.01, PositionSize: 1},
		},
	}
	cfg.Venues.A = config.VenueACredentials{
		Address:     "0xabc",
		SigningKey:  secret.String(testSigningKey),
		WSURL:       "wss://venue-a.example/ws",
		RESTBaseURL: "https://venue-a.example",
	}
	cfg.Venues.B = config.VenueBCredentials{
		PrivateKey:     secret.String("test-hmac-key"),
		AccountAddress: "0xdef",
		WSURL:          "wss://venue-b.example/ws",
		RESTBaseURL:    "https://venue-b.example",
	}
	return cfg
}

// RegisterServices must construct both adapters from config-supplied
// credentials and endpoints and register them under the tokens Startup (and
// main) later resolve by.
func TestModule_RegisterServices(t *testing.T) {
	cfg := testConfigWithVenues()
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)

	c := di.NewContainer()
	c.Register("config", cfg)
	c.Register("logger", logger.LoggerInterface(log))

	if err := (Module{}).RegisterServices(c); err != nil {
		t.Fatalf("RegisterServices() error = %v", err)
	}

	store, ok := c.Get(venuedi.Store)
	if !ok {
		t.Fatal("expected a store registered under venuedi.Store")
	}
	if store == nil {
		t.Fatal("store must not be nil")
	}

	adapterA := di.Resolve[*venueA.Adapter](c, venuedi.VenueA)
	if adapterA == nil {
		t.Fatal("expected a non-nil venue A adapter")
	}
	if adapterA.Name() != "A" {
		t.Errorf("adapterA.Name() = %q, want A", adapterA.Name())
	}

	adapterB := di.Resolve[*venueB.Adapter](c, venuedi.VenueB)
	if adapterB == nil {
		t.Fatal("expected a non-nil venue B adapter")
	}
	if adapterB.Name() != "B" {
		t.Errorf("adapterB.Name() = %q, want B", adapterB.Name())
	}
}

// A malformed venue A signing key must fail registration rather than panic
// or silently construct an unusable signer.
func TestModule_RegisterServices_BadSigningKey(t *testing.T) {
	cfg := testConfigWithVenues()
	cfg.Venues.A.SigningKey = secret.String("not-hex")
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)

	c := di.NewContainer()
	c.Register("config", cfg)
	c.Register("logger", logger.LoggerInterface(log))

	if err := (Module{}).RegisterServices(c); err == nil {
		t.Fatal("expected an error for an invalid venue A signing key")
	}
}
