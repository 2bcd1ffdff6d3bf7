package venueB

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	marketapp "github.com/deltaneutral/perp-arb-engine/business/market/app"
	marketdomain "github.com/deltaneutral/perp-arb-engine/business/market/domain"
	"github.com/deltaneutral/perp-arb-engine/business/venue/app"
	"github.com/deltaneutral/perp-arb-engine/business/venue/domain"
	"github.com/deltaneutral/perp-arb-engine/internal/apperror"
	"github.com/deltaneutral/perp-arb-engine/internal/cache"
	"github.com/deltaneutral/perp-arb-engine/internal/circuitbreaker"
	"github.com/deltaneutral/perp-arb-engine/internal/httpclient"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
	"github.com/deltaneutral/perp-arb-engine/internal/ratelimit"
	"github.com/deltaneutral/perp-arb-engine/internal/wsconn"
)

const (
	venueName              = "B"
	placeOrderRateLimitRPM = 300

	// positionCacheTTL matches venueA's: Position is a startup-inspection
	// call, never a hot-path one, so a short cache just absorbs repeated
	// calls without masking a real position change.
	positionCacheTTL = 2 * time.Second
)

// Config configures the venue B adapter. Symbol is the internal canonical
// <BASE>-PERP symbol the store and engine key by;
// see venueA.Config for the same convention.
type Config struct {
	WSURL          string
	RESTBaseURL    string
	AccountAddress string
	Symbol         string
}

// Adapter is the venue B (Starknet-authenticated) implementation of
// app.Adapter. Shaped identically to venueA's adapter, since both venues
// expose the same capability set; the ~300-400 ms sequencer round trip is
// absorbed entirely inside PlaceOrder and never blocks the monitor loop.
type Adapter struct {
	cfg    Config
	signer app.Signer
	log    logger.LoggerInterface
	store  *marketapp.Store

	ws   *wsconn.Client
	http httpclient.Client

	limiter  *ratelimit.Limiter
	breaker  *circuitbreaker.Breaker[domain.OrderResponse]
	posCache *cache.Cache[string, domain.PositionInfo]

	subsMu sync.RWMutex
	subs   map[string]struct{}

	healthMu sync.RWMutex
	health   domain.ConnectionHealth
}

var _ app.Adapter = (*Adapter)(nil)

func New(cfg Config, signer app.Signer, store *marketapp.Store, log logger.LoggerInterface) (*Adapter, error) {
	wsCfg := wsconn.DefaultConfig(cfg.WSURL, "venueB")
	wsCfg.InitialBackoff = 500 * time.Millisecond
	wsCfg.MaxBackoff = 5 * time.Second
	wsCfg.ReadTimeout = 30 * time.Second
	ws, err := wsconn.New(wsCfg)
	if err != nil {
		return nil, fmt.Errorf("venueB: new ws client: %w", err)
	}

	httpClient, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("venueB"),
	)
	if err != nil {
		return nil, fmt.Errorf("venueB: new http client: %w", err)
	}

	b := &Adapter{
		cfg:      cfg,
		signer:   signer,
		log:      log,
		store:    store,
		ws:       ws,
		http:     httpClient,
		limiter:  ratelimit.New(placeOrderRateLimitRPM),
		breaker:  circuitbreaker.New[domain.OrderResponse](circuitbreaker.DefaultSettings("venueB-orders")),
		posCache: cache.New[string, domain.PositionInfo](positionCacheTTL),
		subs:     make(map[string]struct{}),
	}
	ws.OnMessage(b.handleMessage)
	ws.OnStateChange(b.handleStateChange)
	return b, nil
}

func (b *Adapter) Name() string { return venueName }

func (b *Adapter) Connect(ctx context.Context) error {
	if err := b.ws.Connect(ctx); err != nil {
		return apperror.New(apperror.CodeConnectionFailed,
			apperror.WithContext("venueB connect"), apperror.WithCause(err))
	}
	_, _ = b.http.NewRequest().Get(ctx, b.cfg.RESTBaseURL+"/ping")
	b.setConnected(true)
	return nil
}

func (b *Adapter) Disconnect(ctx context.Context) error {
	b.setConnected(false)
	return b.ws.Close()
}

func (b *Adapter) SubscribeOrderbook(ctx context.Context, symbol string) error {
	sub := map[string]any{"op": "subscribe", "channel": "orderbook", "symbol": symbol}
	if err := b.ws.SendJSON(ctx, sub); err != nil {
		return apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
	}
	b.subsMu.Lock()
	b.subs[symbol] = struct{}{}
	b.subsMu.Unlock()
	return nil
}

func (b *Adapter) UnsubscribeOrderbook(ctx context.Context, symbol string) error {
	b.subsMu.Lock()
	delete(b.subs, symbol)
	b.subsMu.Unlock()
	unsub := map[string]any{"op": "unsubscribe", "channel": "orderbook", "symbol": symbol}
	if err := b.ws.SendJSON(ctx, unsub); err != nil {
		return apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
	}
	return nil
}

func (b *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return domain.OrderResponse{}, apperror.New(apperror.CodeTimeout, apperror.WithCause(err))
	}

	return b.breaker.Execute(ctx, func(ctx context.Context) (domain.OrderResponse, error) {
		payload, err := json.Marshal(req)
		if err != nil {
			return domain.OrderResponse{}, apperror.New(apperror.CodeParseError, apperror.WithCause(err))
		}
		sig, err := b.signer.Sign(ctx, payload)
		if err != nil {
			return domain.OrderResponse{}, err
		}

		submit := func() (*httpclient.Response, error) {
			return b.http.NewRequest().
				SetHeader("X-Signature", fmt.Sprintf("%x", sig)).
				SetHeader("X-Account", b.signer.Address()).
				SetBody(req).
				Post(ctx, b.cfg.RESTBaseURL+"/orders")
		}

		resp, err := submit()
		if err != nil {
			return domain.OrderResponse{}, apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
		}
		// A 429 is not a rejection: honour the sequencer's Retry-After delay
		// once, then proceed with the same signed payload. A second 429 is
		// surfaced as RateLimited and left to the caller.
		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryAfterDelay(resp)
			b.log.Warn(ctx, "venueB rate limited on order submission",
				"retry_after_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return domain.OrderResponse{}, apperror.New(apperror.CodeRateLimited,
					apperror.WithRetryAfter(delay), apperror.WithCause(ctx.Err()))
			case <-time.After(delay):
			}
			resp, err = submit()
			if err != nil {
				return domain.OrderResponse{}, apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				return domain.OrderResponse{}, apperror.New(apperror.CodeRateLimited,
					apperror.WithRetryAfter(retryAfterDelay(resp)))
			}
		}
		if resp.IsError() {
			return domain.OrderResponse{}, apperror.New(apperror.CodeOrderRejected,
				apperror.WithContext(resp.String()))
		}

		var out domain.OrderResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return domain.OrderResponse{}, apperror.New(apperror.CodeParseError, apperror.WithCause(err))
		}
		return out, nil
	})
}

func (b *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	resp, err := b.http.NewRequest().Delete(ctx, b.cfg.RESTBaseURL+"/orders/"+orderID)
	if err != nil {
		return apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
	}
	if resp.IsError() && resp.StatusCode != 404 {
		return apperror.New(apperror.CodeOrderRejected, apperror.WithContext(resp.String()))
	}
	return nil
}

func (b *Adapter) Snapshot(symbol string) (marketdomain.Orderbook, bool) {
	return b.store.Snapshot(venueName, symbol)
}

func (b *Adapter) IsConnected() bool {
	return b.ws.IsConnected()
}

func (b *Adapter) IsStale() bool {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.health.IsStale(time.Now(), 5*time.Second)
}

func (b *Adapter) Reconnect(ctx context.Context) error {
	if err := b.Connect(ctx); err != nil {
		return err
	}
	b.subsMu.RLock()
	symbols := make([]string, 0, len(b.subs))
	for s := range b.subs {
		symbols = append(symbols, s)
	}
	b.subsMu.RUnlock()
	for _, s := range symbols {
		if err := b.SubscribeOrderbook(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Adapter) Position(ctx context.Context, symbol string) (domain.PositionInfo, bool, error) {
	if pos, ok := b.posCache.Get(symbol); ok {
		return pos, true, nil
	}

	resp, err := b.http.NewRequest().Get(ctx, b.cfg.RESTBaseURL+"/positions/"+symbol)
	if err != nil {
		return domain.PositionInfo{}, false, apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
	}
	if resp.IsError() {
		return domain.PositionInfo{}, false, nil
	}
	var pos domain.PositionInfo
	if err := json.Unmarshal(resp.Body(), &pos); err != nil {
		return domain.PositionInfo{}, false, apperror.New(apperror.CodeParseError, apperror.WithCause(err))
	}
	b.posCache.Set(symbol, pos)
	return pos, true, nil
}

func (b *Adapter) setConnected(connected bool) {
	b.healthMu.Lock()
	b.health.Connected = connected
	if connected {
		b.health.LastInboundAt = time.Now()
	}
	b.healthMu.Unlock()
}

func (b *Adapter) handleStateChange(state wsconn.State, err error) {
	b.setConnected(state == wsconn.StateConnected)
	if err != nil {
		b.log.Warn(context.Background(), "venueB connection state change", "state", string(state), "error", err)
	}
}

type depthMessage struct {
	Symbol string       `json:"symbol"`
	Bids   [][2]float64 `json:"bids"`
	Asks   [][2]float64 `json:"asks"`
}

func (b *Adapter) handleMessage(ctx context.Context, msg []byte) {
	b.healthMu.Lock()
	b.health.LastInboundAt = time.Now()
	b.healthMu.Unlock()

	var depth depthMessage
	if err := json.Unmarshal(msg, &depth); err != nil {
		b.log.Warn(ctx, "venueB parse error", "error", err)
		return
	}
	book := marketdomain.Orderbook{
		Symbol:    b.cfg.Symbol,
		Venue:     venueName,
		Timestamp: time.Now(),
		Bids:      toLevels(depth.Bids),
		Asks:      toLevels(depth.Asks),
	}
	// A crossed book is dropped with a diagnostic rather than published
	//.
	if book.Crossed() {
		b.log.Warn(ctx, "venueB crossed book dropped",
			"symbol", b.cfg.Symbol, "bid", book.Bids[0].Price, "ask", book.Asks[0].Price)
		return
	}
	b.store.Put(venueName, b.cfg.Symbol, book)
}

func toLevels(raw [][2]float64) []marketdomain.BookLevel {
	if len(raw) > marketdomain.MaxLevels {
		raw = raw[:marketdomain.MaxLevels]
	}
	levels := make([]marketdomain.BookLevel, 0, len(raw))
	for _, r := range raw {
		levels = append(levels, marketdomain.BookLevel{Price: r[0], Quantity: r[1]})
	}
	return levels
}

// retryAfterDelay reads the venue's Retry-After response header (seconds).
// A missing or malformed value falls back to one second.
func retryAfterDelay(resp *httpclient.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}
