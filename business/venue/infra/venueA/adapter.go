package venueA

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
	venueName = "A"

	// placeOrderRateLimitRPM bounds the order-submission REST path;
	// independent from the streaming feed.
	placeOrderRateLimitRPM = 600

	// positionCacheTTL bounds how long a startup-inspection Position result
	// is reused: Position is a startup-inspection call that neither the
	// engine nor the supervisor makes, so a short TTL just
	// absorbs bursts of repeated calls without masking a real position change.
	positionCacheTTL = 2 * time.Second
)

// Config configures the venue A adapter. Symbol is the internal canonical
// <BASE>-PERP symbol the store and engine key by; it may differ from the
// venue-local spelling used on the wire — V1 runs
// exactly one bot per process, so one adapter instance ever tracks exactly
// one underlying.
type Config struct {
	WSURL       string
	RESTBaseURL string
	Address     string
	Symbol      string
}

// Adapter is the venue A (EVM-authenticated) implementation of app.Adapter.
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

// New constructs the venue A adapter over the shared wsconn and httpclient
// infrastructure.
func New(cfg Config, signer app.Signer, store *marketapp.Store, log logger.LoggerInterface) (*Adapter, error) {
	wsCfg := wsconn.DefaultConfig(cfg.WSURL, "venueA")
	// Reconnect backoff per the venue connection policy: 500 ms initial,
	// doubling to a 5 s cap; 30 s idle read timeout.
	wsCfg.InitialBackoff = 500 * time.Millisecond
	wsCfg.MaxBackoff = 5 * time.Second
	wsCfg.ReadTimeout = 30 * time.Second
	ws, err := wsconn.New(wsCfg)
	if err != nil {
		return nil, fmt.Errorf("venueA: new ws client: %w", err)
	}

	httpClient, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("venueA"),
	)
	if err != nil {
		return nil, fmt.Errorf("venueA: new http client: %w", err)
	}

	a := &Adapter{
		cfg:      cfg,
		signer:   signer,
		log:      log,
		store:    store,
		ws:       ws,
		http:     httpClient,
		limiter:  ratelimit.New(placeOrderRateLimitRPM),
		breaker:  circuitbreaker.New[domain.OrderResponse](circuitbreaker.DefaultSettings("venueA-orders")),
		posCache: cache.New[string, domain.PositionInfo](positionCacheTTL),
		subs:     make(map[string]struct{}),
	}
	ws.OnMessage(a.handleMessage)
	ws.OnStateChange(a.handleStateChange)
	return a, nil
}

func (a *Adapter) Name() string { return venueName }

func (a *Adapter) Connect(ctx context.Context) error {
	if err := a.ws.Connect(ctx); err != nil {
		return apperror.New(apperror.CodeConnectionFailed,
			apperror.WithContext("venueA connect"), apperror.WithCause(err))
	}
	// Warm the HTTP connection pool with a trivial authenticated request
	// so the first real order placement does
	// not pay a fresh-connection penalty.
	_, _ = a.http.NewRequest().Get(ctx, a.cfg.RESTBaseURL+"/ping")
	a.setConnected(true)
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.setConnected(false)
	return a.ws.Close()
}

func (a *Adapter) SubscribeOrderbook(ctx context.Context, symbol string) error {
	sub := map[string]any{"op": "subscribe", "channel": "orderbook", "symbol": symbol}
	if err := a.ws.SendJSON(ctx, sub); err != nil {
		return apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
	}
	a.subsMu.Lock()
	a.subs[symbol] = struct{}{}
	a.subsMu.Unlock()
	return nil
}

func (a *Adapter) UnsubscribeOrderbook(ctx context.Context, symbol string) error {
	a.subsMu.Lock()
	delete(a.subs, symbol)
	a.subsMu.Unlock()
	unsub := map[string]any{"op": "unsubscribe", "channel": "orderbook", "symbol": symbol}
	if err := a.ws.SendJSON(ctx, unsub); err != nil {
		return apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
	}
	return nil
}

// PlaceOrder signs and submits req, wrapped in the order-path circuit
// breaker and rate limiter. It never retries a failed submission: a
// breaker-open or limiter-wait failure is surfaced directly as a leg
// failure. The one exception is a venue 429, whose Retry-After delay is
// honoured once before re-submitting the same signed payload.
func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return domain.OrderResponse{}, apperror.New(apperror.CodeTimeout, apperror.WithCause(err))
	}

	return a.breaker.Execute(ctx, func(ctx context.Context) (domain.OrderResponse, error) {
		payload, err := json.Marshal(req)
		if err != nil {
			return domain.OrderResponse{}, apperror.New(apperror.CodeParseError, apperror.WithCause(err))
		}
		sig, err := a.signer.Sign(ctx, payload)
		if err != nil {
			return domain.OrderResponse{}, err
		}
		if req.ClientOrderID == "" {
			req.ClientOrderID = clientOrderIDFromSignature(sig)
		}

		submit := func() (*httpclient.Response, error) {
			return a.http.NewRequest().
				SetHeader("X-Signature", fmt.Sprintf("%x", sig)).
				SetHeader("X-Address", a.accountAddress()).
				SetBody(req).
				Post(ctx, a.cfg.RESTBaseURL+"/orders")
		}

		resp, err := submit()
		if err != nil {
			return domain.OrderResponse{}, apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
		}
		// A 429 is not a rejection: honour the venue's Retry-After delay once,
		// then proceed with the same signed payload. A second 429 is surfaced
		// as RateLimited and left to the caller.
		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryAfterDelay(resp)
			a.log.Warn(ctx, "venueA rate limited on order submission",
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
		out.ClientOrderID = req.ClientOrderID
		return out, nil
	})
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	resp, err := a.http.NewRequest().Delete(ctx, a.cfg.RESTBaseURL+"/orders/"+orderID)
	if err != nil {
		return apperror.New(apperror.CodeConnectionFailed, apperror.WithCause(err))
	}
	// A cancel of an already-closed order returns success, not an error
	//; only a genuine venue-side error is surfaced.
	if resp.IsError() && resp.StatusCode != 404 {
		return apperror.New(apperror.CodeOrderRejected, apperror.WithContext(resp.String()))
	}
	return nil
}

func (a *Adapter) Snapshot(symbol string) (marketdomain.Orderbook, bool) {
	return a.store.Snapshot(venueName, symbol)
}

func (a *Adapter) IsConnected() bool {
	return a.ws.IsConnected()
}

func (a *Adapter) IsStale() bool {
	a.healthMu.RLock()
	defer a.healthMu.RUnlock()
	return a.health.IsStale(time.Now(), 5*time.Second)
}

func (a *Adapter) Reconnect(ctx context.Context) error {
	if err := a.Connect(ctx); err != nil {
		return err
	}
	a.subsMu.RLock()
	symbols := make([]string, 0, len(a.subs))
	for s := range a.subs {
		symbols = append(symbols, s)
	}
	a.subsMu.RUnlock()
	for _, s := range symbols {
		if err := a.SubscribeOrderbook(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Position(ctx context.Context, symbol string) (domain.PositionInfo, bool, error) {
	if pos, ok := a.posCache.Get(symbol); ok {
		return pos, true, nil
	}

	resp, err := a.http.NewRequest().Get(ctx, a.cfg.RESTBaseURL+"/positions/"+symbol)
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
	a.posCache.Set(symbol, pos)
	return pos, true, nil
}

// accountAddress is the venue-side account identity: the configured primary
// address when one is set (venue A allows a delegated signing key distinct
// from the account), otherwise the address derived from the signing key.
func (a *Adapter) accountAddress() string {
	if a.cfg.Address != "" {
		return a.cfg.Address
	}
	return a.signer.Address()
}

func (a *Adapter) setConnected(connected bool) {
	a.healthMu.Lock()
	a.health.Connected = connected
	if connected {
		a.health.LastInboundAt = time.Now()
	}
	a.healthMu.Unlock()
}

func (a *Adapter) handleStateChange(state wsconn.State, err error) {
	a.setConnected(state == wsconn.StateConnected)
	if err != nil {
		a.log.Warn(context.Background(), "venueA connection state change", "state", string(state), "error", err)
	}
}

// depthMessage mirrors the venue's snapshot-then-delta orderbook payload.
// The exact envelope is opaque to the core; only the normalized
// Orderbook that results from it matters downstream.
type depthMessage struct {
	Symbol string       `json:"symbol"`
	Bids   [][2]float64 `json:"bids"`
	Asks   [][2]float64 `json:"asks"`
}

func (a *Adapter) handleMessage(ctx context.Context, msg []byte) {
	a.healthMu.Lock()
	a.health.LastInboundAt = time.Now()
	a.healthMu.Unlock()

	var depth depthMessage
	if err := json.Unmarshal(msg, &depth); err != nil {
		a.log.Warn(ctx, "venueA parse error", "error", err)
		return
	}
	// depth.Symbol carries the venue's own spelling; the store always keys
	// by the internal canonical symbol, which this adapter instance is
	// configured with.
	book := marketdomain.Orderbook{
		Symbol:    a.cfg.Symbol,
		Venue:     venueName,
		Timestamp: time.Now(),
		Bids:      toLevels(depth.Bids),
		Asks:      toLevels(depth.Asks),
	}
	// A crossed book is dropped with a diagnostic rather than published
	//.
	if book.Crossed() {
		a.log.Warn(ctx, "venueA crossed book dropped",
			"symbol", a.cfg.Symbol, "bid", book.Bids[0].Price, "ask", book.Asks[0].Price)
		return
	}
	a.store.Put(venueName, a.cfg.Symbol, book)
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
