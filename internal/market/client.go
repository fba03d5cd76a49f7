package market

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"hightrade/internal/domain"
)

// Pacer is the rate-limiter surface the client needs.
type Pacer interface {
	Acquire(ctx context.Context, source string) error
	RecordSuccess(source string)
	RecordFailure(source string)
}

// ClientOptions wires a Client.
type ClientOptions struct {
	Provider   Provider
	Pacer      Pacer
	LimiterKey string
}

// Client fetches market snapshots with a circuit breaker in front of the
// upstream. When the upstream (or the breaker) fails, prices degrade to a
// synthetic walk around the last known value and the snapshot is flagged
// stale. Stale snapshots must not open new positions.
type Client struct {
	provider   Provider
	pacer      Pacer
	limiterKey string
	breaker    *gobreaker.CircuitBreaker

	mu         sync.Mutex
	lastPrices map[string]float64
	lastMacro  Macro
	haveMacro  bool

	now  func() time.Time
	rand *rand.Rand
}

// NewClient builds a Client. The breaker opens after 3 consecutive
// failures and probes again after 60s.
func NewClient(opts ClientOptions) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "market-data",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Client{
		provider:   opts.Provider,
		pacer:      opts.Pacer,
		limiterKey: opts.LimiterKey,
		breaker:    breaker,
		lastPrices: make(map[string]float64),
		now:        time.Now,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// syntheticFactor perturbs a last-known value by +/-2%.
func (c *Client) syntheticFactor() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return 0.98 + c.rand.Float64()*0.04
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (float64, error) {
	if err := c.pacer.Acquire(ctx, c.limiterKey); err != nil {
		return 0, err
	}
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.Quote(ctx, symbol)
	})
	if err != nil {
		c.pacer.RecordFailure(c.limiterKey)
		return 0, err
	}
	c.pacer.RecordSuccess(c.limiterKey)
	return v.(float64), nil
}

func (c *Client) fetchMacro(ctx context.Context) (Macro, error) {
	if err := c.pacer.Acquire(ctx, c.limiterKey); err != nil {
		return Macro{}, err
	}
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.Macro(ctx)
	})
	if err != nil {
		c.pacer.RecordFailure(c.limiterKey)
		return Macro{}, err
	}
	c.pacer.RecordSuccess(c.limiterKey)
	return v.(Macro), nil
}

// Snapshot assembles the cycle's market view for the given symbols.
func (c *Client) Snapshot(ctx context.Context, symbols []string) domain.MarketSnapshot {
	snap := domain.MarketSnapshot{
		Timestamp: c.now(),
		Prices:    make(map[string]float64, len(symbols)),
	}

	macro, err := c.fetchMacro(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("macro fetch failed, reusing last known")
		snap.Stale = true
		c.mu.Lock()
		if c.haveMacro {
			macro = c.lastMacro
		}
		c.mu.Unlock()
	} else {
		c.mu.Lock()
		c.lastMacro = macro
		c.haveMacro = true
		c.mu.Unlock()
	}
	snap.VIX = macro.VIX
	snap.BondYield10Y = macro.Yield10Y
	snap.SP500ChangePct = macro.SP500ChgPct

	for _, symbol := range symbols {
		price, err := c.fetchQuote(ctx, symbol)
		if err != nil {
			snap.Stale = true
			c.mu.Lock()
			last, ok := c.lastPrices[symbol]
			c.mu.Unlock()
			if !ok {
				log.Warn().Err(err).Str("symbol", symbol).Msg("quote failed, no last known price")
				continue
			}
			price = last * c.syntheticFactor()
			log.Warn().Err(err).Str("symbol", symbol).Float64("synthetic", price).Msg("quote failed, synthetic price")
		} else {
			c.mu.Lock()
			c.lastPrices[symbol] = price
			c.mu.Unlock()
		}
		snap.Prices[symbol] = price
	}

	return snap
}
