package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// QuoteCache is a Redis-backed last-quote store shared by every cached
// adapter in the process.
type QuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQuoteCache connects to Redis and verifies the connection. ttl bounds
// how long a served-from-cache quote can outlive the venue outage that
// stranded it.
func NewQuoteCache(addr, password string, db int, ttl time.Duration) (*QuoteCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &QuoteCache{client: rdb, ttl: ttl}, nil
}

// Wrap decorates an adapter with write-through caching and cache fallback.
func (qc *QuoteCache) Wrap(inner Adapter) Adapter {
	return &cachedAdapter{inner: inner, cache: qc}
}

// Close releases the Redis connection.
func (qc *QuoteCache) Close() error {
	return qc.client.Close()
}

func (qc *QuoteCache) key(venue, pair string) string {
	return fmt.Sprintf("quotes:%s:%s", venue, pair)
}

func (qc *QuoteCache) put(ctx context.Context, venue, pair string, q *model.Quote) {
	payload, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := qc.client.Set(ctx, qc.key(venue, pair), payload, qc.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("venue", venue).Msg("quote cache write failed")
	}
}

func (qc *QuoteCache) get(ctx context.Context, venue, pair string) *model.Quote {
	payload, err := qc.client.Get(ctx, qc.key(venue, pair)).Bytes()
	if err != nil {
		return nil
	}
	var q model.Quote
	if err := json.Unmarshal(payload, &q); err != nil {
		return nil
	}
	return &q
}

// cachedAdapter serves live quotes when the venue answers, writing good
// quotes through to the cache, and falls back to the cached copy only on
// temporary fetch failures. The cached quote keeps its original timestamp
// so downstream staleness checks still apply. Permanent errors and
// no-quote results pass through untouched.
type cachedAdapter struct {
	inner Adapter
	cache *QuoteCache
}

func (c *cachedAdapter) Name() string { return c.inner.Name() }

func (c *cachedAdapter) NormalizeSymbol(pair string) string {
	return c.inner.NormalizeSymbol(pair)
}

func (c *cachedAdapter) FetchQuote(ctx context.Context, pair string) (*model.Quote, error) {
	q, err := c.inner.FetchQuote(ctx, pair)
	if err == nil {
		if q != nil {
			c.cache.put(ctx, c.inner.Name(), pair, q)
		}
		return q, nil
	}
	if !model.IsTemporary(err) {
		return nil, err
	}
	cached := c.cache.get(ctx, c.inner.Name(), pair)
	if cached == nil {
		return nil, err
	}
	log.Debug().
		Str("venue", c.inner.Name()).
		Str("pair", pair).
		Msg("serving quote from redis cache after temporary fetch failure")
	return cached, nil
}

// FetchDepth delegates to the wrapped adapter when it exposes an order
// book. Depth is not cached; stale book levels are worse than no levels.
func (c *cachedAdapter) FetchDepth(ctx context.Context, pair string) (*model.DepthInfo, error) {
	if dp, ok := c.inner.(DepthProvider); ok {
		return dp.FetchDepth(ctx, pair)
	}
	return nil, nil
}
