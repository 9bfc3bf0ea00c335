package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// priceCacheKey holds the last feed price shared by every instance.
const priceCacheKey = "afx:price:reference"

// PriceQuote is the reference price with where it came from.
type PriceQuote struct {
	Price     decimal.Decimal `json:"price"`
	Source    string          `json:"source"` // "feed" | "cache" | "fallback"
	FetchedAt time.Time       `json:"fetched_at"`
}

// PriceService serves the reference unit price that offers are banded
// against. Lookups go local cache, then redis, then the feed; when all of
// them fail the last known price or the configured fallback is used.
type PriceService struct {
	client  *http.Client
	cfg     *config.PriceConfig
	rdb     *redis.Client // optional
	log     *zap.Logger
	metrics *metrics.Metrics
	now     Clock

	mu     sync.RWMutex
	cached PriceQuote
}

// NewPriceService constructs a PriceService. rdb may be nil.
func NewPriceService(cfg *config.Config, rdb *redis.Client, log *zap.Logger) *PriceService {
	return &PriceService{
		client: &http.Client{Timeout: cfg.Price.FetchTimeout},
		cfg:    &cfg.Price,
		rdb:    rdb,
		log:    log,
		now:    systemClock,
	}
}

// SetClock replaces the time source.
func (ps *PriceService) SetClock(c Clock) { ps.now = c }

// SetMetrics injects the collectors.
func (ps *PriceService) SetMetrics(m *metrics.Metrics) { ps.metrics = m }

// ──────────────────────────────────────────────────────────────────────────────
// Public API
// ──────────────────────────────────────────────────────────────────────────────

// ReferencePrice returns the current reference price.
func (ps *PriceService) ReferencePrice(ctx context.Context) (PriceQuote, error) {
	if q, ok := ps.GetCachedPrice(); ok {
		return q, nil
	}
	if q, ok := ps.fromRedis(ctx); ok {
		ps.store(q)
		return q, nil
	}
	q, err := ps.Refresh(ctx)
	if err == nil {
		return q, nil
	}
	return ps.fallback(err)
}

// Refresh fetches the feed now, bypassing the caches, and stores the result
// locally and in redis.
func (ps *PriceService) Refresh(ctx context.Context) (PriceQuote, error) {
	if ps.cfg.FeedURL == "" {
		return PriceQuote{}, errors.New("price_service: no feed configured")
	}
	price, err := ps.fetchFeed(ctx)
	if err != nil {
		ps.log.Warn("price feed fetch failed", zap.Error(err))
		return PriceQuote{}, err
	}

	q := PriceQuote{Price: price, Source: "feed", FetchedAt: ps.now()}
	ps.store(q)
	if ps.rdb != nil {
		b, _ := json.Marshal(q)
		if err := ps.rdb.Set(ctx, priceCacheKey, b, ps.cfg.CacheTTL).Err(); err != nil {
			ps.log.Warn("price cache write failed", zap.Error(err))
		}
	}
	return q, nil
}

// GetCachedPrice returns the in-memory quote while it is within CacheTTL.
func (ps *PriceService) GetCachedPrice() (PriceQuote, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.cached.FetchedAt.IsZero() || ps.now().Sub(ps.cached.FetchedAt) >= ps.cfg.CacheTTL {
		return PriceQuote{}, false
	}
	return ps.cached, true
}

// ──────────────────────────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────────────────────────

func (ps *PriceService) store(q PriceQuote) {
	ps.mu.Lock()
	ps.cached = q
	ps.mu.Unlock()
	ps.metrics.SetReferencePrice(q.Price)
}

func (ps *PriceService) fromRedis(ctx context.Context) (PriceQuote, bool) {
	if ps.rdb == nil {
		return PriceQuote{}, false
	}
	b, err := ps.rdb.Get(ctx, priceCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			ps.log.Warn("price cache read failed", zap.Error(err))
		}
		return PriceQuote{}, false
	}
	var q PriceQuote
	if err := json.Unmarshal(b, &q); err != nil || !q.Price.IsPositive() {
		return PriceQuote{}, false
	}
	q.Source = "cache"
	return q, true
}

// fallback serves the last known feed price, however old, then the
// configured constant.
func (ps *PriceService) fallback(cause error) (PriceQuote, error) {
	ps.mu.RLock()
	last := ps.cached
	ps.mu.RUnlock()
	if last.Price.IsPositive() {
		return last, nil
	}
	if ps.cfg.Fallback.IsPositive() {
		return PriceQuote{Price: ps.cfg.Fallback, Source: "fallback", FetchedAt: ps.now()}, nil
	}
	return PriceQuote{}, fmt.Errorf("price_service: no reference price available: %w", cause)
}

// fetchFeed reads the feed's JSON body.
//
//	GET <feed_url>
//	{"price":"16.00"}
func (ps *PriceService) fetchFeed(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ps.cfg.FeedURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "afxledger/1.0")

	resp, err := ps.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read body: %w", err)
	}

	var out struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, fmt.Errorf("parse: %w", err)
	}
	if !out.Price.IsPositive() {
		return decimal.Zero, errors.New("feed returned a non-positive price")
	}
	return out.Price, nil
}
