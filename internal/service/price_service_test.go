package service_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/service"
	"go.uber.org/zap"
)

// ── Mock feed ─────────────────────────────────────────────────────────────────

func mockFeed(body string, status int, hits *int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func buildPriceService(feedURL string, ttl time.Duration, fallback string) (*service.PriceService, *fakeClock) {
	cfg := &config.Config{
		Price: config.PriceConfig{
			FeedURL:      feedURL,
			FetchTimeout: 2 * time.Second,
			CacheTTL:     ttl,
		},
	}
	if fallback != "" {
		cfg.Price.Fallback = dec(fallback)
	}
	ps := service.NewPriceService(cfg, nil, zap.NewNop())
	clock := newFakeClock()
	ps.SetClock(clock.Now)
	return ps, clock
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestPriceService_FeedAndCache(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(mockFeed(`{"price":"16.00"}`, http.StatusOK, &hits))
	defer srv.Close()

	ps, clock := buildPriceService(srv.URL, 30*time.Second, "")
	q, err := ps.ReferencePrice(ctx)
	if err != nil {
		t.Fatalf("ReferencePrice: %v", err)
	}
	if !q.Price.Equal(dec("16")) || q.Source != "feed" {
		t.Errorf("quote = %+v", q)
	}

	clock.Advance(10 * time.Second)
	if _, err := ps.ReferencePrice(ctx); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Errorf("feed hits = %d, want 1 while cache is fresh", hits)
	}

	clock.Advance(30 * time.Second)
	if _, ok := ps.GetCachedPrice(); ok {
		t.Error("cache should be stale after TTL")
	}
	if _, err := ps.ReferencePrice(ctx); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if atomic.LoadInt64(&hits) != 2 {
		t.Errorf("feed hits = %d, want 2 after TTL", hits)
	}
}

// Numeric JSON prices are accepted too.
func TestPriceService_NumericPrice(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(mockFeed(`{"price":15.75}`, http.StatusOK, &hits))
	defer srv.Close()

	ps, _ := buildPriceService(srv.URL, time.Minute, "")
	q, err := ps.Refresh(ctx)
	if err != nil || !q.Price.Equal(dec("15.75")) {
		t.Fatalf("Refresh = %+v, %v", q, err)
	}
}

// After a good fetch, a failing feed keeps serving the last known price.
func TestPriceService_StaleOnFailure(t *testing.T) {
	var hits int64
	status := int64(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(int(atomic.LoadInt64(&status)))
		_, _ = w.Write([]byte(`{"price":"16.40"}`))
	}))
	defer srv.Close()

	ps, clock := buildPriceService(srv.URL, time.Second, "")
	if _, err := ps.ReferencePrice(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}
	atomic.StoreInt64(&status, http.StatusServiceUnavailable)
	clock.Advance(time.Minute)

	q, err := ps.ReferencePrice(ctx)
	if err != nil {
		t.Fatalf("stale lookup: %v", err)
	}
	if !q.Price.Equal(dec("16.40")) {
		t.Errorf("price = %s, want last known 16.40", q.Price)
	}
}

func TestPriceService_Fallback(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(mockFeed("unavailable", http.StatusServiceUnavailable, &hits))
	defer srv.Close()

	ps, _ := buildPriceService(srv.URL, time.Second, "16")
	q, err := ps.ReferencePrice(ctx)
	if err != nil || q.Source != "fallback" || !q.Price.Equal(dec("16")) {
		t.Fatalf("fallback = %+v, %v", q, err)
	}

	none, _ := buildPriceService(srv.URL, time.Second, "")
	if _, err := none.ReferencePrice(ctx); err == nil {
		t.Fatal("expected error with no feed price and no fallback")
	}
}
