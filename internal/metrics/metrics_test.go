package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/afrix/afxledger/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.RecordClaim("granted")
	m.RecordTrade("sell", decimal.NewFromInt(5))
	m.RecordCommissionError("trade")
	m.SetSupplyDrift(decimal.Zero)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}

// Two instances must not collide on registration.
func TestNewTwice(t *testing.T) {
	a := metrics.New("api")
	b := metrics.New("api")
	a.RecordClaim("granted")
	a.RecordClaim("granted")
	b.RecordClaim("cooling")

	if got := testutil.ToFloat64(a.ClaimsTotal.WithLabelValues("granted")); got != 2 {
		t.Errorf("a granted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(b.ClaimsTotal.WithLabelValues("granted")); got != 0 {
		t.Errorf("b granted = %v, want 0", got)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := metrics.New("api")
	m.RecordHTTPRequest(http.MethodGet, "/health", 200, 3*time.Millisecond)
	m.RecordTrade("buy", decimal.RequireFromString("2.5"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`afx_api_http_requests_total{method="GET",route="/health",status="200"} 1`,
		`afx_api_trades_total{side="buy"} 1`,
		`afx_api_traded_coins_total 2.5`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
