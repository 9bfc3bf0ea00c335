// Package metrics holds the Prometheus collectors for the ledger. Each
// Metrics owns its registry so tests can build as many as they like.
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "afx"

// Metrics is the set of collectors exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ClaimsTotal       *prometheus.CounterVec
	OffersTotal       *prometheus.CounterVec
	TradesTotal       *prometheus.CounterVec
	TradedVolume      prometheus.Counter
	CommissionsTotal  *prometheus.CounterVec
	CommissionErrors  *prometheus.CounterVec
	EventPublishFails *prometheus.CounterVec
	SupplyDrift       prometheus.Gauge
	ReferencePrice    prometheus.Gauge
}

// New creates and registers all collectors under service.
func New(service string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: service,
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		ClaimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "claims_total",
			Help: "Claim attempts by result.",
		}, []string{"result"}),
		OffersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "offers_total",
			Help: "Offer lifecycle events by side and action.",
		}, []string{"side", "action"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "trades_total",
			Help: "Settled trades by offer side.",
		}, []string{"side"}),
		TradedVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "traded_coins_total",
			Help: "Coin units moved by settled trades.",
		}),
		CommissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "commissions_total",
			Help: "Referral commissions credited by source.",
		}, []string{"source"}),
		CommissionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "commission_errors_total",
			Help: "Commission accruals that failed and were skipped.",
		}, []string{"source"}),
		EventPublishFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service,
			Name: "event_publish_failures_total",
			Help: "Events that could not be delivered, by sink.",
		}, []string{"sink"}),
		SupplyDrift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: service,
			Name: "supply_drift_coins",
			Help: "available + locked - minted at the last reconcile. Must be 0.",
		}),
		ReferencePrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: service,
			Name: "reference_price",
			Help: "Last reference unit price served.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.ClaimsTotal, m.OffersTotal, m.TradesTotal, m.TradedVolume,
		m.CommissionsTotal, m.CommissionErrors, m.EventPublishFails,
		m.SupplyDrift, m.ReferencePrice,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ──────────────────────────────────────────────────────────────────────────────
// Recorders
// ──────────────────────────────────────────────────────────────────────────────

// RecordHTTPRequest counts one request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordClaim counts a claim attempt; result is "granted", "cooling" or "error".
func (m *Metrics) RecordClaim(result string) {
	if m == nil {
		return
	}
	m.ClaimsTotal.WithLabelValues(result).Inc()
}

// RecordOffer counts an offer create or cancel.
func (m *Metrics) RecordOffer(side, action string) {
	if m == nil {
		return
	}
	m.OffersTotal.WithLabelValues(side, action).Inc()
}

// RecordTrade counts a settled trade and its volume.
func (m *Metrics) RecordTrade(side string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(side).Inc()
	m.TradedVolume.Add(amount.InexactFloat64())
}

// RecordCommission counts a credited commission.
func (m *Metrics) RecordCommission(source string) {
	if m == nil {
		return
	}
	m.CommissionsTotal.WithLabelValues(source).Inc()
}

// RecordCommissionError counts a swallowed commission failure.
func (m *Metrics) RecordCommissionError(source string) {
	if m == nil {
		return
	}
	m.CommissionErrors.WithLabelValues(source).Inc()
}

// RecordPublishFailure counts an undelivered event.
func (m *Metrics) RecordPublishFailure(sink string) {
	if m == nil {
		return
	}
	m.EventPublishFails.WithLabelValues(sink).Inc()
}

// SetSupplyDrift stores the reconcile result.
func (m *Metrics) SetSupplyDrift(drift decimal.Decimal) {
	if m == nil {
		return
	}
	m.SupplyDrift.Set(drift.InexactFloat64())
}

// SetReferencePrice stores the last reference price.
func (m *Metrics) SetReferencePrice(p decimal.Decimal) {
	if m == nil {
		return
	}
	m.ReferencePrice.Set(p.InexactFloat64())
}
