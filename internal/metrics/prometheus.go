// Package metrics provides Prometheus metrics for the sequencer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Admin HTTP request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Auction metrics
	AuctionsTotal     *prometheus.CounterVec
	AuctionWaitTime   *prometheus.HistogramVec
	BidsReceived      *prometheus.CounterVec
	BidFee            *prometheus.HistogramVec
	CandidatesPerTick *prometheus.HistogramVec

	// Executor metrics
	TickDuration    prometheus.Histogram
	TransfersQueued prometheus.Gauge
	DispatchTotal   *prometheus.CounterVec
	DispatchLatency *prometheus.HistogramVec

	// Relayer metrics
	RelayerSends    *prometheus.CounterVec
	RelayerLatency  *prometheus.HistogramVec
	RelayerFailover *prometheus.CounterVec

	// Router liquidity cache metrics
	LiquidityCacheHits    *prometheus.CounterVec
	LiquidityCacheMisses  *prometheus.CounterVec
	LiquidityRefreshTotal *prometheus.CounterVec
	IndexerCircuitState   prometheus.Gauge

	// System metrics
	ActiveConnections prometheus.Gauge
	RateLimitRejected prometheus.Counter
	AuthFailures      prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sequencer"
	}

	m := &Metrics{
		// Admin HTTP request metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of admin API HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of admin API HTTP requests currently being served",
			},
		),

		// Auction metrics
		AuctionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auctions_total",
				Help:      "Total number of auctions by terminal status",
			},
			[]string{"status", "destination"},
		),
		AuctionWaitTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "auction_wait_time_seconds",
				Help:      "Time an auction sat Queued before the executor dispatched it",
				Buckets:   []float64{1, 5, 10, 15, 20, 30, 45, 60, 90, 120},
			},
			[]string{"destination"},
		),
		BidsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bids_received_total",
				Help:      "Total number of bids ingested",
			},
			[]string{"destination"},
		),
		BidFee: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bid_fee",
				Help:      "Bid fee distribution",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"destination"},
		),
		CandidatesPerTick: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "candidates_per_tick",
				Help:      "Number of eligible bid candidates considered per transfer per tick",
				Buckets:   []float64{1, 2, 3, 5, 7, 10, 15, 20},
			},
			[]string{"destination"},
		),

		// Executor metrics
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "executor_tick_duration_seconds",
				Help:      "Duration of one executor tick across all domains",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
		),
		TransfersQueued: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transfers_queued",
				Help:      "Number of transfers queued at the start of the most recent tick",
			},
		),
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total dispatch attempts by outcome",
			},
			[]string{"destination", "outcome"},
		),
		DispatchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_latency_seconds",
				Help:      "Time from candidate selection to a successful dispatch",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, .75, 1, 2},
			},
			[]string{"destination"},
		),

		// Relayer metrics
		RelayerSends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relayer_sends_total",
				Help:      "Total send attempts per relayer",
			},
			[]string{"relayer", "result"},
		),
		RelayerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "relayer_latency_seconds",
				Help:      "Relayer send latency in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .15, .2, .3, .5, .75, 1},
			},
			[]string{"relayer"},
		),
		RelayerFailover: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relayer_failover_total",
				Help:      "Total times dispatch fell through to the next relayer in priority order",
			},
			[]string{"from_relayer", "to_relayer"},
		),

		// Router liquidity cache metrics
		LiquidityCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "liquidity_cache_hits_total",
				Help:      "Total router liquidity cache hits",
			},
			[]string{"domain"},
		),
		LiquidityCacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "liquidity_cache_misses_total",
				Help:      "Total router liquidity cache misses requiring a chain refresh",
			},
			[]string{"domain"},
		),
		LiquidityRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "liquidity_refresh_total",
				Help:      "Total liquidity refreshes against the indexer, by outcome",
			},
			[]string{"outcome"},
		),
		IndexerCircuitState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "indexer_circuit_breaker_state",
				Help:      "Indexer client circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),

		// System metrics
		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of active admin API connections",
			},
		),
		RateLimitRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_rejected_total",
				Help:      "Total requests rejected due to rate limiting",
			},
		),
		AuthFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total authentication failures",
			},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.AuctionsTotal,
		m.AuctionWaitTime,
		m.BidsReceived,
		m.BidFee,
		m.CandidatesPerTick,
		m.TickDuration,
		m.TransfersQueued,
		m.DispatchTotal,
		m.DispatchLatency,
		m.RelayerSends,
		m.RelayerLatency,
		m.RelayerFailover,
		m.LiquidityCacheHits,
		m.LiquidityCacheMisses,
		m.LiquidityRefreshTotal,
		m.IndexerCircuitState,
		m.ActiveConnections,
		m.RateLimitRejected,
		m.AuthFailures,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns HTTP middleware that records request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(wrapped.statusCode)

		m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordAuction records an auction reaching a terminal status for one tick.
func (m *Metrics) RecordAuction(status, destination string, waitTime time.Duration) {
	m.AuctionsTotal.WithLabelValues(status, destination).Inc()
	m.AuctionWaitTime.WithLabelValues(destination).Observe(waitTime.Seconds())
}

// RecordBid records a bid ingested for an auction.
func (m *Metrics) RecordBid(destination string, fee float64) {
	m.BidsReceived.WithLabelValues(destination).Inc()
	m.BidFee.WithLabelValues(destination).Observe(fee)
}

// RecordTick records one executor tick.
func (m *Metrics) RecordTick(duration time.Duration, queued int) {
	m.TickDuration.Observe(duration.Seconds())
	m.TransfersQueued.Set(float64(queued))
}

// RecordDispatch records a dispatch attempt outcome for one transfer.
func (m *Metrics) RecordDispatch(destination, outcome string, latency time.Duration) {
	m.DispatchTotal.WithLabelValues(destination, outcome).Inc()
	if outcome == "success" {
		m.DispatchLatency.WithLabelValues(destination).Observe(latency.Seconds())
	}
}

// RecordRelayerSend records one relayer send attempt.
func (m *Metrics) RecordRelayerSend(relayerType, result string, latency time.Duration) {
	m.RelayerSends.WithLabelValues(relayerType, result).Inc()
	m.RelayerLatency.WithLabelValues(relayerType).Observe(latency.Seconds())
}

// RecordRelayerFailover records dispatch falling through to the next relayer.
func (m *Metrics) RecordRelayerFailover(from, to string) {
	m.RelayerFailover.WithLabelValues(from, to).Inc()
}

// RecordLiquidityCacheResult records a router liquidity cache lookup.
func (m *Metrics) RecordLiquidityCacheResult(domain string, hit bool) {
	if hit {
		m.LiquidityCacheHits.WithLabelValues(domain).Inc()
	} else {
		m.LiquidityCacheMisses.WithLabelValues(domain).Inc()
	}
}

// RecordLiquidityRefresh records a cache-miss refresh against the indexer.
func (m *Metrics) RecordLiquidityRefresh(outcome string) {
	m.LiquidityRefreshTotal.WithLabelValues(outcome).Inc()
}

// SetIndexerCircuitState sets the indexer circuit breaker state metric.
func (m *Metrics) SetIndexerCircuitState(state string) {
	var value float64
	switch state {
	case "closed":
		value = 0
	case "open":
		value = 1
	case "half_open":
		value = 2
	}
	m.IndexerCircuitState.Set(value)
}
