package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orderbook"

// Recorder tracks order flow for both the JSON /metrics endpoint and the
// Prometheus exposition. Each Recorder owns its own registry.
type Recorder struct {
	Registry *prometheus.Registry

	startTime       time.Time
	ordersReceived  atomic.Int64
	ordersMatched   atomic.Int64
	ordersCancelled atomic.Int64
	ordersRejected  atomic.Int64
	tradesExecuted  atomic.Int64

	orders        *prometheus.CounterVec
	trades        prometheus.Counter
	tradedVolume  prometheus.Counter
	cancels       *prometheus.CounterVec
	flushes       prometheus.Counter
	submitLatency prometheus.Histogram

	latencies    []time.Duration
	latenciesMu  sync.RWMutex
	maxLatencies int
}

func NewRecorder(maxLatencies int) *Recorder {
	if maxLatencies <= 0 {
		maxLatencies = 10000
	}
	r := &Recorder{
		Registry:     prometheus.NewRegistry(),
		startTime:    time.Now(),
		latencies:    make([]time.Duration, 0, maxLatencies),
		maxLatencies: maxLatencies,
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Submitted orders by outcome.",
		}, []string{"symbol", "outcome"}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Fills emitted by the matching engine.",
		}),
		tradedVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_quantity_total",
			Help:      "Quantity exchanged across all fills.",
		}),
		cancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancels_total",
			Help:      "Cancel requests by result.",
		}, []string{"symbol", "result"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Order book resets.",
		}),
		submitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_latency_seconds",
			Help:      "Time spent matching and resting one order.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
	r.Registry.MustRegister(r.orders, r.trades, r.tradedVolume, r.cancels, r.flushes, r.submitLatency)
	return r
}

// ObserveSubmit records one submission. outcome is one of the handler's
// order statuses; fills and quantity describe what traded.
func (r *Recorder) ObserveSubmit(symbol, outcome string, fills int, quantity int64, latency time.Duration) {
	r.ordersReceived.Add(1)
	r.orders.WithLabelValues(symbol, outcome).Inc()
	r.submitLatency.Observe(latency.Seconds())
	r.recordLatency(latency)

	if fills > 0 {
		r.ordersMatched.Add(1)
		r.tradesExecuted.Add(int64(fills))
		r.trades.Add(float64(fills))
		r.tradedVolume.Add(float64(quantity))
	}
}

func (r *Recorder) ObserveRejected(symbol string) {
	r.ordersReceived.Add(1)
	r.ordersRejected.Add(1)
	r.orders.WithLabelValues(symbol, "REJECTED").Inc()
}

func (r *Recorder) ObserveCancel(symbol string, ok bool) {
	result := "not_found"
	if ok {
		result = "cancelled"
		r.ordersCancelled.Add(1)
	}
	r.cancels.WithLabelValues(symbol, result).Inc()
}

func (r *Recorder) ObserveFlush() {
	r.flushes.Inc()
}

type Snapshot struct {
	OrdersReceived  int64
	OrdersMatched   int64
	OrdersCancelled int64
	OrdersRejected  int64
	TradesExecuted  int64
	LatencyP50Ms    float64
	LatencyP99Ms    float64
	LatencyP999Ms   float64
	Throughput      float64
	Uptime          time.Duration
}

func (r *Recorder) Snapshot() Snapshot {
	p50, p99, p999 := r.latencyPercentiles()
	uptime := time.Since(r.startTime)
	received := r.ordersReceived.Load()

	var throughput float64
	if uptime > 0 {
		throughput = float64(received) / uptime.Seconds()
	}

	return Snapshot{
		OrdersReceived:  received,
		OrdersMatched:   r.ordersMatched.Load(),
		OrdersCancelled: r.ordersCancelled.Load(),
		OrdersRejected:  r.ordersRejected.Load(),
		TradesExecuted:  r.tradesExecuted.Load(),
		LatencyP50Ms:    p50,
		LatencyP99Ms:    p99,
		LatencyP999Ms:   p999,
		Throughput:      throughput,
		Uptime:          uptime,
	}
}

func (r *Recorder) recordLatency(latency time.Duration) {
	r.latenciesMu.Lock()
	defer r.latenciesMu.Unlock()

	r.latencies = append(r.latencies, latency)

	// edge case: maintain rolling window by removing oldest measurements
	if len(r.latencies) > r.maxLatencies {
		r.latencies = r.latencies[len(r.latencies)-r.maxLatencies:]
	}
}

func (r *Recorder) latencyPercentiles() (p50, p99, p999 float64) {
	r.latenciesMu.RLock()
	sorted := make([]time.Duration, len(r.latencies))
	copy(sorted, r.latencies)
	r.latenciesMu.RUnlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(q float64) float64 {
		idx := min(int(float64(len(sorted))*q), len(sorted)-1)
		return float64(sorted[idx].Nanoseconds()) / 1e6
	}
	return at(0.50), at(0.99), at(0.999)
}
