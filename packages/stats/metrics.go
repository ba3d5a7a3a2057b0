package stats

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdul-hamid-achik/hookrelay/packages/api"
)

const namespace = "hookrelay"

const (
	// Latency histogram: 1us to 60s, 3 significant digits
	maxLatencyUs = 60_000_000
	// Body size histogram: 1 byte to 1 GiB
	maxBodyBytes = 1 << 30
)

// Poll outcomes
const (
	PollHit  = "hit"
	PollMiss = "miss"
)

// Metrics collects relay counters for Prometheus and percentile summaries
type Metrics struct {
	registry *prometheus.Registry

	pushes      prometheus.Counter
	polls       *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	rateLimited prometheus.Counter
	liveKeys    prometheus.Gauge
	buffered    prometheus.Gauge

	pushCount   atomic.Int64
	hitCount    atomic.Int64
	missCount   atomic.Int64
	evictCount  atomic.Int64
	expireCount atomic.Int64
	limitCount  atomic.Int64

	mu         sync.Mutex
	latency    *hdrhistogram.Histogram
	bodySizes  *hdrhistogram.Histogram
	startTime  time.Time
	lastPushAt time.Time
}

// NewMetrics creates a collector with its own Prometheus registry
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Total captured requests",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Total poll requests by result",
		}, []string{"result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Keys dropped with unread snapshots, by reason",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Push requests rejected by the rate limiter",
		}),
		liveKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys",
			Help:      "Keys currently held",
		}),
		buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_snapshots",
			Help:      "Snapshots waiting to be polled",
		}),
		latency:   hdrhistogram.New(1, maxLatencyUs, 3),
		bodySizes: hdrhistogram.New(1, maxBodyBytes, 3),
		startTime: time.Now(),
	}
	r.MustRegister(m.pushes, m.polls, m.evictions, m.rateLimited, m.liveKeys, m.buffered)
	m.polls.WithLabelValues(PollHit)
	m.polls.WithLabelValues(PollMiss)
	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPush records a captured request of bodyLen bytes
func (m *Metrics) RecordPush(bodyLen int) {
	m.pushes.Inc()
	m.pushCount.Add(1)

	size := clamp(int64(bodyLen), 0, maxBodyBytes)

	m.mu.Lock()
	_ = m.bodySizes.RecordValue(size)
	m.lastPushAt = time.Now()
	m.mu.Unlock()
}

// RecordPoll records a poll and whether it found anything
func (m *Metrics) RecordPoll(found bool) {
	if found {
		m.polls.WithLabelValues(PollHit).Inc()
		m.hitCount.Add(1)
		return
	}
	m.polls.WithLabelValues(PollMiss).Inc()
	m.missCount.Add(1)
}

// RecordEviction records a key dropped unread. reason is "capacity" or "expired".
func (m *Metrics) RecordEviction(reason string) {
	m.evictions.WithLabelValues(reason).Inc()
	if reason == "expired" {
		m.expireCount.Add(1)
		return
	}
	m.evictCount.Add(1)
}

// RecordRateLimited records a rejected push
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Inc()
	m.limitCount.Add(1)
}

// RecordLatency records handler latency
func (m *Metrics) RecordLatency(d time.Duration) {
	us := clamp(d.Microseconds(), 1, maxLatencyUs)

	m.mu.Lock()
	_ = m.latency.RecordValue(us)
	m.mu.Unlock()
}

// SetOccupancy updates the cache gauges
func (m *Metrics) SetOccupancy(keys, snapshots int) {
	m.liveKeys.Set(float64(keys))
	m.buffered.Set(float64(snapshots))
}

// Summary returns the current counters and percentiles
func (m *Metrics) Summary() api.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := api.Summary{
		Uptime:      time.Since(m.startTime).Round(time.Second).String(),
		Pushes:      m.pushCount.Load(),
		PollHits:    m.hitCount.Load(),
		PollMisses:  m.missCount.Load(),
		Evictions:   m.evictCount.Load(),
		Expirations: m.expireCount.Load(),
		RateLimited: m.limitCount.Load(),
		Latency:     quantiles(m.latency),
		BodySize:    quantiles(m.bodySizes),
	}
	if !m.lastPushAt.IsZero() {
		s.LastPushAt = m.lastPushAt.UnixMilli()
	}
	return s
}

func quantiles(h *hdrhistogram.Histogram) api.Quantiles {
	return api.Quantiles{
		Count: h.TotalCount(),
		P50:   h.ValueAtQuantile(50),
		P95:   h.ValueAtQuantile(95),
		P99:   h.ValueAtQuantile(99),
		Max:   h.Max(),
		Mean:  h.Mean(),
	}
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
