// Package api holds the JSON bodies exchanged between the relay and its
// clients. It carries no server dependencies so clients can import it.
package api

import "github.com/abdul-hamid-achik/hookrelay/packages/cache"

// Message is the JSON body of every error response
type Message struct {
	Msg string `json:"msg"`
}

// StatsResponse is served at /_stats
type StatsResponse struct {
	Cache   cache.Stats `json:"cache"`
	Metrics Summary     `json:"metrics"`
}

// Summary is the JSON view of the relay's traffic counters
type Summary struct {
	Uptime      string    `json:"uptime"`
	Pushes      int64     `json:"pushes"`
	PollHits    int64     `json:"poll_hits"`
	PollMisses  int64     `json:"poll_misses"`
	Evictions   int64     `json:"evictions"`
	Expirations int64     `json:"expirations"`
	RateLimited int64     `json:"rate_limited"`
	LastPushAt  int64     `json:"last_push_at,omitempty"`
	Latency     Quantiles `json:"latency_us"`
	BodySize    Quantiles `json:"body_bytes"`
}

// Quantiles summarises a histogram
type Quantiles struct {
	Count int64   `json:"count"`
	P50   int64   `json:"p50"`
	P95   int64   `json:"p95"`
	P99   int64   `json:"p99"`
	Max   int64   `json:"max"`
	Mean  float64 `json:"mean"`
}
