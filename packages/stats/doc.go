// Package stats collects operational metrics for the relay.
//
// Counters and gauges are registered on a private Prometheus registry and
// exposed at /metrics. Handler latency and captured body sizes are also kept
// in HDR histograms so /_stats can report percentiles without a Prometheus
// server.
package stats
