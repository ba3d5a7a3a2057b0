package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordPush(10)
	m.RecordPush(20)
	m.RecordPoll(true)
	m.RecordPoll(false)
	m.RecordPoll(false)
	m.RecordEviction("capacity")
	m.RecordEviction("expired")
	m.RecordEviction("expired")
	m.RecordRateLimited()

	s := m.Summary()
	assert.Equal(t, int64(2), s.Pushes)
	assert.Equal(t, int64(1), s.PollHits)
	assert.Equal(t, int64(2), s.PollMisses)
	assert.Equal(t, int64(1), s.Evictions)
	assert.Equal(t, int64(2), s.Expirations)
	assert.Equal(t, int64(1), s.RateLimited)
	assert.NotZero(t, s.LastPushAt)
}

func TestMetricsBodySizePercentiles(t *testing.T) {
	m := NewMetrics()
	for i := 1; i <= 100; i++ {
		m.RecordPush(i * 100)
	}

	s := m.Summary()
	assert.Equal(t, int64(100), s.BodySize.Count)
	assert.True(t, s.BodySize.P50 > 0)
	assert.True(t, s.BodySize.P95 > s.BodySize.P50)
	assert.True(t, s.BodySize.P99 >= s.BodySize.P95)
	assert.True(t, s.BodySize.Max >= s.BodySize.P99)
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()
	m.RecordLatency(0)
	m.RecordLatency(2 * time.Millisecond)
	m.RecordLatency(2 * time.Hour)

	s := m.Summary()
	assert.Equal(t, int64(3), s.Latency.Count)
	assert.LessOrEqual(t, s.Latency.Max, int64(maxLatencyUs+maxLatencyUs/100))
}

func TestMetricsSummaryEmpty(t *testing.T) {
	s := NewMetrics().Summary()
	assert.Equal(t, int64(0), s.Pushes)
	assert.Equal(t, int64(0), s.LastPushAt)
	assert.Equal(t, int64(0), s.Latency.Count)
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordPush(5)
	m.RecordPoll(false)
	m.RecordEviction("capacity")
	m.SetOccupancy(3, 7)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "hookrelay_pushes_total 1")
	assert.Contains(t, text, `hookrelay_polls_total{result="miss"} 1`)
	assert.Contains(t, text, `hookrelay_polls_total{result="hit"} 0`)
	assert.Contains(t, text, `hookrelay_evictions_total{reason="capacity"} 1`)
	assert.Contains(t, text, "hookrelay_keys 3")
	assert.Contains(t, text, "hookrelay_buffered_snapshots 7")
}
