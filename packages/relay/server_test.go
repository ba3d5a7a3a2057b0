package relay

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hookrelay/packages/api"
	"github.com/abdul-hamid-achik/hookrelay/packages/cache"
	"github.com/abdul-hamid-achik/hookrelay/packages/journal"
	"github.com/abdul-hamid-achik/hookrelay/packages/snapshot"
)

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPushPoll_Get(t *testing.T) {
	s := NewServer()
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/push/push_get?a=b&c=d", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	echoed := decode[snapshot.Snapshot](t, rec)
	assert.Equal(t, "GET", echoed.Method)
	assert.Equal(t, "/push_get", echoed.Path)
	assert.Equal(t, "a=b&c=d", echoed.QueryString)
	assert.Equal(t, "", echoed.Body)
	assert.Equal(t, "HTTP/1.1", echoed.HTTPVersion)
	assert.Equal(t, "192.0.2.1", echoed.IP)

	rec = do(t, h, http.MethodGet, "/poll/push_get", "")
	require.Equal(t, http.StatusOK, rec.Code)
	polled := decode[[]snapshot.Snapshot](t, rec)
	require.Len(t, polled, 1)
	assert.Equal(t, echoed, polled[0])

	rec = do(t, h, http.MethodGet, "/poll/push_get", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPushPoll_PostOrder(t *testing.T) {
	h := NewServer().Handler()

	rec := do(t, h, http.MethodPost, "/push/push_post?a=b&c=d", "test payload")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test payload", decode[snapshot.Snapshot](t, rec).Body)

	rec = do(t, h, http.MethodPut, "/push/push_post?e=f&g=h", "test payload 1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/poll/push_post", "")
	require.Equal(t, http.StatusOK, rec.Code)
	polled := decode[[]snapshot.Snapshot](t, rec)
	require.Len(t, polled, 2)
	assert.Equal(t, "POST", polled[0].Method)
	assert.Equal(t, "test payload", polled[0].Body)
	assert.Equal(t, "a=b&c=d", polled[0].QueryString)
	assert.Equal(t, "PUT", polled[1].Method)
	assert.Equal(t, "test payload 1", polled[1].Body)
	assert.Equal(t, "e=f&g=h", polled[1].QueryString)
}

func TestPushPoll_NestedKey(t *testing.T) {
	h := NewServer().Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/push/foo/bar", "").Code)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/poll/foo", "").Code)
	rec := do(t, h, http.MethodGet, "/poll/foo/bar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/foo/bar", decode[[]snapshot.Snapshot](t, rec)[0].Path)
}

func TestPoll_Absent(t *testing.T) {
	h := NewServer().Handler()

	rec := do(t, h, http.MethodGet, "/poll/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	msg := decode[api.Message](t, rec)
	assert.Contains(t, msg.Msg, `"/nothing"`)
}

func TestNotFound(t *testing.T) {
	h := NewServer().Handler()

	tests := []struct {
		name   string
		method string
		target string
		path   string
	}{
		{"unknown route", http.MethodGet, "/elsewhere", "/elsewhere"},
		{"push without key", http.MethodPost, "/push", "/push"},
		{"poll without key", http.MethodGet, "/poll", "/poll"},
		{"poll with post", http.MethodPost, "/poll/foo", "/poll/foo"},
		{"prefix lookalike", http.MethodGet, "/pushy/foo", "/pushy/foo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, "")
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, NotFoundMessage(tt.path), decode[api.Message](t, rec))
		})
	}

	assert.Equal(t,
		`This is not the path you're looking for, path = "/x".`,
		NotFoundMessage("/x").Msg)
}

func TestPush_InvalidUTF8(t *testing.T) {
	h := NewServer().Handler()

	rec := do(t, h, http.MethodPost, "/push/bin", "\xff\xfe\xfd")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decode[snapshot.Snapshot](t, rec).Body)
}

func TestPush_RateLimited(t *testing.T) {
	s := NewServer(WithRateLimit(1, 1))
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/push/a", "1").Code)
	rec := do(t, h, http.MethodPost, "/push/a", "2")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// polls are not limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/poll/a", "").Code)
	assert.EqualValues(t, 1, s.Metrics().Summary().RateLimited)

	s.SetRateLimit(0, 0)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/push/a", "3").Code)
}

func TestHealthz(t *testing.T) {
	rec := do(t, NewServer().Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewServer().Handler()
	do(t, h, http.MethodPost, "/push/m", "hello")
	do(t, h, http.MethodGet, "/poll/m", "")
	do(t, h, http.MethodGet, "/poll/m", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "hookrelay_pushes_total 1")
	assert.Contains(t, body, `hookrelay_polls_total{result="hit"} 1`)
	assert.Contains(t, body, `hookrelay_polls_total{result="miss"} 1`)
	assert.Contains(t, body, "hookrelay_keys 0")
}

func TestStatsEndpoint(t *testing.T) {
	h := NewServer(WithCache(cache.New(cache.WithCapacity(5)))).Handler()
	do(t, h, http.MethodPost, "/push/s", "abc")
	do(t, h, http.MethodPost, "/push/s", "abcd")

	rec := do(t, h, http.MethodGet, "/_stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.StatsResponse](t, rec)
	assert.Equal(t, 1, resp.Cache.Keys)
	assert.Equal(t, 2, resp.Cache.Snapshots)
	assert.Equal(t, 5, resp.Cache.Capacity)
	assert.EqualValues(t, 2, resp.Metrics.Pushes)
	assert.EqualValues(t, 2, resp.Metrics.BodySize.Count)
	assert.NotZero(t, resp.Metrics.LastPushAt)
}

func TestRequestID(t *testing.T) {
	h := NewServer().Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRecoverer(t *testing.T) {
	s := NewServer()
	h := s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[api.Message](t, rec).Msg)
}

func TestEvictionJournal(t *testing.T) {
	j, err := journal.Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	s := NewServer(
		WithCache(cache.New(cache.WithCapacity(1))),
		WithJournal(j),
	)
	h := s.Handler()

	do(t, h, http.MethodPost, "/push/first", "x")
	do(t, h, http.MethodPost, "/push/second", "y")
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/poll/first", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/poll/second", "").Code)

	counts, err := j.CountByKind(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[journal.KindPush])
	assert.EqualValues(t, 1, counts[journal.KindEvict])
	assert.EqualValues(t, 1, counts[journal.KindMiss])
	assert.EqualValues(t, 1, counts[journal.KindPoll])

	events, err := j.Recent(context.Background(), "/first", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, journal.KindMiss, events[0].Kind)
	assert.Equal(t, journal.KindEvict, events[1].Kind)
	assert.Equal(t, 1, events[1].Count)

	assert.EqualValues(t, 1, s.Metrics().Summary().Evictions)
}

func TestExpiryMetrics(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := cache.New(cache.WithTTL(time.Second), cache.WithClock(func() time.Time { return now }))
	s := NewServer(WithCache(c))
	h := s.Handler()

	do(t, h, http.MethodPost, "/push/old", "x")
	now = now.Add(2 * time.Second)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/poll/old", "").Code)
	assert.EqualValues(t, 1, s.Metrics().Summary().Expirations)
}

func TestServe_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(WithShutdownTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Post(base+"/push/live", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenAndServe_BadAddr(t *testing.T) {
	s := NewServer(WithAddr("256.0.0.1:99999"))
	err := s.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
