package client

import (
	"context"
	"errors"
	"go/parser"
	"go/token"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hookrelay/packages/relay"
)

func newRelay(t *testing.T, opts ...relay.Option) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(relay.NewServer(opts...).Handler())
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL + "/")
	require.NoError(t, err)
	return c, server
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8080", "ftp://relay", "http://"} {
		_, err := NewClient(u)
		assert.Error(t, err, u)
	}
}

func TestClient_PushPoll(t *testing.T) {
	c, _ := newRelay(t)
	ctx := context.Background()

	snap, err := c.Push(ctx, PushRequest{
		Key:     "orders",
		Body:    `{"id":1}`,
		Headers: map[string]string{"Content-Type": "application/json", "X-Trace": "t1"},
		Query:   "?a=b",
	})
	require.NoError(t, err)
	assert.Equal(t, "POST", snap.Method)
	assert.Equal(t, "/orders", snap.Path)
	assert.Equal(t, "a=b", snap.QueryString)
	assert.Equal(t, "application/json", snap.Headers["content-type"])
	assert.Equal(t, "t1", snap.Headers["x-trace"])

	_, err = c.Push(ctx, PushRequest{Key: "/orders", Method: http.MethodPatch, Body: "second"})
	require.NoError(t, err)

	snaps, ok, err := c.Poll(ctx, "orders")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, snaps, 2)
	assert.Equal(t, `{"id":1}`, snaps[0].Body)
	assert.Equal(t, "PATCH", snaps[1].Method)

	_, ok, err = c.Poll(ctx, "orders")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_PushDefaultMethod(t *testing.T) {
	c, _ := newRelay(t)

	snap, err := c.Push(context.Background(), PushRequest{Key: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "GET", snap.Method)
	assert.Equal(t, "", snap.Body)
}

func TestClient_PushRateLimited(t *testing.T) {
	c, _ := newRelay(t, relay.WithRateLimit(1, 1))
	ctx := context.Background()

	_, err := c.Push(ctx, PushRequest{Key: "k"})
	require.NoError(t, err)
	_, err = c.Push(ctx, PushRequest{Key: "k"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestClient_WaitPoll(t *testing.T) {
	c, _ := newRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = c.Push(context.Background(), PushRequest{Key: "late", Body: "hi"})
	}()

	snaps, err := c.WaitPoll(ctx, "late", 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "hi", snaps[0].Body)
}

func TestClient_WaitPollTimeout(t *testing.T) {
	c, _ := newRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.WaitPoll(ctx, "never", 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "/never")
}

func TestClient_Stats(t *testing.T) {
	c, _ := newRelay(t)
	ctx := context.Background()

	_, err := c.Push(ctx, PushRequest{Key: "a", Body: "x"})
	require.NoError(t, err)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Cache.Keys)
	assert.EqualValues(t, 1, st.Metrics.Pushes)

	assert.NoError(t, c.Health(ctx))
}

func TestClient_Unreachable(t *testing.T) {
	_, server := newRelay(t)
	c, err := NewClient(server.URL, WithTimeout(time.Second))
	require.NoError(t, err)
	server.Close()

	_, _, err = c.Poll(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"msg":"internal server error"}`))
	}))
	defer server.Close()

	c, err := NewClient(server.URL, WithDefaultHeader("Authorization", "token"))
	require.NoError(t, err)

	_, _, err = c.Poll(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500 Internal Server Error: internal server error")
}

func TestResponse_Message(t *testing.T) {
	r := &Response{StatusCode: 404, Status: "404 Not Found", Body: []byte(`{"msg":"gone"}`)}
	assert.Equal(t, "gone", r.Message())
	assert.False(t, r.IsSuccess())

	r = &Response{StatusCode: 502, Status: "502 Bad Gateway", Body: []byte(" upstream \n")}
	assert.Equal(t, "upstream", r.Message())
	assert.EqualError(t, r.Error(), "relay returned 502 Bad Gateway: upstream")

	r = &Response{Status: "204 No Content", Headers: map[string]string{"X-Request-Id": "1"}}
	assert.EqualError(t, r.Error(), "relay returned 204 No Content")
	assert.Equal(t, "1", r.Header("x-request-id"))
}

func TestClient_KeyWithReservedCharacters(t *testing.T) {
	c, _ := newRelay(t)
	ctx := context.Background()

	for _, key := range []string{"a?b", "orders/#7", "with space", "100%"} {
		t.Run(key, func(t *testing.T) {
			snap, err := c.Push(ctx, PushRequest{Key: key, Body: "x", Query: "q=1"})
			require.NoError(t, err)
			assert.Equal(t, "/"+key, snap.Path)
			assert.Equal(t, "q=1", snap.QueryString)

			snaps, ok, err := c.Poll(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			require.Len(t, snaps, 1)
			assert.Equal(t, "/"+key, snaps[0].Path)
		})
	}

	_, ok, err := c.Poll(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_ImportsNoServerPackages(t *testing.T) {
	entries, err := os.ReadDir(".")
	require.NoError(t, err)

	fset := token.NewFileSet()
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		require.NoError(t, err)

		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			for _, heavy := range []string{"/packages/relay", "/packages/stats", "/packages/journal", "prometheus", "sqlite"} {
				assert.NotContains(t, path, heavy, name)
			}
		}
	}
}
