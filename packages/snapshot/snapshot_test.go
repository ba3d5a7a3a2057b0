package snapshot

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func TestBuild_GetWithQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/push/foo?a=b&c=d", nil)
	req.Header.Set("Accept", "application/json")

	s := NewBuilder(WithClock(fixedClock)).Build(req, "/foo")

	assert.Equal(t, "HTTP/1.1", s.HTTPVersion)
	assert.Equal(t, "GET", s.Method)
	assert.Equal(t, "a=b&c=d", s.QueryString)
	assert.Equal(t, "/foo", s.Path)
	assert.Equal(t, "", s.Body)
	assert.Equal(t, fixedTime.UnixMilli(), s.Time)
	assert.Equal(t, "192.0.2.1", s.IP)
	assert.Equal(t, "application/json", s.Headers["accept"])
	assert.Equal(t, "example.com", s.Headers["host"])
}

func TestBuild_PostBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/push/foo", strings.NewReader(`{"id":1}`))
	req.Header.Set("Content-Type", "application/json")

	s := NewBuilder().Build(req, "/foo")

	assert.Equal(t, "POST", s.Method)
	assert.Equal(t, `{"id":1}`, s.Body)
	v, ok := s.Header("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "application/json", v)
}

func TestBuild_InvalidUTF8Body(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/push/foo", bytes.NewReader([]byte{0xff, 0xfe, 0xfd}))

	s := NewBuilder().Build(req, "/foo")

	assert.Equal(t, "", s.Body)
	assert.Equal(t, "POST", s.Method)
	assert.Equal(t, "/foo", s.Path)
}

func TestBuild_BodyOverLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/push/foo", strings.NewReader("0123456789"))

	s := NewBuilder(WithMaxBodyBytes(4)).Build(req, "/foo")
	assert.Equal(t, "", s.Body)

	req = httptest.NewRequest(http.MethodPut, "/push/foo", strings.NewReader("0123"))
	s = NewBuilder(WithMaxBodyBytes(4)).Build(req, "/foo")
	assert.Equal(t, "0123", s.Body)
}

func TestBuild_RepeatedHeadersAreJoined(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/push/foo", nil)
	req.Header.Add("X-Tag", "one")
	req.Header.Add("X-Tag", "two")

	s := NewBuilder().Build(req, "/foo")

	assert.Equal(t, "one, two", s.Headers["x-tag"])
}

func TestBuild_InvalidHeaderValueIsOmitted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/push/foo", nil)
	req.Header["X-Broken"] = []string{string([]byte{0xc3, 0x28})}
	req.Header.Set("X-Fine", "yes")

	s := NewBuilder().Build(req, "/foo")

	_, ok := s.Headers["x-broken"]
	assert.False(t, ok)
	assert.Equal(t, "yes", s.Headers["x-fine"])
}

func TestBuild_ClientIP(t *testing.T) {
	t.Run("remote addr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/push/foo", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		assert.Equal(t, "10.1.2.3", NewBuilder().Build(req, "/foo").IP)
	})

	t.Run("missing remote addr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/push/foo", nil)
		req.RemoteAddr = ""
		assert.Equal(t, UnknownIP, NewBuilder().Build(req, "/foo").IP)
	})

	t.Run("forwarded ignored by default", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/push/foo", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		assert.Equal(t, "192.0.2.1", NewBuilder().Build(req, "/foo").IP)
	})

	t.Run("forwarded trusted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/push/foo", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		assert.Equal(t, "203.0.113.9", NewBuilder(WithTrustProxyHeaders(true)).Build(req, "/foo").IP)
	})
}

func TestSnapshot_JSONShape(t *testing.T) {
	s := Snapshot{
		HTTPVersion: "HTTP/1.1",
		Method:      "GET",
		Headers:     map[string]string{"accept": "*/*"},
		QueryString: "a=b",
		Path:        "/foo",
		Body:        "",
		Time:        1700000000123,
		IP:          "127.0.0.1",
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 8)
	for _, field := range []string{"http_version", "method", "headers", "query_string", "path", "body", "time", "ip"} {
		assert.Contains(t, raw, field)
	}
	assert.Equal(t, float64(1700000000123), raw["time"])
	assert.Equal(t, map[string]any{"accept": "*/*"}, raw["headers"])
}

func TestSnapshot_EmptyHeadersSerializeAsObject(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/push/foo", nil)
	req.Host = ""

	data, err := json.Marshal(NewBuilder().Build(req, "/foo"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"headers":{}`)
}

func TestDecodeBody(t *testing.T) {
	s, ok := DecodeBody(nil)
	assert.Equal(t, "", s)
	assert.True(t, ok)

	s, ok = DecodeBody([]byte("héllo"))
	assert.Equal(t, "héllo", s)
	assert.True(t, ok)

	s, ok = DecodeBody([]byte{0xff})
	assert.Equal(t, "", s)
	assert.False(t, ok)
}

func TestSnapshot_CapturedAt(t *testing.T) {
	s := Snapshot{Time: fixedTime.UnixMilli()}
	assert.True(t, s.CapturedAt().Equal(fixedTime))
}
