package snapshot

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes bounds how much of a payload is captured
const DefaultMaxBodyBytes = 10 << 20

// HeaderValueSeparator joins repeated header values, in arrival order
const HeaderValueSeparator = ", "

// Builder converts inbound requests into snapshots
type Builder struct {
	maxBodyBytes int64
	trustProxy   bool
	now          func() time.Time
	logger       zerolog.Logger
}

// BuilderOption is a functional option for Builder
type BuilderOption func(*Builder)

// WithMaxBodyBytes sets the largest payload that is captured. Larger payloads
// are dropped to an empty body.
func WithMaxBodyBytes(n int64) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxBodyBytes = n
		}
	}
}

// WithTrustProxyHeaders makes the builder take the client address from
// X-Forwarded-For / X-Real-IP when present
func WithTrustProxyHeaders(trust bool) BuilderOption {
	return func(b *Builder) {
		b.trustProxy = trust
	}
}

// WithClock sets the clock used for capture timestamps
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger used for decode warnings
func WithLogger(logger zerolog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a snapshot builder
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		maxBodyBytes: DefaultMaxBodyBytes,
		now:          time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build captures r under key. It never fails: undecodable parts of the
// request degrade to placeholders and a warning is logged.
func (b *Builder) Build(r *http.Request, key string) Snapshot {
	return Snapshot{
		HTTPVersion: r.Proto,
		Method:      r.Method,
		Headers:     b.headers(r),
		QueryString: r.URL.RawQuery,
		Path:        key,
		Body:        b.body(r),
		Time:        MillisSinceEpoch(b.now()),
		IP:          b.ClientIP(r),
	}
}

func (b *Builder) headers(r *http.Request) map[string]string {
	result := make(map[string]string, len(r.Header)+1)
	if r.Host != "" {
		result["host"] = r.Host
	}
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		value := strings.Join(values, HeaderValueSeparator)
		if !utf8.ValidString(value) {
			b.logger.Warn().Str("header", name).Msg("dropping header with non UTF-8 value")
			continue
		}
		result[lowerASCII(name)] = value
	}
	return result
}

func (b *Builder) body(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, b.maxBodyBytes+1))
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to read request payload")
		return ""
	}
	if int64(len(data)) > b.maxBodyBytes {
		b.logger.Warn().Int64("limit", b.maxBodyBytes).Msg("request payload exceeds capture limit, storing empty body")
		return ""
	}

	body, ok := DecodeBody(data)
	if !ok {
		b.logger.Warn().Int("bytes", len(data)).Msg("request payload is not valid UTF-8, storing empty body")
	}
	return body
}

// ClientIP returns the address recorded as a snapshot's ip
func (b *Builder) ClientIP(r *http.Request) string {
	if b.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	if r.RemoteAddr == "" {
		return UnknownIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	if host == "" {
		return UnknownIP
	}
	return host
}
