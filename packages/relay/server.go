// Package relay serves the push and poll endpoints in front of a capture cache.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/hookrelay/packages/cache"
	"github.com/abdul-hamid-achik/hookrelay/packages/journal"
	"github.com/abdul-hamid-achik/hookrelay/packages/snapshot"
	"github.com/abdul-hamid-achik/hookrelay/packages/stats"
)

const (
	// DefaultAddr is the listen address used when none is given
	DefaultAddr = "127.0.0.1:8080"
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
)

// Server is the relay HTTP server
type Server struct {
	addr            string
	cache           *cache.Cache
	builder         *snapshot.Builder
	logger          zerolog.Logger
	metrics         *stats.Metrics
	journal         *journal.Journal
	limiter         *ipLimiter
	shutdownTimeout time.Duration

	handler http.Handler
}

// Option is a functional option for Server
type Option func(*Server)

// WithAddr sets the listen address
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithCache sets the capture cache. The server installs its own eviction handler on it.
func WithCache(c *cache.Cache) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// WithBuilder sets the snapshot builder
func WithBuilder(b *snapshot.Builder) Option {
	return func(s *Server) {
		s.builder = b
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *stats.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithJournal enables the event journal
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithRateLimit limits pushes per client address. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.limiter.set(rps, burst)
	}
}

// WithShutdownTimeout bounds how long in-flight requests get on shutdown
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer creates a relay server
func NewServer(opts ...Option) *Server {
	s := &Server{
		addr:            DefaultAddr,
		logger:          zerolog.Nop(),
		limiter:         newIPLimiter(0, 0),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cache == nil {
		s.cache = cache.New()
	}
	if s.builder == nil {
		s.builder = snapshot.NewBuilder(snapshot.WithLogger(s.logger))
	}
	if s.metrics == nil {
		s.metrics = stats.NewMetrics()
	}
	s.cache.SetEvictionHandler(s.handleEviction)
	s.handler = s.routes()

	return s
}

// Handler returns the HTTP handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Cache returns the capture cache
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// Metrics returns the metrics collector
func (s *Server) Metrics() *stats.Metrics {
	return s.metrics
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.addr
}

// SetRateLimit changes the push rate limit of a running server
func (s *Server) SetRateLimit(rps float64, burst int) {
	s.limiter.set(rps, burst)
	s.logger.Info().Float64("rps", rps).Int("burst", burst).Msg("rate limit updated")
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Int("capacity", s.cache.Capacity()).
			Dur("ttl", s.cache.TTL()).
			Msg("relay listening")
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Dur("timeout", s.shutdownTimeout).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleEviction(ev cache.Eviction) {
	s.metrics.RecordEviction(string(ev.Reason))
	s.logger.Debug().
		Str("key", ev.Key).
		Int("snapshots", ev.Count).
		Str("reason", string(ev.Reason)).
		Msg("dropped unread snapshots")

	kind := journal.KindEvict
	if ev.Reason == cache.ReasonExpired {
		kind = journal.KindExpire
	}
	s.record(context.Background(), journal.Event{Kind: kind, Key: ev.Key, Count: ev.Count})
}

func (s *Server) record(ctx context.Context, ev journal.Event) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("key", ev.Key).Msg("journal write failed")
	}
}

func (s *Server) updateOccupancy() {
	st := s.cache.Stats()
	s.metrics.SetOccupancy(st.Keys, st.Snapshots)
}
