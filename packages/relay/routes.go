package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/abdul-hamid-achik/hookrelay/packages/api"
	"github.com/abdul-hamid-achik/hookrelay/packages/journal"
	"github.com/abdul-hamid-achik/hookrelay/packages/keys"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /_stats", s.handleStats)
	mux.HandleFunc("/", s.handleNotFound)

	// push and poll are dispatched before the mux so unclean paths are
	// captured as sent instead of redirected
	dispatch := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasPrefix(path, keys.PushPrefix+"/"):
			s.handlePush(w, r)
		case strings.HasPrefix(path, keys.PollPrefix+"/") && r.Method == http.MethodGet:
			s.handlePoll(w, r)
		default:
			mux.ServeHTTP(w, r)
		}
	})

	return s.recoverer(s.requestID(s.accessLog(dispatch)))
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	key := keys.Normalize(r.URL.Path)
	if !keys.Valid(key) {
		s.handleNotFound(w, r)
		return
	}

	if s.limiter.enabled() && !s.limiter.allow(s.builder.ClientIP(r)) {
		s.metrics.RecordRateLimited()
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, api.Message{Msg: "rate limit exceeded"})
		return
	}

	snap := s.cache.Store(key, s.builder.Build(r, key))
	s.metrics.RecordPush(len(snap.Body))
	s.updateOccupancy()
	s.record(r.Context(), journal.Event{Kind: journal.KindPush, Key: key, Count: 1, IP: snap.IP})

	logger(r).Debug().Str("key", key).Str("method", snap.Method).Msg("captured request")
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	key := keys.Normalize(r.URL.Path)
	if !keys.Valid(key) {
		s.handleNotFound(w, r)
		return
	}

	snaps, ok := s.cache.Retrieve(key)
	s.metrics.RecordPoll(ok)
	s.updateOccupancy()

	if !ok {
		s.record(r.Context(), journal.Event{Kind: journal.KindMiss, Key: key, IP: s.builder.ClientIP(r)})
		writeJSON(w, http.StatusNotFound, api.Message{
			Msg: fmt.Sprintf("No requests captured for key %q.", key),
		})
		return
	}

	s.record(r.Context(), journal.Event{Kind: journal.KindPoll, Key: key, Count: len(snaps), IP: s.builder.ClientIP(r)})
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.StatsResponse{
		Cache:   s.cache.Stats(),
		Metrics: s.metrics.Summary(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, NotFoundMessage(r.URL.Path))
}

// NotFoundMessage is the body returned for unknown routes
func NotFoundMessage(path string) api.Message {
	return api.Message{
		Msg: fmt.Sprintf("This is not the path you're looking for, path = \"%s\".", path),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
