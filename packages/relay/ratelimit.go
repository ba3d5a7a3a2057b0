package relay

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Idle limiter entries older than this are dropped
const limiterIdleTTL = time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter holds one token bucket per client address
type ipLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	clients     map[string]*clientLimiter
	lastCleanup time.Time
	now         func() time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	l := &ipLimiter{
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
	l.set(rps, burst)
	return l
}

// set changes the limit for every client. rps <= 0 disables limiting.
func (l *ipLimiter) set(rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rps <= 0 {
		l.limit = rate.Inf
	} else {
		l.limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = max(1, int(rps*2))
	}
	l.burst = burst

	for _, c := range l.clients {
		c.limiter.SetLimit(l.limit)
		c.limiter.SetBurst(l.burst)
	}
}

func (l *ipLimiter) enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit != rate.Inf
}

// allow reports whether ip may make another request now
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	now := l.now()
	if l.limit == rate.Inf {
		l.mu.Unlock()
		return true
	}

	if now.Sub(l.lastCleanup) > limiterIdleTTL {
		for addr, c := range l.clients {
			if now.Sub(c.lastSeen) > limiterIdleTTL {
				delete(l.clients, addr)
			}
		}
		l.lastCleanup = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
