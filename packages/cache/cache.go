package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hookrelay/packages/snapshot"
)

const (
	// DefaultCapacity is the default maximum number of distinct keys
	DefaultCapacity = 1000
	// DefaultTTL is how long a key lives after its last push
	DefaultTTL = 15 * time.Minute
)

// Reason says why an entry left the cache without being polled
type Reason string

const (
	ReasonCapacity Reason = "capacity"
	ReasonExpired  Reason = "expired"
)

// Eviction describes an entry dropped with its snapshots unread
type Eviction struct {
	Key    string
	Count  int
	Reason Reason
}

// Stats is a point-in-time view of the cache
type Stats struct {
	Keys        int   `json:"keys"`
	Snapshots   int   `json:"snapshots"`
	Capacity    int   `json:"capacity"`
	TTLMillis   int64 `json:"ttl_ms"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

type entry struct {
	key       string
	snapshots []snapshot.Snapshot
	expiresAt time.Time
}

// Cache groups snapshots by key. It holds at most capacity keys, evicting the
// least recently pushed one when full, and treats a key as absent once ttl
// has passed since its last push.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front is most recently pushed
	buffered int

	capacity int
	ttl      time.Duration
	now      func() time.Time
	onEvict  func(Eviction)

	evictions   int64
	expirations int64
}

// Option is a functional option for Cache
type Option func(*Cache)

// WithCapacity sets the maximum number of distinct keys
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithTTL sets the sliding expiry applied on every push
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictionHandler registers fn to be told about entries dropped unread.
// fn runs after the cache lock is released.
func WithEvictionHandler(fn func(Eviction)) Option {
	return func(c *Cache) {
		c.onEvict = fn
	}
}

// New creates a cache
func New(opts ...Option) *Cache {
	c := &Cache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store appends s to the sequence for key and returns s. A missing or expired
// key starts a new sequence; when that would exceed capacity the least
// recently pushed key is evicted first.
func (c *Cache) Store(key string, s snapshot.Snapshot) snapshot.Snapshot {
	var dropped []Eviction

	c.mu.Lock()
	now := c.now()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		if now.Before(e.expiresAt) {
			e.snapshots = append(e.snapshots, s)
			e.expiresAt = now.Add(c.ttl)
			c.buffered++
			c.order.MoveToFront(el)
			c.mu.Unlock()
			return s
		}
		dropped = append(dropped, c.removeLocked(el, ReasonExpired))
	}

	dropped = append(dropped, c.sweepLocked(now)...)
	for len(c.items) >= c.capacity {
		dropped = append(dropped, c.removeLocked(c.order.Back(), ReasonCapacity))
	}

	c.items[key] = c.order.PushFront(&entry{
		key:       key,
		snapshots: []snapshot.Snapshot{s},
		expiresAt: now.Add(c.ttl),
	})
	c.buffered++
	c.mu.Unlock()

	c.notify(dropped)
	return s
}

// Retrieve removes key and returns everything pushed to it, oldest first.
// The bool is false when the key is unknown or expired.
func (c *Cache) Retrieve(key string) ([]snapshot.Snapshot, bool) {
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}

	e := el.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		ev := c.removeLocked(el, ReasonExpired)
		c.mu.Unlock()
		c.notify([]Eviction{ev})
		return nil, false
	}

	c.order.Remove(el)
	delete(c.items, key)
	c.buffered -= len(e.snapshots)
	c.mu.Unlock()

	return e.snapshots, true
}

// Len returns the number of keys held, including expired keys not yet purged
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns counters describing the cache
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Keys:        len(c.items),
		Snapshots:   c.buffered,
		Capacity:    c.capacity,
		TTLMillis:   c.ttl.Milliseconds(),
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// Capacity returns the configured key limit
func (c *Cache) Capacity() int {
	return c.capacity
}

// TTL returns the configured expiry
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// sweepLocked drops expired entries from the back of the recency list.
// Expiry is last push + ttl, so the list is also ordered by expiry.
func (c *Cache) sweepLocked(now time.Time) []Eviction {
	var dropped []Eviction
	for el := c.order.Back(); el != nil; el = c.order.Back() {
		if now.Before(el.Value.(*entry).expiresAt) {
			break
		}
		dropped = append(dropped, c.removeLocked(el, ReasonExpired))
	}
	return dropped
}

func (c *Cache) removeLocked(el *list.Element, reason Reason) Eviction {
	e := c.order.Remove(el).(*entry)
	delete(c.items, e.key)
	c.buffered -= len(e.snapshots)

	switch reason {
	case ReasonCapacity:
		c.evictions++
	case ReasonExpired:
		c.expirations++
	}
	return Eviction{Key: e.key, Count: len(e.snapshots), Reason: reason}
}

// SetEvictionHandler replaces the handler registered with WithEvictionHandler
func (c *Cache) SetEvictionHandler(fn func(Eviction)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

func (c *Cache) notify(dropped []Eviction) {
	if len(dropped) == 0 {
		return
	}
	c.mu.Lock()
	fn := c.onEvict
	c.mu.Unlock()
	if fn == nil {
		return
	}
	for _, ev := range dropped {
		fn(ev)
	}
}
