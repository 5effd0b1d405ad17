// Package cache implements the two cache tiers backing the indexing engine:
// a bounded in-memory LRU tier with per-category TTL policy, and a
// persistent on-disk fragment cache keyed by content hash.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"codegraph/internal/logging"
)

// Category classifies a cache entry for policy lookup.
type Category string

const (
	CategoryFile         Category = "file"
	CategoryFunction     Category = "function"
	CategoryClass        Category = "class"
	CategoryImport       Category = "import"
	CategoryFragment     Category = "fragment"
	CategorySearchResult Category = "search-result"
)

// Policy is the admission and expiration policy for one category.
type Policy struct {
	// MaxEntryBytes rejects any single entry larger than this.
	MaxEntryBytes int64
	// TTL is the entry lifetime.
	TTL time.Duration
	// RefreshOnAccess measures TTL from last access instead of creation.
	RefreshOnAccess bool
}

// MemoryConfig configures the in-memory tier.
type MemoryConfig struct {
	// MaxBytes bounds the total payload size held by the tier.
	MaxBytes int64
	// SweepInterval is the background expiration sweep period.
	SweepInterval time.Duration
	// Policies maps category to policy; categories without an entry use
	// DefaultPolicy.
	Policies map[Category]Policy
	// DefaultPolicy applies to unknown categories.
	DefaultPolicy Policy
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hitRate"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	BytesUsed   int64   `json:"bytesUsed"`
	Entries     int     `json:"entries"`
}

type memEntry struct {
	key            string
	value          []byte
	size           int64
	category       Category
	createdAt      time.Time
	lastAccessedAt time.Time
	ttl            time.Duration
	refresh        bool
}

// Memory is a bounded, thread-safe in-process cache. A single mutex covers
// the entry map and the eviction bookkeeping so a put that evicts cannot
// race a concurrent get.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	// lru orders entries by last access, most recent at front. Entries that
	// were never read keep insertion order, so eviction from the back
	// removes the oldest-accessed entry with insertion order as tie-break.
	lru       *list.List
	bytesUsed int64

	maxBytes      int64
	policies      map[Category]Policy
	defaultPolicy Policy

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	sweepInterval time.Duration
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	logger        *logging.Logger

	// now is swappable for expiration tests.
	now func() time.Time
}

// NewMemory creates an in-memory cache. Call Start to run the background
// expiration sweep and Stop on shutdown.
func NewMemory(cfg MemoryConfig, logger *logging.Logger) *Memory {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 100 * 1024 * 1024
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.DefaultPolicy.MaxEntryBytes <= 0 {
		cfg.DefaultPolicy = Policy{MaxEntryBytes: 1024 * 1024, TTL: 24 * time.Hour}
	}
	return &Memory{
		entries:       make(map[string]*list.Element),
		lru:           list.New(),
		maxBytes:      cfg.MaxBytes,
		policies:      cfg.Policies,
		defaultPolicy: cfg.DefaultPolicy,
		sweepInterval: cfg.SweepInterval,
		logger:        logger.WithComponent("memcache"),
		now:           time.Now,
	}
}

// Key builds the canonical cache key from a content hash and a category.
func Key(hash string, category Category) string {
	return string(category) + ":" + hash
}

func (m *Memory) policyFor(category Category) Policy {
	if p, ok := m.policies[category]; ok {
		return p
	}
	return m.defaultPolicy
}

func (m *Memory) expired(e *memEntry, now time.Time) bool {
	ref := e.createdAt
	if e.refresh {
		ref = e.lastAccessedAt
	}
	return now.Sub(ref) > e.ttl
}

// Get returns the cached value for key, or (nil, false) on miss. The
// returned slice is shared; callers must not modify it.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, false
	}

	e := el.Value.(*memEntry)
	now := m.now()
	if m.expired(e, now) {
		m.removeLocked(el)
		m.expirations++
		m.misses++
		return nil, false
	}

	e.lastAccessedAt = now
	m.lru.MoveToFront(el)
	m.hits++
	return e.value, true
}

// Put stores value under key with the category's policy. Oversized entries
// are rejected outright and false is returned; eviction makes room for
// everything else.
func (m *Memory) Put(key string, value []byte, category Category) bool {
	policy := m.policyFor(category)
	size := int64(len(value))
	if size > policy.MaxEntryBytes || size > m.maxBytes {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Replace an existing entry under the same key.
	if el, ok := m.entries[key]; ok {
		m.removeLocked(el)
	}

	// Evict least-recently-used entries until the new entry fits. The entry
	// being inserted is not yet in the list, so it can never evict itself.
	for m.bytesUsed+size > m.maxBytes {
		back := m.lru.Back()
		if back == nil {
			break
		}
		m.removeLocked(back)
		m.evictions++
	}

	now := m.now()
	e := &memEntry{
		key:            key,
		value:          value,
		size:           size,
		category:       category,
		createdAt:      now,
		lastAccessedAt: now,
		ttl:            policy.TTL,
		refresh:        policy.RefreshOnAccess,
	}
	m.entries[key] = m.lru.PushFront(e)
	m.bytesUsed += size
	return true
}

// Delete removes a single entry if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		m.removeLocked(el)
	}
}

// InvalidateCategory drops every entry of the given category, e.g. cached
// search results after a graph commit.
func (m *Memory) InvalidateCategory(category Category) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var victims []*list.Element
	for el := m.lru.Front(); el != nil; el = el.Next() {
		if el.Value.(*memEntry).category == category {
			victims = append(victims, el)
		}
	}
	for _, el := range victims {
		m.removeLocked(el)
	}
	return len(victims)
}

// removeLocked unlinks an entry; callers hold m.mu.
func (m *Memory) removeLocked(el *list.Element) {
	e := el.Value.(*memEntry)
	m.lru.Remove(el)
	delete(m.entries, e.key)
	m.bytesUsed -= e.size
}

// Sweep removes every expired entry and returns the number removed. The
// background loop calls this on a fixed interval; it is also safe to call
// directly.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var victims []*list.Element
	for el := m.lru.Front(); el != nil; el = el.Next() {
		if m.expired(el.Value.(*memEntry), now) {
			victims = append(victims, el)
		}
	}
	for _, el := range victims {
		m.removeLocked(el)
		m.expirations++
	}
	return len(victims)
}

// Start launches the background expiration sweep.
func (m *Memory) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					m.logger.Debug("Swept expired cache entries", logging.Fields{
						"removed": n,
					})
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the background sweep and waits for it to exit.
func (m *Memory) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
		m.cancel = nil
	}
}

// Stats returns a snapshot of the cache counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Hits:        m.hits,
		Misses:      m.misses,
		Evictions:   m.evictions,
		Expirations: m.expirations,
		BytesUsed:   m.bytesUsed,
		Entries:     len(m.entries),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
