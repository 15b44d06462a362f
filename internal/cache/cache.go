// Package cache keeps recent scrape results per (source, criteria, feeds) and
// the set of posting fingerprints already observed.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"jobmate/job-ingest/internal/model"
)

const DefaultTTL = 30 * time.Minute

type entry struct {
	storedAt time.Time
	postings []model.Posting
}

// ResultCache is safe for concurrent use.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   func() time.Time
	entries map[string]entry
	seen    seenSet
}

// Options configures a ResultCache. Zero values select the defaults.
type Options struct {
	TTL time.Duration
	// SeenCapacity bounds the fingerprint set with LRU eviction. Zero keeps
	// every fingerprint for the lifetime of the cache.
	SeenCapacity int
	Clock        func() time.Time
}

// New builds a ResultCache.
func New(opts Options) (*ResultCache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	var seen seenSet = mapSet{}
	if opts.SeenCapacity > 0 {
		l, err := lru.New[string, struct{}](opts.SeenCapacity)
		if err != nil {
			return nil, err
		}
		seen = lruSet{l}
	}

	return &ResultCache{
		ttl:     opts.TTL,
		clock:   opts.Clock,
		entries: make(map[string]entry),
		seen:    seen,
	}, nil
}

// Key builds the cache key for a source, its criteria and the feeds scraped.
// Feed order does not matter.
func Key(src model.Source, criteria model.ScrapeCriteria, feeds []string) string {
	sorted := slices.Clone(feeds)
	slices.Sort(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return string(src) + ":" + criteria.Hash() + ":" + hex.EncodeToString(sum[:8])
}

// Get returns the cached postings, or false when absent or expired.
// Expired entries are removed.
func (c *ResultCache) Get(src model.Source, criteria model.ScrapeCriteria, feeds []string) ([]model.Posting, bool) {
	key := Key(src, criteria, feeds)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		return nil, false
	}
	out := make([]model.Posting, len(e.postings))
	copy(out, e.postings)
	return out, true
}

// Set stores postings, replacing any previous entry.
func (c *ResultCache) Set(src model.Source, criteria model.ScrapeCriteria, feeds []string, postings []model.Posting) {
	stored := make([]model.Posting, len(postings))
	copy(stored, postings)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(src, criteria, feeds)] = entry{storedAt: c.clock(), postings: stored}
}

// IsNew reports whether the posting's fingerprint has not been seen yet.
func (c *ResultCache) IsNew(p model.Posting) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.seen.contains(p.Fingerprint())
}

// MarkSeen records the posting's fingerprint.
func (c *ResultCache) MarkSeen(p model.Posting) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen.add(p.Fingerprint())
}

// MarkSeenIfNew records the posting's fingerprint and reports whether it was
// unseen. Of several concurrent callers with the same posting exactly one
// gets true.
func (c *ResultCache) MarkSeenIfNew(p model.Posting) bool {
	fp := p.Fingerprint()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen.contains(fp) {
		return false
	}
	c.seen.add(fp)
	return true
}

// Clear drops all entries and fingerprints.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.seen.purge()
}

// CleanupExpired removes stale entries and returns how many were removed.
// Fingerprints are not touched.
func (c *ResultCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SeenCount returns the number of remembered fingerprints.
func (c *ResultCache) SeenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen.len()
}

func (c *ResultCache) expired(e entry) bool {
	return c.clock().Sub(e.storedAt) >= c.ttl
}

type seenSet interface {
	contains(fp string) bool
	add(fp string)
	purge()
	len() int
}

type mapSet map[string]struct{}

func (s mapSet) contains(fp string) bool { _, ok := s[fp]; return ok }
func (s mapSet) add(fp string)           { s[fp] = struct{}{} }
func (s mapSet) purge()                  { clear(s) }
func (s mapSet) len() int                { return len(s) }

type lruSet struct {
	l *lru.Cache[string, struct{}]
}

func (s lruSet) contains(fp string) bool { return s.l.Contains(fp) }
func (s lruSet) add(fp string)           { s.l.Add(fp, struct{}{}) }
func (s lruSet) purge()                  { s.l.Purge() }
func (s lruSet) len() int                { return s.l.Len() }
