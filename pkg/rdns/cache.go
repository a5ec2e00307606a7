package rdns

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
)

type CacheEntry struct {
	Key       string
	Name      string
	ExpiresAt time.Time
}

func (entry *CacheEntry) Less(other btree.Item) bool {
	otherEntry, ok := other.(*CacheEntry)
	if !ok {
		panic("other is not a CacheEntry")
	}
	return strings.Compare(entry.Key, otherEntry.Key) < 0
}

type LookupStats struct {
	IP         string
	CacheHit   bool
	HasError   bool
	DurationMs float64
}

type RequestLoggerHook func(ctx context.Context, stats LookupStats)

// LookupAddrFunc has the signature of (*net.Resolver).LookupAddr.
type LookupAddrFunc func(ctx context.Context, addr string) ([]string, error)

// Cache resolves responder addresses to host names for the per-probe line.
// Failed lookups are cached as well and resolve to the address itself.
type Cache struct {
	// Lookup defaults to net.DefaultResolver.LookupAddr
	Lookup LookupAddrFunc
	// Clock defaults to time.Now
	Clock func() time.Time

	maxExpireTime time.Duration
	hook          RequestLoggerHook

	mu    sync.Mutex
	store *btree.BTree
}

func NewCache(maxExpireTime time.Duration, hook RequestLoggerHook) *Cache {
	return &Cache{
		maxExpireTime: maxExpireTime,
		store:         btree.New(2),
		hook:          hook,
	}
}

func (c *Cache) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c *Cache) lookup(ctx context.Context, addr string) ([]string, error) {
	if c.Lookup != nil {
		return c.Lookup(ctx, addr)
	}
	return net.DefaultResolver.LookupAddr(ctx, addr)
}

func (c *Cache) getCache(ip string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.store.Get(&CacheEntry{Key: ip})
	if item == nil {
		return "", false
	}
	cacheEntry, ok := item.(*CacheEntry)
	if !ok {
		panic("item is not a *CacheEntry")
	}
	if !cacheEntry.ExpiresAt.After(c.now()) {
		c.store.Delete(cacheEntry)
		return "", false
	}
	return cacheEntry.Name, true
}

func (c *Cache) updateCache(ip, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.ReplaceOrInsert(&CacheEntry{
		Key:       ip,
		Name:      name,
		ExpiresAt: c.now().Add(c.maxExpireTime),
	})
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Name returns the first PTR name of ip without its trailing dot, or the
// textual address when there is none.
func (c *Cache) Name(ctx context.Context, ip net.IP) string {
	key := ip.String()

	startedAt := c.now()
	stats := LookupStats{IP: key}
	defer func() {
		stats.DurationMs = float64(c.now().Sub(startedAt).Milliseconds())
		if c.hook != nil {
			c.hook(ctx, stats)
		}
	}()

	if name, ok := c.getCache(key); ok {
		stats.CacheHit = true
		return name
	}

	name := key
	names, err := c.lookup(ctx, key)
	if err != nil || len(names) == 0 {
		stats.HasError = err != nil
	} else if trimmed := strings.TrimSuffix(names[0], "."); trimmed != "" {
		name = trimmed
	}
	c.updateCache(key, name)
	return name
}
