package pricefeed

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	quoteCacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "pricefeed_cache_hits_total"})
	quoteCacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "pricefeed_cache_miss_total"})
	quoteFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pricefeed_fallback_total"}, []string{"symbol", "source"})
)

func init() {
	prometheus.MustRegister(quoteCacheHits, quoteCacheMiss, quoteFallbacks)
}

// quoteCache keeps the last known live quote per symbol. Entries never
// expire; freshness is decided by the caller.
type quoteCache struct {
	mu    sync.RWMutex
	items map[string]Quote
}

func newQuoteCache() *quoteCache {
	return &quoteCache{items: make(map[string]Quote)}
}

func (c *quoteCache) Get(symbol string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.items[symbol]
	return q, ok
}

// Fresh reports a cached quote younger than ttl.
func (c *quoteCache) Fresh(symbol string, now time.Time, ttl time.Duration) (Quote, bool) {
	q, ok := c.Get(symbol)
	if !ok || ttl <= 0 || now.Sub(q.At) > ttl {
		quoteCacheMiss.Inc()
		return Quote{}, false
	}
	quoteCacheHits.Inc()
	return q, true
}

func (c *quoteCache) Set(q Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.items[q.Symbol]; ok && cur.At.After(q.At) {
		return
	}
	c.items[q.Symbol] = q
}
