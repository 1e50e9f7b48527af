package source

import (
	"container/list"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/model-output-consolidator/internal/observability"
)

// CachedDecoder wraps a Decoder with an in-memory LRU cache keyed by path, so
// a run selecting several variables parses each source file once. Concurrent
// requests for the same uncached file share one decode.
type CachedDecoder struct {
	inner   Decoder
	files   *lru[string, *File]
	flight  singleflight.Group
	metrics *observability.Metrics
}

// NewCachedDecoder creates a cache decorator around a decoder. A maxEntries of
// zero or less disables caching.
func NewCachedDecoder(inner Decoder, maxEntries int, metrics *observability.Metrics) *CachedDecoder {
	return &CachedDecoder{
		inner:   inner,
		files:   newLRU[string, *File](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedDecoder) Decode(path string) (*File, error) {
	if file, ok := c.files.get(path); ok {
		c.metrics.SourceCache.WithLabelValues("hit").Inc()
		return file, nil
	}
	c.metrics.SourceCache.WithLabelValues("miss").Inc()

	v, err, _ := c.flight.Do(path, func() (any, error) {
		if file, ok := c.files.get(path); ok {
			return file, nil
		}
		file, err := c.inner.Decode(path)
		if err != nil {
			return nil, err
		}
		c.files.put(path, file)
		return file, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*File), nil
}

// lru is a mutex-guarded least-recently-used map holding at most limit items.
type lru[K comparable, V any] struct {
	mu    sync.Mutex
	limit int
	order *list.List // front is most recently used
	items map[K]*list.Element
}

type lruItem[K comparable, V any] struct {
	key   K
	value V
}

func newLRU[K comparable, V any](limit int) *lru[K, V] {
	return &lru[K, V]{
		limit: limit,
		order: list.New(),
		items: make(map[K]*list.Element),
	}
}

func (c *lru[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruItem[K, V]).value, true
}

func (c *lru[K, V]) put(key K, value V) {
	if c.limit <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*lruItem[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&lruItem[K, V]{key: key, value: value})

	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruItem[K, V]).key)
	}
}

func (c *lru[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
