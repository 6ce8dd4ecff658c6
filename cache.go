package immagent

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the entry bound for the LRU cache backing persistent
// stores.
const DefaultCacheSize = 10_000

// Cache is a process-local, thread-safe identity map from UUID to asset.
// It is an accelerator over the authoritative backend, never a consistency
// boundary: since assets are immutable, a cached instance is always valid.
//
// Put is idempotent; putting a second, distinct value under an existing ID
// is a programmer error (assets never change) and simply overwrites.
type Cache interface {
	Get(id uuid.UUID) (Asset, bool)
	Put(asset Asset)
	Forget(id uuid.UUID)
	Clear()
}

// strongCache keeps entries until explicit removal. Used by in-memory
// stores, where there is no backend to recover evicted entries from.
type strongCache struct {
	mu     sync.Mutex
	assets map[uuid.UUID]Asset
}

// NewStrongCache returns a cache whose entries live until Forget or Clear.
func NewStrongCache() Cache {
	return &strongCache{assets: make(map[uuid.UUID]Asset)}
}

func (c *strongCache) Get(id uuid.UUID) (Asset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assets[id]
	return a, ok
}

func (c *strongCache) Put(asset Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[asset.AssetID()] = asset
}

func (c *strongCache) Forget(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.assets, id)
}

func (c *strongCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets = make(map[uuid.UUID]Asset)
}

// lruCache bounds memory with least-recently-used eviction. Used by
// persistent stores: an evicted entry is transparently reloaded from the
// database on the next read.
type lruCache struct {
	entries *lru.Cache[uuid.UUID, Asset]
}

// NewLRUCache returns a bounded cache evicting least-recently-used entries
// once size is exceeded.
func NewLRUCache(size int) Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[uuid.UUID, Asset](size)
	if err != nil {
		// lru.New only fails for non-positive sizes, guarded above.
		panic(err)
	}
	return &lruCache{entries: entries}
}

func (c *lruCache) Get(id uuid.UUID) (Asset, bool) {
	return c.entries.Get(id)
}

func (c *lruCache) Put(asset Asset) {
	c.entries.Add(asset.AssetID(), asset)
}

func (c *lruCache) Forget(id uuid.UUID) {
	c.entries.Remove(id)
}

func (c *lruCache) Clear() {
	c.entries.Purge()
}
