package engine

import (
	"errors"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/store"
)

// errNoStore reports that a pair has no store file yet.
var errNoStore = errors.New("no store for pair")

// handle is a cached pair store with a count of in-flight operations.
// Fields other than store are guarded by storeCache.mu.
type handle struct {
	store   *store.SQLiteStore
	refs    int
	evicted bool
	closed  bool
}

// storeCache keeps a bounded set of open pair stores. An evicted store stays
// open until its last user releases it.
type storeCache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *handle]
	group singleflight.Group
	open  func(path string, pair model.Pair) (*store.SQLiteStore, error)
}

func newStoreCache(size int, open func(string, model.Pair) (*store.SQLiteStore, error)) (*storeCache, error) {
	c := &storeCache{open: open}
	l, err := lru.NewWithEvict(size, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("store cache: %w", err)
	}
	c.lru = l
	return c, nil
}

// onEvict runs inside lru calls, which are always made with mu held.
func (c *storeCache) onEvict(_ string, h *handle) {
	h.evicted = true
	if h.refs == 0 && !h.closed {
		h.closed = true
		h.store.Close()
	}
}

// acquire returns the open store at path, opening it when create is set or
// the file already exists. Concurrent opens of one path share a single open.
func (c *storeCache) acquire(path string, pair model.Pair, create bool) (*handle, error) {
	for {
		c.mu.Lock()
		if h, ok := c.lru.Get(path); ok {
			h.refs++
			c.mu.Unlock()
			return h, nil
		}
		c.mu.Unlock()

		if !create {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return nil, errNoStore
			}
		}

		v, err, _ := c.group.Do(path, func() (interface{}, error) {
			c.mu.Lock()
			if h, ok := c.lru.Get(path); ok {
				c.mu.Unlock()
				return h, nil
			}
			c.mu.Unlock()

			s, err := c.open(path, pair)
			if err != nil {
				return nil, err
			}
			h := &handle{store: s}
			c.mu.Lock()
			c.lru.Add(path, h)
			c.mu.Unlock()
			return h, nil
		})
		if err != nil {
			return nil, err
		}

		h := v.(*handle)
		c.mu.Lock()
		if h.closed {
			// evicted before we could pin it
			c.mu.Unlock()
			continue
		}
		h.refs++
		c.mu.Unlock()
		return h, nil
	}
}

func (c *storeCache) release(h *handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h.refs--
	if h.refs == 0 && h.evicted && !h.closed {
		h.closed = true
		h.store.Close()
	}
}

// len returns the number of cached stores.
func (c *storeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// purge evicts every store; stores in use close on release.
func (c *storeCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
