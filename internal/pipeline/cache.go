package pipeline

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"notigate/internal/model"
	"notigate/internal/scoring"
)

// BehaviorStore optionally persists behavior patterns across process
// restarts. Absent a store, patterns live only in the in-memory cache.
type BehaviorStore interface {
	LoadBehavior(ctx context.Context, userID string) (model.UserBehaviorPattern, bool, error)
	SaveBehavior(ctx context.Context, pattern model.UserBehaviorPattern) error
}

// behaviorCache is a bounded LRU of per-user behavior patterns with
// per-key locking: concurrent lookups for different users never block
// each other, while the read-compute-store sequence for one user is
// serialized.
type behaviorCache struct {
	lru   *lru.Cache[string, model.UserBehaviorPattern]
	locks sync.Map // userID -> *sync.Mutex
	store BehaviorStore
}

func newBehaviorCache(size int, store BehaviorStore) (*behaviorCache, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, model.UserBehaviorPattern](size)
	if err != nil {
		return nil, err
	}
	return &behaviorCache{lru: cache, store: store}, nil
}

func (c *behaviorCache) keyLock(userID string) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// pattern returns the cached behavior pattern for userID, computing it
// from history on a miss. Population on miss is the only mutation path.
func (c *behaviorCache) pattern(ctx context.Context, userID string, history []model.Notification) model.UserBehaviorPattern {
	mu := c.keyLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if cached, ok := c.lru.Get(userID); ok {
		return cached
	}
	if c.store != nil {
		if stored, ok, err := c.store.LoadBehavior(ctx, userID); err == nil && ok {
			c.lru.Add(userID, stored)
			return stored
		}
	}
	pattern := scoring.AnalyzeBehavior(userID, history)
	c.lru.Add(userID, pattern)
	if c.store != nil {
		_ = c.store.SaveBehavior(ctx, pattern)
	}
	return pattern
}

// clear removes one user's entry, or every entry when userID is empty.
func (c *behaviorCache) clear(userID string) {
	if userID == "" {
		c.lru.Purge()
		c.locks.Range(func(key, _ any) bool {
			c.locks.Delete(key)
			return true
		})
		return
	}
	c.lru.Remove(userID)
	c.locks.Delete(userID)
}

func (c *behaviorCache) len() int {
	return c.lru.Len()
}
