// Package cache wraps the task store with a Redis read-through cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"task-tracker/internal/model"
	"task-tracker/internal/service"
)

// TaskCache caches paginated listings and status counts per owner.
//
// Every key embeds the owner's generation number. A write bumps the generation,
// so entries cached before the write are never read again and simply expire.
type TaskCache struct {
	store service.TaskStore
	redis *redis.Client
	ttl   time.Duration
	group singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

func NewTaskCache(store service.TaskStore, client *redis.Client, ttl time.Duration) *TaskCache {
	if store == nil {
		panic("cache.NewTaskCache: store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &TaskCache{store: store, redis: client, ttl: ttl}
}

func (c *TaskCache) ListForOwner(ctx context.Context, ownerID uint, filters model.TaskFilters, page int) (*model.Page, error) {
	gen, ok := c.generation(ctx, ownerID)
	if !ok {
		return c.store.ListForOwner(ctx, ownerID, filters, page)
	}
	key := listKey(ownerID, gen, filters, model.NormalizePage(page))

	var cached model.Page
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		p, err := c.store.ListForOwner(ctx, ownerID, filters, page)
		if err != nil {
			return nil, err
		}
		c.save(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*model.Page)
	return &p, nil
}

func (c *TaskCache) ListByStatus(ctx context.Context, ownerID uint, status model.TaskStatus, page int) (*model.Page, error) {
	return c.ListForOwner(ctx, ownerID, model.TaskFilters{Status: status}, page)
}

func (c *TaskCache) Search(ctx context.Context, ownerID uint, term string, page int) (*model.Page, error) {
	return c.ListForOwner(ctx, ownerID, model.TaskFilters{Search: term}, page)
}

func (c *TaskCache) CountByStatus(ctx context.Context, ownerID uint) (map[model.TaskStatus]int64, error) {
	gen, ok := c.generation(ctx, ownerID)
	if !ok {
		return c.store.CountByStatus(ctx, ownerID)
	}
	key := countsKey(ownerID, gen)

	var cached map[model.TaskStatus]int64
	if c.load(ctx, key, &cached) {
		return cached, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		counts, err := c.store.CountByStatus(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		c.save(ctx, key, counts)
		return counts, nil
	})
	if err != nil {
		return nil, err
	}
	src := v.(map[model.TaskStatus]int64)
	counts := make(map[model.TaskStatus]int64, len(src))
	for k, n := range src {
		counts[k] = n
	}
	return counts, nil
}

func (c *TaskCache) FindByIDForOwner(ctx context.Context, id, ownerID uint) (*model.Task, error) {
	return c.store.FindByIDForOwner(ctx, id, ownerID)
}

func (c *TaskCache) Create(ctx context.Context, task *model.Task) error {
	if err := c.store.Create(ctx, task); err != nil {
		return err
	}
	c.bump(ctx, task.OwnerID)
	return nil
}

func (c *TaskCache) Update(ctx context.Context, task *model.Task, changes model.TaskChanges) (*model.Task, error) {
	updated, err := c.store.Update(ctx, task, changes)
	if err != nil {
		return nil, err
	}
	c.bump(ctx, task.OwnerID)
	return updated, nil
}

func (c *TaskCache) Delete(ctx context.Context, task *model.Task) (bool, error) {
	deleted, err := c.store.Delete(ctx, task)
	if err != nil {
		return false, err
	}
	if deleted {
		c.bump(ctx, task.OwnerID)
	}
	return deleted, nil
}

// PurgeDeleted only removes rows that are already invisible to listings.
func (c *TaskCache) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	return c.store.PurgeDeleted(ctx, before)
}

func (c *TaskCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errors.Load()}
}

// LogStats writes the counters as one structured line.
func (c *TaskCache) LogStats(logger log.FieldLogger) {
	stats := c.Stats()
	ratio := 0.0
	if lookups := stats.Hits + stats.Misses; lookups > 0 {
		ratio = float64(stats.Hits) / float64(lookups)
	}
	logger.WithFields(log.Fields{
		"hits":      stats.Hits,
		"misses":    stats.Misses,
		"errors":    stats.Errors,
		"hit_ratio": ratio,
	}).Info("task cache stats")
}

// generation returns the owner's current generation; ok is false when Redis is unusable.
func (c *TaskCache) generation(ctx context.Context, ownerID uint) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, generationKey(ownerID)).Int64()
	switch {
	case err == nil:
		return gen, true
	case errors.Is(err, redis.Nil):
		return 0, true
	default:
		c.errors.Add(1)
		log.WithError(err).WithField("owner_id", ownerID).Debug("task cache unavailable, reading store")
		return 0, false
	}
}

func (c *TaskCache) bump(ctx context.Context, ownerID uint) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Incr(ctx, generationKey(ownerID)).Err(); err != nil {
		c.errors.Add(1)
		log.WithError(err).WithField("owner_id", ownerID).Warn("task cache invalidation failed")
	}
}

func (c *TaskCache) load(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.errors.Add(1)
		}
		c.misses.Add(1)
		return false
	}
	if err := sonic.Unmarshal(data, dest); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

func (c *TaskCache) save(ctx context.Context, key string, value interface{}) {
	data, err := sonic.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.errors.Add(1)
	}
}

func generationKey(ownerID uint) string {
	return fmt.Sprintf("tasks:%d:gen", ownerID)
}

// listKey keeps the free-form search term last so it cannot collide with other segments.
func listKey(ownerID uint, gen int64, filters model.TaskFilters, page int) string {
	return fmt.Sprintf("tasks:%d:%d:list:%s:%d:%s", ownerID, gen, filters.Status, page, filters.Search)
}

func countsKey(ownerID uint, gen int64) string {
	return fmt.Sprintf("tasks:%d:%d:counts", ownerID, gen)
}
