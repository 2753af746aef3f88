package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-tracker/internal/model"
)

// countingStore keeps tasks in memory and counts read calls.
type countingStore struct {
	mu     sync.Mutex
	nextID uint
	tasks  []model.Task
	lists  int
	counts int
	fail   error
}

func (s *countingStore) ListForOwner(_ context.Context, ownerID uint, filters model.TaskFilters, page int) (*model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.fail != nil {
		return nil, s.fail
	}
	var items []model.Task
	for _, t := range s.tasks {
		if t.OwnerID == ownerID && (filters.Status == "" || t.Status == filters.Status) {
			items = append(items, t)
		}
	}
	return model.NewPage(items, int64(len(items)), page), nil
}

func (s *countingStore) ListByStatus(ctx context.Context, ownerID uint, status model.TaskStatus, page int) (*model.Page, error) {
	return s.ListForOwner(ctx, ownerID, model.TaskFilters{Status: status}, page)
}

func (s *countingStore) Search(ctx context.Context, ownerID uint, term string, page int) (*model.Page, error) {
	return s.ListForOwner(ctx, ownerID, model.TaskFilters{Search: term}, page)
}

func (s *countingStore) Create(_ context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	task.ID = s.nextID
	task.CreatedAt = time.Date(2025, 1, 1, 0, 0, int(s.nextID), 0, time.UTC)
	task.UpdatedAt = task.CreatedAt
	s.tasks = append(s.tasks, *task)
	return nil
}

func (s *countingStore) Update(_ context.Context, task *model.Task, changes model.TaskChanges) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == task.ID {
			if changes.Status != nil {
				s.tasks[i].Status = *changes.Status
			}
			updated := s.tasks[i]
			return &updated, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *countingStore) Delete(_ context.Context, task *model.Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == task.ID {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *countingStore) FindByIDForOwner(_ context.Context, id, ownerID uint) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id && t.OwnerID == ownerID {
			found := t
			return &found, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *countingStore) CountByStatus(_ context.Context, ownerID uint) (map[model.TaskStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts++
	out := map[model.TaskStatus]int64{}
	for _, st := range model.Statuses {
		out[st] = 0
	}
	for _, t := range s.tasks {
		if t.OwnerID == ownerID {
			out[t.Status]++
		}
	}
	return out, nil
}

func (s *countingStore) PurgeDeleted(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newTestCache(t *testing.T) (*TaskCache, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &countingStore{}
	return NewTaskCache(store, client, time.Minute), store, mr
}

func TestListMissThenHit(t *testing.T) {
	c, store, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Create(ctx, &model.Task{OwnerID: 1, Title: "Buy milk", Status: model.StatusPending}))

	first, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	second, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, store.lists)
	require.Len(t, second.Items, 1)
	assert.Equal(t, first.Items[0].Title, second.Items[0].Title)
	assert.True(t, first.Items[0].CreatedAt.Equal(second.Items[0].CreatedAt))
	assert.Equal(t, first.Total, second.Total)

	gen, err := mr.Get(generationKey(1))
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
	ttl := mr.TTL(listKey(1, 1, model.TaskFilters{}, 1))
	assert.True(t, ttl > 0 && ttl <= time.Minute, "unexpected ttl %v", ttl)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestWriteInvalidatesOwnerListings(t *testing.T) {
	c, store, _ := newTestCache(t)
	ctx := context.Background()
	task := &model.Task{OwnerID: 1, Title: "First", Status: model.StatusPending}
	require.NoError(t, c.Create(ctx, task))

	_, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	_, err = c.CountByStatus(ctx, 1)
	require.NoError(t, err)

	done := model.StatusDone
	_, err = c.Update(ctx, task, model.TaskChanges{Status: &done})
	require.NoError(t, err)

	page, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, model.StatusDone, page.Items[0].Status)
	assert.Equal(t, 2, store.lists)

	counts, err := c.CountByStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.StatusDone])
	assert.Equal(t, 2, store.counts)

	ok, err := c.Delete(ctx, task)
	require.NoError(t, err)
	require.True(t, ok)
	page, err = c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestOtherOwnersWritesKeepCache(t *testing.T) {
	c, store, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	require.NoError(t, c.Create(ctx, &model.Task{OwnerID: 2, Title: "Theirs", Status: model.StatusPending}))
	_, err = c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, store.lists)
}

func TestFiltersAndPagesAreCachedSeparately(t *testing.T) {
	c, store, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	_, err = c.ListByStatus(ctx, 1, model.StatusDone, 1)
	require.NoError(t, err)
	_, err = c.Search(ctx, 1, "milk", 1)
	require.NoError(t, err)
	_, err = c.ListForOwner(ctx, 1, model.TaskFilters{}, 2)
	require.NoError(t, err)
	_, err = c.ListForOwner(ctx, 1, model.TaskFilters{}, 0)
	require.NoError(t, err)

	assert.Equal(t, 4, store.lists, "page 0 normalizes to page 1")
}

func TestRedisFailureFallsBackToStore(t *testing.T) {
	c, store, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Create(ctx, &model.Task{OwnerID: 1, Title: "Buy milk", Status: model.StatusPending}))

	mr.SetError("redis down")
	for i := 0; i < 2; i++ {
		page, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)
	}
	assert.Equal(t, 2, store.lists)
	assert.NotZero(t, c.Stats().Errors)

	mr.SetError("")
	require.NoError(t, c.Create(ctx, &model.Task{OwnerID: 1, Title: "Another", Status: model.StatusPending}))
	page, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestStoreErrorsAreNotCached(t *testing.T) {
	c, store, _ := newTestCache(t)
	ctx := context.Background()
	store.fail = errors.New("db down")

	_, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	assert.ErrorIs(t, err, store.fail)

	store.fail = nil
	page, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 2, store.lists)
}

func TestCorruptEntryIsDropped(t *testing.T) {
	c, store, mr := newTestCache(t)
	ctx := context.Background()
	key := listKey(1, 0, model.TaskFilters{}, 1)
	require.NoError(t, mr.Set(key, "{not json"))

	_, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.lists)

	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.NotEqual(t, "{not json", val)
}

func TestLogStatsReportsCounters(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	_, err = c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)
	_, err = c.ListForOwner(ctx, 1, model.TaskFilters{}, 1)
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	c.LogStats(logger)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, log.InfoLevel, entry.Level)
	assert.Equal(t, "task cache stats", entry.Message)
	assert.Equal(t, uint64(2), entry.Data["hits"])
	assert.Equal(t, uint64(1), entry.Data["misses"])
	assert.Equal(t, uint64(0), entry.Data["errors"])
	assert.InDelta(t, 2.0/3.0, entry.Data["hit_ratio"], 1e-9)
}
