package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"task-tracker/internal/model"
)

// memStore is an in-memory TaskStore used to exercise the service without a database.
type memStore struct {
	mu      sync.Mutex
	nextID  uint
	tasks   map[uint]*model.Task
	clock   func() time.Time
	creates int
	updates int
}

func newMemStore() *memStore {
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	return &memStore{
		tasks: make(map[uint]*model.Task),
		clock: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		},
	}
}

func (m *memStore) ListForOwner(_ context.Context, ownerID uint, filters model.TaskFilters, page int) (*model.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []model.Task
	for _, t := range m.tasks {
		if t.OwnerID != ownerID || t.DeletedAt.Valid {
			continue
		}
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		if filters.Search != "" {
			term := strings.ToLower(filters.Search)
			if !strings.Contains(strings.ToLower(t.Title), term) && !strings.Contains(strings.ToLower(t.Description), term) {
				continue
			}
		}
		matched = append(matched, *t)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := model.Offset(page)
	if start > len(matched) {
		start = len(matched)
	}
	end := start + model.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	return model.NewPage(matched[start:end], total, page), nil
}

func (m *memStore) ListByStatus(ctx context.Context, ownerID uint, status model.TaskStatus, page int) (*model.Page, error) {
	return m.ListForOwner(ctx, ownerID, model.TaskFilters{Status: status}, page)
}

func (m *memStore) Search(ctx context.Context, ownerID uint, term string, page int) (*model.Page, error) {
	return m.ListForOwner(ctx, ownerID, model.TaskFilters{Search: term}, page)
}

func (m *memStore) Create(_ context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := m.clock()
	task.ID = m.nextID
	task.CreatedAt = now
	task.UpdatedAt = now
	stored := *task
	m.tasks[task.ID] = &stored
	m.creates++
	return nil
}

func (m *memStore) Update(_ context.Context, task *model.Task, changes model.TaskChanges) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tasks[task.ID]
	if !ok || stored.DeletedAt.Valid {
		return nil, model.ErrNotFound
	}
	if !changes.Empty() {
		if changes.Title != nil {
			stored.Title = *changes.Title
		}
		if changes.Description != nil {
			stored.Description = *changes.Description
		}
		if changes.Status != nil {
			stored.Status = *changes.Status
		}
		stored.UpdatedAt = m.clock()
		m.updates++
	}
	fresh := *stored
	return &fresh, nil
}

func (m *memStore) Delete(_ context.Context, task *model.Task) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tasks[task.ID]
	if !ok || stored.DeletedAt.Valid {
		return false, nil
	}
	stored.DeletedAt.Time = m.clock()
	stored.DeletedAt.Valid = true
	return true, nil
}

func (m *memStore) FindByIDForOwner(_ context.Context, id, ownerID uint) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tasks[id]
	if !ok || stored.DeletedAt.Valid || stored.OwnerID != ownerID {
		return nil, model.ErrNotFound
	}
	found := *stored
	return &found, nil
}

func (m *memStore) CountByStatus(_ context.Context, ownerID uint) (map[model.TaskStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[model.TaskStatus]int64{}
	for _, s := range model.Statuses {
		counts[s] = 0
	}
	for _, t := range m.tasks {
		if t.OwnerID == ownerID && !t.DeletedAt.Valid {
			counts[t.Status]++
		}
	}
	return counts, nil
}

func (m *memStore) PurgeDeleted(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tasks {
		if t.DeletedAt.Valid && t.DeletedAt.Time.Before(before) {
			delete(m.tasks, id)
			n++
		}
	}
	return n, nil
}

// raw returns the stored row including soft-deleted ones.
func (m *memStore) raw(id uint) (model.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return *t, true
}
