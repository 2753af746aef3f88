package service

import (
	"context"
	"strings"
	"time"

	"task-tracker/internal/model"
)

// TaskStore is the persistence contract the service relies on. Every read is owner scoped.
type TaskStore interface {
	ListForOwner(ctx context.Context, ownerID uint, filters model.TaskFilters, page int) (*model.Page, error)
	ListByStatus(ctx context.Context, ownerID uint, status model.TaskStatus, page int) (*model.Page, error)
	Search(ctx context.Context, ownerID uint, term string, page int) (*model.Page, error)
	Create(ctx context.Context, task *model.Task) error
	Update(ctx context.Context, task *model.Task, changes model.TaskChanges) (*model.Task, error)
	Delete(ctx context.Context, task *model.Task) (bool, error)
	FindByIDForOwner(ctx context.Context, id, ownerID uint) (*model.Task, error)
	CountByStatus(ctx context.Context, ownerID uint) (map[model.TaskStatus]int64, error)
	PurgeDeleted(ctx context.Context, before time.Time) (int64, error)
}

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string
	Description *string
	Status      *model.TaskStatus
}

// TaskService wraps task-related business logic.
type TaskService struct {
	store TaskStore
}

func NewTaskService(store TaskStore) *TaskService {
	return &TaskService{store: store}
}

// GetAllTasksForUser lists the user's tasks. Filters are passed through unchecked.
func (s *TaskService) GetAllTasksForUser(ctx context.Context, user *model.User, filters model.TaskFilters, page int) (*model.Page, error) {
	return s.store.ListForOwner(ctx, user.ID, filters, page)
}

func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	rules := taskRules{}
	rules.title(&input.Title)
	rules.description(input.Description)
	rules.status(input.Status)
	if err := rules.err(); err != nil {
		return nil, err
	}

	task := model.Task{
		OwnerID: user.ID,
		Title:   strings.TrimSpace(input.Title),
		Status:  model.StatusPending,
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Status != nil {
		task.Status = *input.Status
	}

	if err := s.store.Create(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask checks and applies only the supplied fields.
func (s *TaskService) UpdateTask(ctx context.Context, task *model.Task, changes model.TaskChanges) (*model.Task, error) {
	rules := taskRules{}
	rules.title(changes.Title)
	rules.description(changes.Description)
	rules.status(changes.Status)
	if err := rules.err(); err != nil {
		return nil, err
	}

	if changes.Title != nil {
		trimmed := strings.TrimSpace(*changes.Title)
		changes.Title = &trimmed
	}
	return s.store.Update(ctx, task, changes)
}

func (s *TaskService) DeleteTask(ctx context.Context, task *model.Task) (bool, error) {
	return s.store.Delete(ctx, task)
}

// FindTaskForUser resolves a task the user owns; anything else is ErrNotFound.
func (s *TaskService) FindTaskForUser(ctx context.Context, id uint, user *model.User) (*model.Task, error) {
	return s.store.FindByIDForOwner(ctx, id, user.ID)
}

func (s *TaskService) GetTasksByStatus(ctx context.Context, user *model.User, status model.TaskStatus, page int) (*model.Page, error) {
	if err := ValidateStatus(status); err != nil {
		return nil, err
	}
	return s.store.ListByStatus(ctx, user.ID, status, page)
}

func (s *TaskService) SearchTasks(ctx context.Context, user *model.User, term string, page int) (*model.Page, error) {
	if err := ValidateSearchTerm(term); err != nil {
		return nil, err
	}
	return s.store.Search(ctx, user.ID, term, page)
}

// ChangeTaskStatus is the dedicated transition entry point; it writes the status only.
func (s *TaskService) ChangeTaskStatus(ctx context.Context, task *model.Task, status model.TaskStatus) (*model.Task, error) {
	if err := ValidateStatus(status); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, task, model.TaskChanges{Status: &status})
}

// TaskCounts returns the number of live tasks per status.
func (s *TaskService) TaskCounts(ctx context.Context, user *model.User) (map[model.TaskStatus]int64, error) {
	return s.store.CountByStatus(ctx, user.ID)
}

// PurgeDeleted hard-deletes tasks that were soft-deleted longer than retention ago.
func (s *TaskService) PurgeDeleted(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.store.PurgeDeleted(ctx, now.Add(-retention))
}
