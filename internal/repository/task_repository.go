package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"task-tracker/internal/model"
)

// TaskRepository handles owner-scoped storage of tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// ListForOwner returns one page of the owner's tasks, newest first.
func (r *TaskRepository) ListForOwner(ctx context.Context, ownerID uint, filters model.TaskFilters, page int) (*model.Page, error) {
	query := r.forOwner(ctx, ownerID)

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.Search != "" {
		query = query.Where(`search_text LIKE ? ESCAPE '\'`, likePattern(filters.Search))
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, &model.PersistenceError{Op: "count tasks", Err: err}
	}

	var tasks []model.Task
	if err := query.Order("created_at DESC").Order("id DESC").
		Offset(model.Offset(page)).
		Limit(model.PerPage).
		Find(&tasks).Error; err != nil {
		return nil, &model.PersistenceError{Op: "list tasks", Err: err}
	}

	return model.NewPage(tasks, total, page), nil
}

// ListByStatus is ListForOwner with a preset status filter.
func (r *TaskRepository) ListByStatus(ctx context.Context, ownerID uint, status model.TaskStatus, page int) (*model.Page, error) {
	return r.ListForOwner(ctx, ownerID, model.TaskFilters{Status: status}, page)
}

// Search is ListForOwner with a preset search filter.
func (r *TaskRepository) Search(ctx context.Context, ownerID uint, term string, page int) (*model.Page, error) {
	return r.ListForOwner(ctx, ownerID, model.TaskFilters{Search: term}, page)
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if task.OwnerID == 0 || task.Title == "" {
		return &model.PersistenceError{Op: "create task", Err: errors.New("owner and title are required")}
	}
	task.SearchText = searchText(task.Title, task.Description)
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return &model.PersistenceError{Op: "create task", Err: err}
	}
	return nil
}

// Update applies only the fields set in changes and returns the stored state.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task, changes model.TaskChanges) (*model.Task, error) {
	var fresh model.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !changes.Empty() {
			updates := make(map[string]interface{}, 3)
			if changes.Title != nil {
				updates["title"] = *changes.Title
			}
			if changes.Description != nil {
				updates["description"] = *changes.Description
			}
			if changes.Status != nil {
				updates["status"] = *changes.Status
			}
			if err := tx.Model(task).Updates(updates).Error; err != nil {
				return &model.PersistenceError{Op: "update task", Err: err}
			}
		}
		if err := tx.First(&fresh, task.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return &model.PersistenceError{Op: "reload task", Err: err}
		}
		if changes.Title == nil && changes.Description == nil {
			return nil
		}
		fresh.SearchText = searchText(fresh.Title, fresh.Description)
		if err := tx.Model(&fresh).UpdateColumn("search_text", fresh.SearchText).Error; err != nil {
			return &model.PersistenceError{Op: "index task", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fresh, nil
}

// Delete soft-deletes the task and reports whether a row was affected.
func (r *TaskRepository) Delete(ctx context.Context, task *model.Task) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&model.Task{}, task.ID)
	if result.Error != nil {
		return false, &model.PersistenceError{Op: "delete task", Err: result.Error}
	}
	return result.RowsAffected > 0, nil
}

// FindByIDForOwner hides tasks of other owners behind ErrNotFound.
func (r *TaskRepository) FindByIDForOwner(ctx context.Context, id, ownerID uint) (*model.Task, error) {
	var task model.Task
	if err := r.forOwner(ctx, ownerID).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, &model.PersistenceError{Op: "find task", Err: err}
	}
	return &task, nil
}

// CountByStatus returns the number of live tasks per status. Every status is present in the result.
func (r *TaskRepository) CountByStatus(ctx context.Context, ownerID uint) (map[model.TaskStatus]int64, error) {
	var rows []struct {
		Status model.TaskStatus
		Count  int64
	}
	if err := r.forOwner(ctx, ownerID).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, &model.PersistenceError{Op: "count tasks by status", Err: err}
	}

	counts := make(map[model.TaskStatus]int64, len(model.Statuses))
	for _, s := range model.Statuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// PurgeDeleted permanently removes tasks soft-deleted before the cutoff.
func (r *TaskRepository) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", before).
		Delete(&model.Task{})
	if result.Error != nil {
		return 0, &model.PersistenceError{Op: "purge tasks", Err: result.Error}
	}
	return result.RowsAffected, nil
}

func (r *TaskRepository) forOwner(ctx context.Context, ownerID uint) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Task{}).Where("owner_id = ?", ownerID)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(foldCase(term)) + "%"
}

// searchText is the case-folded title and description that search matches against.
// SQLite's LOWER and LIKE only fold ASCII, so folding happens here.
func searchText(title, description string) string {
	return foldCase(title + "\n" + description)
}

func foldCase(s string) string {
	return strings.ToLower(s)
}

// backfillSearchText fills search_text for rows written before the column existed.
func backfillSearchText(db *gorm.DB) error {
	var batch []model.Task
	return db.Unscoped().
		Where("search_text = '' OR search_text IS NULL").
		FindInBatches(&batch, 200, func(_ *gorm.DB, _ int) error {
			for _, task := range batch {
				err := db.Unscoped().Model(&model.Task{}).
					Where("id = ?", task.ID).
					UpdateColumn("search_text", searchText(task.Title, task.Description)).Error
				if err != nil {
					return err
				}
			}
			return nil
		}).Error
}
