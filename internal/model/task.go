package model

import (
	"time"

	"gorm.io/gorm"
)

// TaskStatus is the workflow stage of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Statuses lists every accepted status in display order.
var Statuses = []TaskStatus{StatusPending, StatusInProgress, StatusDone}

// Task is a single work item owned by exactly one user.
type Task struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	OwnerID     uint           `gorm:"not null;index" json:"owner_id"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"size:1000" json:"description"`
	Status      TaskStatus     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	SearchText  string         `gorm:"size:1300" json:"-"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TaskChanges carries a partial update. Nil fields are left untouched.
type TaskChanges struct {
	Title       *string
	Description *string
	Status      *TaskStatus
}

// Empty reports whether no field is set.
func (c TaskChanges) Empty() bool {
	return c.Title == nil && c.Description == nil && c.Status == nil
}

// TaskFilters narrows an owner's task listing. Zero values are ignored.
type TaskFilters struct {
	Status TaskStatus `json:"status,omitempty"`
	Search string     `json:"search,omitempty"`
}
