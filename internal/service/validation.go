package service

import (
	"strings"
	"unicode/utf8"

	"task-tracker/internal/model"
)

const (
	titleMinLength       = 3
	titleMaxLength       = 255
	descriptionMaxLength = 1000
	searchMinLength      = 2
)

const (
	msgTitleRequired  = "Task title is required."
	msgTitleMin       = "Task title must be at least 3 characters long."
	msgTitleMax       = "Task title cannot exceed 255 characters."
	msgDescriptionMax = "Description cannot exceed 1000 characters."
	msgStatusInvalid  = "Status must be one of: pending, in_progress, done."
	msgSearchMin      = "Search term must be at least 2 characters long."
)

// taskRules is the single rule set applied to task fields. Only supplied fields are checked.
type taskRules struct {
	errs model.ValidationError
}

func (r *taskRules) title(title *string) {
	if title == nil {
		return
	}
	trimmed := strings.TrimSpace(*title)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n == 0:
		r.errs.Add("title", msgTitleRequired)
	case n < titleMinLength:
		r.errs.Add("title", msgTitleMin)
	case n > titleMaxLength:
		r.errs.Add("title", msgTitleMax)
	}
}

func (r *taskRules) description(description *string) {
	if description == nil {
		return
	}
	if utf8.RuneCountInString(*description) > descriptionMaxLength {
		r.errs.Add("description", msgDescriptionMax)
	}
}

func (r *taskRules) status(status *model.TaskStatus) {
	if status == nil {
		return
	}
	if err := ValidateStatus(*status); err != nil {
		r.errs.Add("status", msgStatusInvalid)
	}
}

func (r *taskRules) err() error {
	if !r.errs.HasErrors() {
		return nil
	}
	out := r.errs
	return &out
}

// ValidateStatus accepts only the known workflow stages.
func ValidateStatus(status model.TaskStatus) error {
	for _, s := range model.Statuses {
		if status == s {
			return nil
		}
	}
	return model.NewValidationError("status", msgStatusInvalid)
}

// ValidateSearchTerm requires at least two non-blank characters.
func ValidateSearchTerm(term string) error {
	if utf8.RuneCountInString(strings.TrimSpace(term)) < searchMinLength {
		return model.NewValidationError("search", msgSearchMin)
	}
	return nil
}

// ValidateTitle applies the task title rules on their own.
func ValidateTitle(title string) error {
	rules := taskRules{}
	rules.title(&title)
	return rules.err()
}
