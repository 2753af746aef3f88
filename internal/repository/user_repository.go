package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"task-tracker/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	exists, err := r.EmailExists(ctx, user.Email, 0)
	if err != nil {
		return err
	}
	if exists {
		return model.ErrEmailTaken
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *UserRepository) FindByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error) {
	return r.findOne(ctx, "telegram_chat_id = ?", chatID)
}

// EmailExists reports whether an account other than exceptID uses email.
func (r *UserRepository) EmailExists(ctx context.Context, email string, exceptID uint) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return count > 0, nil
}

// UpdateProfile stores name, email and password hash of an existing user.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *model.User) error {
	updates := map[string]interface{}{
		"name":          user.Name,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
	}
	if err := r.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// DeleteWithTasks removes the user and every task they own, soft-deleted ones included.
func (r *UserRepository) DeleteWithTasks(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("owner_id = ?", user.ID).Delete(&model.Task{}).Error; err != nil {
			return fmt.Errorf("delete user tasks: %w", err)
		}
		if err := tx.Delete(&model.User{}, user.ID).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

// SetTelegramLinkCode stores a one-time code the user can send to the bot.
func (r *UserRepository) SetTelegramLinkCode(ctx context.Context, user *model.User, code string, expiresAt time.Time) error {
	updates := map[string]interface{}{
		"telegram_link_code":       code,
		"telegram_link_expires_at": expiresAt,
	}
	if err := r.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("set telegram link code: %w", err)
	}
	user.TelegramLinkCode = &code
	user.TelegramLinkExpiresAt = &expiresAt
	return nil
}

// LinkTelegram binds chatID to the user holding a still valid code.
func (r *UserRepository) LinkTelegram(ctx context.Context, code string, chatID int64, now time.Time) (*model.User, error) {
	var linked *model.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		err := tx.Where("telegram_link_code = ? AND telegram_link_expires_at > ?", code, now).First(&user).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return fmt.Errorf("find link code: %w", err)
		}
		// A chat may be bound to one account only.
		if err := tx.Model(&model.User{}).Where("telegram_chat_id = ? AND id <> ?", chatID, user.ID).
			Update("telegram_chat_id", nil).Error; err != nil {
			return fmt.Errorf("release chat: %w", err)
		}
		updates := map[string]interface{}{
			"telegram_chat_id":         chatID,
			"telegram_link_code":       nil,
			"telegram_link_expires_at": nil,
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return fmt.Errorf("link telegram: %w", err)
		}
		user.TelegramChatID = &chatID
		user.TelegramLinkCode = nil
		user.TelegramLinkExpiresAt = nil
		linked = &user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}

func (r *UserRepository) UnlinkTelegram(ctx context.Context, user *model.User) error {
	updates := map[string]interface{}{
		"telegram_chat_id":         nil,
		"telegram_link_code":       nil,
		"telegram_link_expires_at": nil,
	}
	if err := r.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("unlink telegram: %w", err)
	}
	user.TelegramChatID = nil
	user.TelegramLinkCode = nil
	user.TelegramLinkExpiresAt = nil
	return nil
}

// ListLinked returns users that receive Telegram summaries.
func (r *UserRepository) ListLinked(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("telegram_chat_id IS NOT NULL").Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list linked users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...interface{}) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, model.ErrNotFound
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}
