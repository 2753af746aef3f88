package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"task-tracker/internal/auth"
	"task-tracker/internal/model"
)

// TelegramLinkTTL is how long a bot link code stays valid.
const TelegramLinkTTL = 15 * time.Minute

const (
	nameMaxLength     = 255
	passwordMinLength = 8

	msgNameRequired        = "The name field is required."
	msgNameMax             = "The name may not be greater than 255 characters."
	msgEmailRequired       = "The email field is required."
	msgEmailInvalid        = "The email must be a valid email address."
	msgEmailTaken          = "The email has already been taken."
	msgPasswordMin         = "The password must be at least 8 characters."
	msgPasswordMax         = "The password may not be greater than 72 characters."
	msgPasswordConfirm     = "The password confirmation does not match."
	msgCredentials         = "These credentials do not match our records."
	msgCurrentPassword     = "The provided password does not match your current password."
	msgPasswordIncorrect   = "The provided password is incorrect."
	msgTelegramCodeInvalid = "The link code is invalid or has expired."
)

// UserStore is the persistence contract for accounts.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error)
	EmailExists(ctx context.Context, email string, exceptID uint) (bool, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	DeleteWithTasks(ctx context.Context, user *model.User) error
	SetTelegramLinkCode(ctx context.Context, user *model.User, code string, expiresAt time.Time) error
	LinkTelegram(ctx context.Context, code string, chatID int64, now time.Time) (*model.User, error)
	UnlinkTelegram(ctx context.Context, user *model.User) error
	ListLinked(ctx context.Context) ([]model.User, error)
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// ProfileInput carries the editable profile fields.
type ProfileInput struct {
	Name  string
	Email string
}

// PasswordInput is the change-password form.
type PasswordInput struct {
	CurrentPassword      string
	Password             string
	PasswordConfirmation string
}

// AuthService handles accounts, sessions and the Telegram link of a user.
type AuthService struct {
	users   UserStore
	hasher  *auth.PasswordHasher
	tokens  *auth.JWTManager
	revoker auth.Revoker
	now     func() time.Time
}

func NewAuthService(users UserStore, hasher *auth.PasswordHasher, tokens *auth.JWTManager, revoker auth.Revoker) *AuthService {
	return &AuthService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		revoker: revoker,
		now:     time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*model.User, *auth.TokenPair, error) {
	var verr model.ValidationError
	name := validateName(&verr, input.Name)
	email, err := s.validateEmail(ctx, &verr, input.Email, 0)
	if err != nil {
		return nil, nil, err
	}
	validateNewPassword(&verr, input.Password, input.PasswordConfirmation)
	if verr.HasErrors() {
		return nil, nil, &verr
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			return nil, nil, model.NewValidationError("email", msgEmailTaken)
		}
		return nil, nil, err
	}

	pair, err := s.tokens.GenerateTokenPair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Login checks credentials. Unknown email and wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, *auth.TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil, model.NewValidationError("email", msgCredentials)
		}
		return nil, nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, nil, model.NewValidationError("email", msgCredentials)
	}

	pair, err := s.tokens.GenerateTokenPair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Authenticate resolves the user behind an access token.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*model.User, *auth.Claims, error) {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.userForClaims(ctx, claims)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Refresh rotates a refresh token. The used token cannot be replayed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.User, *auth.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.userForClaims(ctx, claims)
	if err != nil {
		return nil, nil, err
	}
	if err := s.revoker.Revoke(ctx, claims.ID, claims.Expiry()); err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.GenerateTokenPair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Logout revokes the current access token and, when given, a refresh token of the same user.
func (s *AuthService) Logout(ctx context.Context, user *model.User, access *auth.Claims, refreshToken string) error {
	if err := s.revoker.Revoke(ctx, access.ID, access.Expiry()); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	refresh, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		// Already unusable.
		return nil
	}
	if id, err := refresh.UserID(); err != nil || id != user.ID {
		return nil
	}
	return s.revoker.Revoke(ctx, refresh.ID, refresh.Expiry())
}

func (s *AuthService) UpdateProfile(ctx context.Context, user *model.User, input ProfileInput) (*model.User, error) {
	var verr model.ValidationError
	name := validateName(&verr, input.Name)
	email, err := s.validateEmail(ctx, &verr, input.Email, user.ID)
	if err != nil {
		return nil, err
	}
	if verr.HasErrors() {
		return nil, &verr
	}

	updated := *user
	updated.Name = name
	updated.Email = email
	if err := s.users.UpdateProfile(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *AuthService) UpdatePassword(ctx context.Context, user *model.User, input PasswordInput) error {
	var verr model.ValidationError
	if !s.hasher.Verify(input.CurrentPassword, user.PasswordHash) {
		verr.Add("current_password", msgCurrentPassword)
	}
	validateNewPassword(&verr, input.Password, input.PasswordConfirmation)
	if verr.HasErrors() {
		return &verr
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	updated := *user
	updated.PasswordHash = hash
	if err := s.users.UpdateProfile(ctx, &updated); err != nil {
		return err
	}
	user.PasswordHash = hash
	return nil
}

// DeleteAccount removes the user with every task they own after re-checking the password.
func (s *AuthService) DeleteAccount(ctx context.Context, user *model.User, password string, access *auth.Claims) error {
	if !s.hasher.Verify(password, user.PasswordHash) {
		return model.NewValidationError("password", msgPasswordIncorrect)
	}
	if err := s.users.DeleteWithTasks(ctx, user); err != nil {
		return err
	}
	if access != nil {
		return s.revoker.Revoke(ctx, access.ID, access.Expiry())
	}
	return nil
}

// CreateTelegramLinkCode issues a one-time code the user sends to the bot with /link.
func (s *AuthService) CreateTelegramLinkCode(ctx context.Context, user *model.User) (string, time.Time, error) {
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	expiresAt := s.now().Add(TelegramLinkTTL).UTC()
	if err := s.users.SetTelegramLinkCode(ctx, user, code, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return code, expiresAt, nil
}

// LinkTelegram binds a chat to the account holding code.
func (s *AuthService) LinkTelegram(ctx context.Context, code string, chatID int64) (*model.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, model.NewValidationError("code", msgTelegramCodeInvalid)
	}
	user, err := s.users.LinkTelegram(ctx, code, chatID, s.now().UTC())
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.NewValidationError("code", msgTelegramCodeInvalid)
	}
	return user, err
}

func (s *AuthService) UnlinkTelegram(ctx context.Context, user *model.User) error {
	return s.users.UnlinkTelegram(ctx, user)
}

// UserForChat returns the account linked to a Telegram chat.
func (s *AuthService) UserForChat(ctx context.Context, chatID int64) (*model.User, error) {
	return s.users.FindByTelegramChatID(ctx, chatID)
}

func (s *AuthService) LinkedUsers(ctx context.Context) ([]model.User, error) {
	return s.users.ListLinked(ctx)
}

func (s *AuthService) userForClaims(ctx context.Context, claims *auth.Claims) (*model.User, error) {
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, auth.ErrRevokedToken
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

func validateName(verr *model.ValidationError, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		verr.Add("name", msgNameRequired)
	case utf8.RuneCountInString(name) > nameMaxLength:
		verr.Add("name", msgNameMax)
	}
	return name
}

func (s *AuthService) validateEmail(ctx context.Context, verr *model.ValidationError, email string, exceptID uint) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		verr.Add("email", msgEmailRequired)
		return email, nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > nameMaxLength {
		verr.Add("email", msgEmailInvalid)
		return email, nil
	}
	exists, err := s.users.EmailExists(ctx, email, exceptID)
	if err != nil {
		return "", err
	}
	if exists {
		verr.Add("email", msgEmailTaken)
	}
	return email, nil
}

func validateNewPassword(verr *model.ValidationError, password, confirmation string) {
	switch {
	case len(password) < passwordMinLength:
		verr.Add("password", msgPasswordMin)
	case len(password) > auth.MaxPasswordBytes:
		verr.Add("password", msgPasswordMax)
	case password != confirmation:
		verr.Add("password", msgPasswordConfirm)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
