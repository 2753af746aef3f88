package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"task-tracker/internal/auth"
	"task-tracker/internal/model"
	"task-tracker/internal/service"
)

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type profileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type passwordRequest struct {
	CurrentPassword      string `json:"current_password"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type deleteProfileRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	User   *model.User     `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

type telegramLinkResponse struct {
	Code      string    `json:"code"`
	Command   string    `json:"command"`
	ExpiresAt time.Time `json:"expires_at"`
}

func register(accounts *service.AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		user, tokens, err := accounts.Register(c.Request().Context(), service.RegisterInput{
			Name:                 req.Name,
			Email:                req.Email,
			Password:             req.Password,
			PasswordConfirmation: req.PasswordConfirmation,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, sessionResponse{User: user, Tokens: tokens})
	}
}

func login(accounts *service.AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		user, tokens, err := accounts.Login(c.Request().Context(), req.Email, req.Password)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, sessionResponse{User: user, Tokens: tokens})
	}
}

func refresh(accounts *service.AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req refreshRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if req.RefreshToken == "" {
			return errUnauthenticated
		}
		user, tokens, err := accounts.Refresh(c.Request().Context(), req.RefreshToken)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, sessionResponse{User: user, Tokens: tokens})
	}
}

func logout(accounts *service.AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req refreshRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if err := accounts.Logout(c.Request().Context(), currentUser(c), currentClaims(c), req.RefreshToken); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func showProfile() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, currentUser(c))
	}
}

func updateProfile(accounts *service.AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req profileRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		user, err := accounts.UpdateProfile(c.Request().Context(), currentUser(c), service.ProfileInput{
			Name:  req.Name,
			Email: req.Email,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, user)
	}
}

func updatePassword(accounts *service.AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req passwordRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		err := accounts.UpdatePassword(c.Request().Context(), currentUser(c), service.PasswordInput{
			CurrentPassword:      req.CurrentPassword,
			Password:             req.Password,
			PasswordConfirmation: req.PasswordConfirmation,
		})
		if err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteProfile(accounts *service.AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req deleteProfileRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if err := accounts.DeleteAccount(c.Request().Context(), currentUser(c), req.Password, currentClaims(c)); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func linkTelegram(accounts *service.AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		code, expiresAt, err := accounts.CreateTelegramLinkCode(c.Request().Context(), currentUser(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, telegramLinkResponse{
			Code:      code,
			Command:   "/link " + code,
			ExpiresAt: expiresAt,
		})
	}
}

func unlinkTelegram(accounts *service.AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := accounts.UnlinkTelegram(c.Request().Context(), currentUser(c)); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}
