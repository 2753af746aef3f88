package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/auth"
	"task-tracker/internal/model"
	"task-tracker/internal/service"
)

const (
	ctxUserKey   = "user"
	ctxClaimsKey = "claims"
)

// RequestLogger emits one structured line per request.
func RequestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			fields := log.Fields{
				"method":     req.Method,
				"route":      c.Path(),
				"status":     res.Status,
				"latency_ms": durationToMillis(time.Since(start)),
				"request_id": res.Header().Get(echo.HeaderXRequestID),
			}
			if user, ok := c.Get(ctxUserKey).(*model.User); ok {
				fields["user_id"] = user.ID
			}
			if err != nil {
				fields["error"] = err.Error()
			}

			entry := logger.WithFields(fields)
			switch {
			case res.Status >= 500:
				entry.Error("http.request")
			case res.Status >= 400:
				entry.Warn("http.request")
			default:
				entry.Info("http.request")
			}
			return nil
		}
	}
}

// RequireAuth resolves the bearer token into the current user for downstream handlers.
func RequireAuth(accounts *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return errUnauthenticated
			}
			user, claims, err := accounts.Authenticate(c.Request().Context(), token)
			if err != nil {
				return err
			}
			c.Set(ctxUserKey, user)
			c.Set(ctxClaimsKey, claims)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func currentUser(c echo.Context) *model.User {
	user, _ := c.Get(ctxUserKey).(*model.User)
	return user
}

func currentClaims(c echo.Context) *auth.Claims {
	claims, _ := c.Get(ctxClaimsKey).(*auth.Claims)
	return claims
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
