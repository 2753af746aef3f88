package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/service"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the services the HTTP layer delegates to.
type Deps struct {
	Tasks    *service.TaskService
	Accounts *service.AuthService
	Health   map[string]HealthCheck
}

// NewServer builds an echo instance with the shared middleware stack and every route registered.
func NewServer(deps Deps, logger *log.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = SonicSerializer{}
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(RequestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.BodyLimit("64K"))

	Register(e, deps)
	return e
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps) {
	requireAuth := RequireAuth(deps.Accounts)

	e.GET("/healthz", healthz(deps.Health))

	a := e.Group("/auth")
	a.POST("/register", register(deps.Accounts))
	a.POST("/login", login(deps.Accounts))
	a.POST("/refresh", refresh(deps.Accounts))
	a.POST("/logout", logout(deps.Accounts), requireAuth)

	t := e.Group("/tasks", requireAuth)
	t.GET("", listTasks(deps.Tasks))
	t.POST("", createTask(deps.Tasks))
	t.GET("/stats", taskStats(deps.Tasks))
	t.GET("/:id", showTask(deps.Tasks))
	t.PUT("/:id", updateTask(deps.Tasks))
	t.PATCH("/:id", updateTask(deps.Tasks))
	t.DELETE("/:id", deleteTask(deps.Tasks))
	t.POST("/:id/status", changeStatus(deps.Tasks))

	e.GET("/search/tasks", searchTasks(deps.Tasks), requireAuth)

	p := e.Group("/profile", requireAuth)
	p.GET("", showProfile())
	p.PATCH("", updateProfile(deps.Accounts))
	p.DELETE("", deleteProfile(deps.Accounts))
	p.PUT("/password", updatePassword(deps.Accounts))
	p.POST("/telegram", linkTelegram(deps.Accounts))
	p.DELETE("/telegram", unlinkTelegram(deps.Accounts))
}
