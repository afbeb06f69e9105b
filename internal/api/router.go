package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/vamosfrotas/fleet-access/internal/api/handler"
	"github.com/vamosfrotas/fleet-access/internal/api/middleware"
	"github.com/vamosfrotas/fleet-access/internal/api/session"
	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Access   ports.AccessService
	Sessions *session.Manager
	// Checks feed the readiness endpoint, keyed by dependency name.
	Checks map[string]handler.Check
	Log    zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("fleet_access"))

	authHandler := handler.NewAuthHandler(deps.Access, deps.Sessions)
	adminHandler := handler.NewAdminHandler(deps.Access)
	authMiddleware := middleware.Auth(deps.Sessions)

	// --- Auth routes ---
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/reset/request", authHandler.RequestReset)
	e.POST("/auth/reset/complete", authHandler.CompleteReset)

	// Follow-up steps accept any session the login produced.
	steps := e.Group("/auth", authMiddleware)
	steps.POST("/terms", authHandler.AcceptTerms,
		middleware.RequireState(domain.StateTermsPending, domain.StatePasswordExpired, domain.StateAuthenticated))
	steps.POST("/password", authHandler.ChangePassword,
		middleware.RequireState(domain.StatePasswordExpired, domain.StateAuthenticated))

	// --- Admin routes ---
	admin := e.Group("/admin", authMiddleware, middleware.RequireState(domain.StateAuthenticated))
	admin.GET("/users", adminHandler.List)
	admin.POST("/users", adminHandler.Create)
	admin.POST("/users/:username/approve", adminHandler.Approve)
	admin.POST("/users/:username/reset-link", adminHandler.SendResetLink)
	admin.PUT("/users/:username/admin", adminHandler.SetAdmin)
	admin.PUT("/users/:username/status", adminHandler.SetStatus)
	admin.DELETE("/users/:username", adminHandler.Delete)

	// --- Health checks (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.Checks, deps.Log)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", readinessHandler.Readiness)

	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
