package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kaiin-app/authcore/internal/api/handler"
	"github.com/kaiin-app/authcore/internal/api/middleware"
	"github.com/kaiin-app/authcore/internal/core/ports"
	mongoaudit "github.com/kaiin-app/authcore/internal/infrastructure/db/mongo"
)

// RouterDeps carries everything the HTTP surface needs. Audit, db and rdb
// may be nil when the optional hook stores are not configured; the affected
// routes degrade instead of panicking.
type RouterDeps struct {
	Sessions        ports.SessionService
	Audit           *mongoaudit.AuditRepository
	MongoDB         *mongo.Database
	Redis           *redis.Client
	InternalKeyHash string
	Log             zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps RouterDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("authcore"))

	// --- Session routes ---
	sessionHandler := handler.NewSessionHandler(deps.Sessions)
	e.POST("/session", sessionHandler.Login)
	e.DELETE("/session", sessionHandler.Logout)
	e.GET("/session/user", sessionHandler.Current)
	e.POST("/session/refresh", sessionHandler.Refresh)
	e.POST("/signup", sessionHandler.SignUp)
	e.POST("/recover", sessionHandler.Recover)
	e.PUT("/password", sessionHandler.UpdatePassword)

	// --- Internal routes (pre-shared key + elevated role) ---
	if deps.Audit != nil {
		internalHandler := handler.NewInternalHandler(deps.Audit, deps.Sessions)
		internal := e.Group("/internal",
			middleware.InternalKey(deps.InternalKeyHash),
		)
		internal.GET("/audit/recent", internalHandler.RecentAudit,
			middleware.RequireElevated(deps.Sessions.CurrentUser))
		internal.POST("/session/reset", internalHandler.ResetSession)
	}

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.MongoDB, deps.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are hook stores up?
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}
