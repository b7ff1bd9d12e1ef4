package router

import (
	"github.com/gin-gonic/gin"
	"github.com/theluxar/auth-service/config"
	"github.com/theluxar/auth-service/internal/dto"
	"github.com/theluxar/auth-service/internal/handler"
	"github.com/theluxar/auth-service/internal/middleware"
)

type Router struct {
	authHandler       *handler.AuthHandler
	permissionHandler *handler.PermissionHandler
	healthHandler     *handler.HealthHandler

	guard  *middleware.AccessGuard
	Config *config.Config
}

func NewRouter(
	auth *handler.AuthHandler,
	permission *handler.PermissionHandler,
	health *handler.HealthHandler,
	guard *middleware.AccessGuard,
	config *config.Config,
) *Router {
	return &Router{
		authHandler:       auth,
		permissionHandler: permission,
		healthHandler:     health,
		guard:             guard,
		Config:            config,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	if r.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	_ = dto.RegisterValidations()

	router := gin.New()

	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.CORS())

	api := router.Group("/api")
	{
		api.GET("/health", r.healthHandler.BasicHealth)
		api.GET("/health/detail", r.healthHandler.HealthCheck)

		v1 := api.Group("/v1")
		{
			v1.Use(middleware.RateLimit(r.Config.RateLimit.Request, r.Config.RateLimit.Duration))

			r.authRoutes(v1)
			r.permissionRoutes(v1)
		}
	}

	return router
}
