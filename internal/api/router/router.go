package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alephdeploy/control-plane/internal/api/handlers"
	"github.com/alephdeploy/control-plane/internal/api/middleware"
	"github.com/alephdeploy/control-plane/internal/auth"
)

type RouterDeps struct {
	CatalogHandler    *handlers.CatalogHandler
	AuthHandler       *handlers.AuthHandler
	NetworkHandler    *handlers.NetworkHandler
	DeploymentHandler *handlers.DeploymentHandler
	AuthService       *auth.Service
	NonceLimiter      *auth.ClientLimiter
	VerifyLimiter     *auth.ClientLimiter
	Logger            *zap.Logger
}

func SetupRouter(deps *RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(deps.Logger))

	router.GET("/health", handlers.Health)

	api := router.Group("/api")
	{
		api.GET("/apps", deps.CatalogHandler.ListApps)
		api.GET("/apps/:id", deps.CatalogHandler.GetApp)

		api.POST("/auth/nonce", middleware.RateLimit(deps.NonceLimiter), deps.AuthHandler.Nonce)
		api.POST("/auth/verify", middleware.RateLimit(deps.VerifyLimiter), deps.AuthHandler.Verify)
		api.POST("/auth/logout", deps.AuthHandler.Logout)

		api.GET("/credits/:address", deps.NetworkHandler.GetBalance)
		api.GET("/ssh-keys/:address", deps.NetworkHandler.ListSSHKeys)
		api.GET("/crns", deps.NetworkHandler.ListComputeNodes)
		api.GET("/allocation/:instance_hash", deps.NetworkHandler.LookupAllocation)
		api.GET("/marketplace-key", deps.NetworkHandler.MarketplaceKey)

		api.GET("/deploy/ssh/:deployment_id", deps.DeploymentHandler.Progress)
		api.GET("/auth/session", deps.AuthHandler.Session)

		session := api.Group("")
		session.Use(middleware.RequireSession(deps.AuthService))
		{
			session.POST("/notify-allocation", deps.NetworkHandler.NotifyAllocation)

			session.POST("/deploy/ssh", deps.DeploymentHandler.Create)
			session.GET("/deployments/my", deps.DeploymentHandler.MyDeployments)
			session.GET("/deployments/:id/status", deps.DeploymentHandler.Status)
			session.GET("/deployments/:id/events", deps.DeploymentHandler.Events)
			session.POST("/deployments/:id/stop", deps.DeploymentHandler.Stop)
			session.DELETE("/deployments/:id", deps.DeploymentHandler.Remove)
		}
	}

	return router
}
