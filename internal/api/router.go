// Package api wires together all HTTP routes for the email service.
//
// Route groups:
//   - /apps and /apikeys manage apps and their keys. They carry no
//     authentication of their own.
//   - /send is called by app clients and requires the x-api-key header.
//   - /health, /ready and /version are for probes and operators.
//
// Prometheus metrics are served on a separate port by cmd/server, not here.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mickBoat00/email-service/internal/api/admin"
	"github.com/mickBoat00/email-service/internal/api/email"
	"github.com/mickBoat00/email-service/internal/config"
	"github.com/mickBoat00/email-service/internal/middleware"
	"github.com/mickBoat00/email-service/internal/services"
)

// BuildInfo identifies the running binary; the values are set via ldflags in cmd/server.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// AppService is everything the router needs from the service layer.
type AppService interface {
	admin.AppManager
	middleware.Authenticator
	email.Sender
	Ping(ctx context.Context) error
}

var _ AppService = (*services.AppService)(nil)

// NewRouter builds the Gin engine with middleware and all routes registered
func NewRouter(cfg *config.Config, svc AppService, build BuildInfo) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler())
	router.GET("/ready", readinessHandler(svc))
	router.GET("/version", versionHandler(build))

	appHandlers := admin.NewAppHandlers(svc)
	router.POST("/apps", appHandlers.RegisterAppHandler())
	router.GET("/apps", appHandlers.ListAppsHandler())
	router.DELETE("/apps", appHandlers.DeleteAppHandler())

	router.POST("/apikeys", appHandlers.CreateAPIKeyHandler())
	router.DELETE("/apikeys", appHandlers.DeleteAPIKeyHandler())

	sendHandler := email.NewHandler(svc)
	router.POST("/send", middleware.APIKeyMiddleware(svc), sendHandler.SendHandler())

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	return router
}

// @Summary      Health check
// @Description  Liveness probe. Does not touch the app store.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Router       /health [get]
func healthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Pinger is implemented by anything the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks app store connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: app store not ready"
// @Router       /ready [get]
func readinessHandler(store Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": gin.H{"store": "unhealthy"},
				"error":  "app store not ready",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": gin.H{"store": "healthy"},
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  BuildInfo
// @Router       /version [get]
func versionHandler(build BuildInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, build)
	}
}

