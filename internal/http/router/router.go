package router

import (
	"context"
	"net/http"
	"time"

	apphttp "dealerdesk_backend/internal/http"
	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	apiRatePerSecond = 20
	apiRateBurst     = 40
	healthTimeout    = 2 * time.Second
)

// New builds the gin engine and mounts every module.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(httpkit.Metrics())
	engine.Use(cors.New(corsConfig(app.Config)))

	engine.GET("/api/health", func(c *gin.Context) {
		if app.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := app.Health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", httpkit.MetricsHandler())

	limiter := httpkit.NewIPRateLimiter(rate.Limit(apiRatePerSecond), apiRateBurst, app.Logger)
	v1 := engine.Group("/api/v1", limiter.RateLimit())

	protected := v1.Group("", httpkit.AuthRequired(app.Config))
	admin := protected.Group("/admin", httpkit.RequireAnyRole(
		string(domain.RoleAdmin),
		string(domain.RoleOwner),
		string(domain.RoleSuperAdmin),
	))

	rc := &apphttp.RouterContext{
		Public:    v1,
		Protected: protected,
		Admin:     admin,
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(rc)
		app.Logger.Info("module routes registered", "module", m.Name())
	}

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", httpkit.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", httpkit.HeaderRequestID},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = cfg.GetCORSOrigins()
	}
	return c
}
