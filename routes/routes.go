package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visitrack/internal/config"
	"visitrack/internal/handlers/shared"
	"visitrack/internal/middleware"
	"visitrack/internal/utils"
	"visitrack/pkg/websocket"
)

type Handlers struct {
	Visitor   *shared.VisitorHandler
	Event     *shared.EventHandler
	Analytics *shared.AnalyticsHandler
	Funnel    *shared.FunnelHandler
	Segment   *shared.SegmentHandler
	Goal      *shared.GoalHandler
	Admin     *shared.AdminHandler
	LiveFeed  *websocket.Handler
}

// HealthCheck reports dependency status. Each probe returns nil when healthy.
type HealthCheck map[string]func() error

func SetupRoutes(r *gin.Engine, h *Handlers, cfg *config.Config, checks HealthCheck) {
	r.GET("/health", healthHandler(cfg, checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.AuthRequired(cfg.Security.JWTSecret)
	admin := middleware.AdminRequired(cfg.Security.AdminRole)

	api := r.Group("/api/v1")

	SetupVisitorRoutes(api, h.Visitor, h.Admin, h.Analytics, auth, admin)
	SetupEventRoutes(api, h.Event, h.Analytics, auth, admin)
	SetupAnalyticsRoutes(api, h.Funnel, h.Segment, h.Goal, auth)

	exports := api.Group("/exports")
	exports.Use(auth, admin)
	{
		exports.POST("/events", h.Admin.ExportEvents)
	}

	if cfg.WebSocket.Enabled && h.LiveFeed != nil {
		r.GET(cfg.WebSocket.Path, auth, admin, h.LiveFeed.HandleWebSocket)
	}
}

func healthHandler(cfg *config.Config, checks HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		services := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(); err != nil {
				services[name] = "unhealthy: " + err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			services[name] = "healthy"
		}

		c.JSON(status, gin.H{
			"status":    map[bool]string{true: "healthy", false: "degraded"}[status == http.StatusOK],
			"service":   cfg.App.Name,
			"version":   utils.AppVersion,
			"services":  services,
			"timestamp": time.Now().UTC(),
		})
	}
}
