package routes

import (
	"github.com/gin-gonic/gin"

	"visitrack/internal/handlers/shared"
)

// SetupVisitorRoutes registers the claim endpoint and the session admin routes.
func SetupVisitorRoutes(r *gin.RouterGroup, visitorHandler *shared.VisitorHandler, adminHandler *shared.AdminHandler, analyticsHandler *shared.AnalyticsHandler, auth, admin gin.HandlerFunc) {
	// Tracking snippet, no auth
	r.POST("/claim", visitorHandler.Claim)

	r.GET("/", auth, admin, visitorHandler.ListVisitors)
	r.GET("/users/:userId", auth, admin, visitorHandler.GetVisitor)

	sessions := r.Group("/sessions")
	sessions.Use(auth)
	{
		sessions.GET("/active", analyticsHandler.GetRealtimeUsers)
		sessions.GET("/stats", admin, analyticsHandler.GetSystemMetrics)

		sessions.DELETE("/device/:deviceType", admin, adminHandler.PurgeByDeviceType)
		sessions.DELETE("/country/:country", admin, adminHandler.PurgeByCountry)
		sessions.DELETE("/date-range", admin, adminHandler.PurgeByDateRange)
		sessions.DELETE("/duration", admin, adminHandler.PurgeByDuration)
		sessions.DELETE("/duplicates", admin, adminHandler.PurgeDuplicates)
	}
}
