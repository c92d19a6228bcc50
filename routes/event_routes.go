package routes

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"visitrack/internal/handlers/shared"
)

func SetupEventRoutes(r *gin.RouterGroup, eventHandler *shared.EventHandler, analyticsHandler *shared.AnalyticsHandler, auth, admin gin.HandlerFunc) {
	events := r.Group("/events")
	{
		// Ingestion is public
		events.POST("", eventHandler.IngestEvent)
		events.POST("/batch", eventHandler.IngestBatch)
		events.POST("/stream", eventHandler.IngestStream)
		events.POST("/stream/retry", auth, admin, eventHandler.RetryFailedStream)

		events.GET("/session/:sessionId/engagement", auth, analyticsHandler.GetSessionEngagement)
		events.GET("/users/:userId/engagement", auth, analyticsHandler.GetUserEngagement)
		events.GET("/paths", auth, gzip.Gzip(gzip.DefaultCompression), analyticsHandler.GetPathAnalysis)
		events.GET("/cohorts", auth, gzip.Gzip(gzip.DefaultCompression), analyticsHandler.GetCohortAnalysis)
		events.GET("/pages", auth, analyticsHandler.GetTopPages)
	}
}
