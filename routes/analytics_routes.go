package routes

import (
	"github.com/gin-gonic/gin"

	"visitrack/internal/handlers/shared"
)

// SetupAnalyticsRoutes registers funnel, segment and goal endpoints.
func SetupAnalyticsRoutes(r *gin.RouterGroup, funnelHandler *shared.FunnelHandler, segmentHandler *shared.SegmentHandler, goalHandler *shared.GoalHandler, auth gin.HandlerFunc) {
	funnels := r.Group("/funnels")
	funnels.Use(auth)
	{
		funnels.POST("", funnelHandler.CreateFunnel)
		funnels.GET("", funnelHandler.ListFunnels)
		funnels.GET("/:id", funnelHandler.GetFunnel)
		funnels.PUT("/:id", funnelHandler.UpdateFunnel)
		funnels.DELETE("/:id", funnelHandler.DeleteFunnel)
		funnels.GET("/:id/analytics", funnelHandler.GetFunnelAnalytics)
	}

	segments := r.Group("/segments")
	segments.Use(auth)
	{
		segments.POST("", segmentHandler.CreateSegment)
		segments.GET("", segmentHandler.ListSegments)
		segments.GET("/:id", segmentHandler.GetSegment)
		segments.PUT("/:id", segmentHandler.UpdateSegment)
		segments.DELETE("/:id", segmentHandler.DeleteSegment)
		segments.POST("/:id/evaluate", segmentHandler.EvaluateSegment)
	}

	goals := r.Group("/goals")
	goals.Use(auth)
	{
		goals.POST("", goalHandler.RecordGoal)
		goals.GET("", goalHandler.ListGoals)
		goals.GET("/stats", goalHandler.GetGoalStats)
	}
}
