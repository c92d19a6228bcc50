package shared

import (
	"github.com/gin-gonic/gin"

	"visitrack/internal/services"
	"visitrack/internal/utils"
)

type AnalyticsHandler struct {
	analyticsService services.AnalyticsService
}

func NewAnalyticsHandler(analyticsService services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
	}
}

func (h *AnalyticsHandler) GetSessionEngagement(c *gin.Context) {
	result, err := h.analyticsService.GetSessionEngagement(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Session engagement retrieved", result)
}

func (h *AnalyticsHandler) GetUserEngagement(c *gin.Context) {
	result, err := h.analyticsService.GetUserEngagement(c.Request.Context(), c.Param("userId"), c.DefaultQuery("window", "30d"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "User engagement retrieved", result)
}

func (h *AnalyticsHandler) GetPathAnalysis(c *gin.Context) {
	from, ok := timeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := timeQuery(c, "to")
	if !ok {
		return
	}

	result, err := h.analyticsService.GetPathAnalysis(c.Request.Context(), from, to, intQuery(c, "limit", 0))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Path analysis retrieved", result)
}

func (h *AnalyticsHandler) GetCohortAnalysis(c *gin.Context) {
	result, err := h.analyticsService.GetCohortAnalysis(c.Request.Context(), c.DefaultQuery("granularity", services.CohortGranularityMonth), intQuery(c, "periods", 0))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Cohort analysis retrieved", result)
}

func (h *AnalyticsHandler) GetTopPages(c *gin.Context) {
	pages, err := h.analyticsService.GetTopPages(c.Request.Context(), intQuery(c, "limit", utils.DefaultPageSize))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Top pages retrieved", map[string]interface{}{
		"pages": pages,
	})
}

// GetRealtimeUsers serves GET /sessions/active.
func (h *AnalyticsHandler) GetRealtimeUsers(c *gin.Context) {
	result, err := h.analyticsService.GetRealtimeUsers(c.Request.Context(), c.Query("window"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Active users retrieved", result)
}

// GetSystemMetrics serves GET /sessions/stats.
func (h *AnalyticsHandler) GetSystemMetrics(c *gin.Context) {
	result, err := h.analyticsService.GetSystemMetrics(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "System metrics retrieved", result)
}
