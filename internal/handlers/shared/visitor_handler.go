package shared

import (
	"time"

	"github.com/gin-gonic/gin"

	"visitrack/internal/services"
	"visitrack/internal/utils"
	"visitrack/internal/validators"
)

type VisitorHandler struct {
	visitorService services.VisitorService
}

func NewVisitorHandler(visitorService services.VisitorService) *VisitorHandler {
	return &VisitorHandler{
		visitorService: visitorService,
	}
}

// Claim records one visitor ping and returns the resulting session state.
func (h *VisitorHandler) Claim(c *gin.Context) {
	var req validators.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateClaim(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.ToMap())
		return
	}

	action := req.ToAction(time.Now())
	action.ClientIP = c.ClientIP()
	action.Hints = localeHints(c)
	if action.Device.UserAgent == "" {
		action.Device.UserAgent = c.GetHeader("User-Agent")
	}

	result, err := h.visitorService.RecordVisitorAction(c.Request.Context(), &action)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Visitor action recorded", result)
}

func (h *VisitorHandler) ListVisitors(c *gin.Context) {
	params := utils.GetPaginationParams(c, "last_active_at", "first_seen_at", "engagement.total_sessions", "engagement.total_time_spent")

	visitors, total, err := h.visitorService.ListVisitors(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	}
	utils.SuccessResponseWithMeta(c, "Visitors retrieved successfully", map[string]interface{}{
		"visitors": visitors,
	}, meta)
}

func (h *VisitorHandler) GetVisitor(c *gin.Context) {
	detail, err := h.visitorService.GetVisitor(c.Request.Context(), c.Param("userId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Visitor retrieved successfully", detail)
}
