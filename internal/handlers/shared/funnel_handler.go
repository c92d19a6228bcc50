package shared

import (
	"github.com/gin-gonic/gin"

	"visitrack/internal/middleware"
	"visitrack/internal/services"
	"visitrack/internal/utils"
	"visitrack/internal/validators"
)

type FunnelHandler struct {
	funnelService services.FunnelService
}

func NewFunnelHandler(funnelService services.FunnelService) *FunnelHandler {
	return &FunnelHandler{
		funnelService: funnelService,
	}
}

func (h *FunnelHandler) CreateFunnel(c *gin.Context) {
	var req validators.FunnelRequest
	if !bindAndValidate(c, &req) {
		return
	}

	funnel := req.ToModel()
	funnel.CreatedBy = middleware.CallerID(c)

	created, err := h.funnelService.CreateFunnel(c.Request.Context(), funnel)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, "Funnel created successfully", created)
}

func (h *FunnelHandler) ListFunnels(c *gin.Context) {
	params := utils.GetPaginationParams(c, "created_at", "name")

	funnels, total, err := h.funnelService.ListFunnels(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	}
	utils.SuccessResponseWithMeta(c, "Funnels retrieved successfully", map[string]interface{}{
		"funnels": funnels,
	}, meta)
}

func (h *FunnelHandler) GetFunnel(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	funnel, err := h.funnelService.GetFunnel(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Funnel retrieved successfully", funnel)
}

func (h *FunnelHandler) UpdateFunnel(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	var req validators.FunnelRequest
	if !bindAndValidate(c, &req) {
		return
	}

	funnel, err := h.funnelService.UpdateFunnel(c.Request.Context(), id, req.ToModel())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Funnel updated successfully", funnel)
}

func (h *FunnelHandler) DeleteFunnel(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.funnelService.DeleteFunnel(c.Request.Context(), id); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Funnel deleted successfully", nil)
}

func (h *FunnelHandler) GetFunnelAnalytics(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	from, ok := timeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := timeQuery(c, "to")
	if !ok {
		return
	}

	result, err := h.funnelService.AnalyzeFunnel(c.Request.Context(), id, services.FunnelQuery{
		From:      from,
		To:        to,
		WebsiteID: c.Query("website_id"),
	})
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Funnel analytics computed", result)
}
