package shared

import (
	"github.com/gin-gonic/gin"

	"visitrack/internal/middleware"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/services"
	"visitrack/internal/utils"
	"visitrack/internal/validators"
)

// AdminHandler serves the maintenance purges and data exports.
type AdminHandler struct {
	maintenanceService services.MaintenanceService
	exportService      services.ExportService
}

func NewAdminHandler(maintenanceService services.MaintenanceService, exportService services.ExportService) *AdminHandler {
	return &AdminHandler{
		maintenanceService: maintenanceService,
		exportService:      exportService,
	}
}

func (h *AdminHandler) PurgeByDeviceType(c *gin.Context) {
	result, err := h.maintenanceService.PurgeByDeviceType(c.Request.Context(), middleware.CallerID(c), c.Param("deviceType"))
	h.respondPurge(c, result, err)
}

func (h *AdminHandler) PurgeByCountry(c *gin.Context) {
	result, err := h.maintenanceService.PurgeByCountry(c.Request.Context(), middleware.CallerID(c), c.Param("country"))
	h.respondPurge(c, result, err)
}

func (h *AdminHandler) PurgeByDateRange(c *gin.Context) {
	var req validators.DateRangePurgeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.maintenanceService.PurgeByDateRange(c.Request.Context(), middleware.CallerID(c), req.From, req.To)
	h.respondPurge(c, result, err)
}

func (h *AdminHandler) PurgeByDuration(c *gin.Context) {
	var req validators.DurationPurgeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.maintenanceService.PurgeByDuration(c.Request.Context(), middleware.CallerID(c), req.MinSeconds, req.MaxSeconds)
	h.respondPurge(c, result, err)
}

func (h *AdminHandler) PurgeDuplicates(c *gin.Context) {
	result, err := h.maintenanceService.PurgeDuplicates(c.Request.Context(), middleware.CallerID(c))
	h.respondPurge(c, result, err)
}

func (h *AdminHandler) respondPurge(c *gin.Context, result interface{}, err error) {
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Sessions purged", result)
}

func (h *AdminHandler) ExportEvents(c *gin.Context) {
	var req validators.ExportRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.exportService.ExportEvents(c.Request.Context(), middleware.CallerID(c), &interfaces.EventFilter{
		From:      req.From,
		To:        req.To,
		EventType: req.EventType,
	}, req.Limit)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, "Export created", result)
}
