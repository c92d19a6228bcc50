package shared

import (
	"github.com/gin-gonic/gin"

	"visitrack/internal/services"
	"visitrack/internal/utils"
	"visitrack/internal/validators"
)

type SegmentHandler struct {
	segmentService services.SegmentService
}

func NewSegmentHandler(segmentService services.SegmentService) *SegmentHandler {
	return &SegmentHandler{
		segmentService: segmentService,
	}
}

func (h *SegmentHandler) bindSegment(c *gin.Context) (*validators.SegmentRequest, bool) {
	var req validators.SegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return nil, false
	}
	if errs := validators.ValidateSegment(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.ToMap())
		return nil, false
	}
	return &req, true
}

func (h *SegmentHandler) CreateSegment(c *gin.Context) {
	req, ok := h.bindSegment(c)
	if !ok {
		return
	}

	segment, err := h.segmentService.CreateSegment(c.Request.Context(), req.ToModel())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, "Segment created successfully", segment)
}

func (h *SegmentHandler) ListSegments(c *gin.Context) {
	params := utils.GetPaginationParams(c, "created_at", "name", "member_count")

	segments, total, err := h.segmentService.ListSegments(c.Request.Context(), params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	}
	utils.SuccessResponseWithMeta(c, "Segments retrieved successfully", map[string]interface{}{
		"segments": segments,
	}, meta)
}

func (h *SegmentHandler) GetSegment(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	segment, err := h.segmentService.GetSegment(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Segment retrieved successfully", segment)
}

func (h *SegmentHandler) UpdateSegment(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	req, ok := h.bindSegment(c)
	if !ok {
		return
	}

	segment, err := h.segmentService.UpdateSegment(c.Request.Context(), id, req.ToModel())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Segment updated successfully", segment)
}

func (h *SegmentHandler) DeleteSegment(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.segmentService.DeleteSegment(c.Request.Context(), id); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Segment deleted successfully", nil)
}

func (h *SegmentHandler) EvaluateSegment(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.segmentService.EvaluateSegment(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Segment evaluated", result)
}
