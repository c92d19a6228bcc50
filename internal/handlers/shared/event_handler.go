package shared

import (
	"github.com/gin-gonic/gin"

	"visitrack/internal/models"
	"visitrack/internal/services"
	"visitrack/internal/utils"
	"visitrack/internal/validators"
)

type EventHandler struct {
	ingestionService services.IngestionService
}

func NewEventHandler(ingestionService services.IngestionService) *EventHandler {
	return &EventHandler{
		ingestionService: ingestionService,
	}
}

// IngestEvent stores one event, or queues it when batch_mode is set.
func (h *EventHandler) IngestEvent(c *gin.Context) {
	var req validators.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateEvent(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.ToMap())
		return
	}

	event, err := h.ingestionService.IngestEvent(c.Request.Context(), req.ToModel(models.IngestSourceSingle), requestMeta(c), req.BatchMode)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	if req.BatchMode {
		utils.AcceptedResponse(c, "Event queued", event)
		return
	}
	utils.CreatedResponse(c, "Event recorded", event)
}

func (h *EventHandler) IngestBatch(c *gin.Context) {
	var req validators.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateBatch(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.ToMap())
		return
	}

	items := make([]services.BatchItem, len(req.Events))
	for i := range req.Events {
		item := services.BatchItem{}
		if errs := validators.ValidateEvent(&req.Events[i]); len(errs) > 0 {
			item.Rejection = errs.ToMap()
		}
		item.Event = req.Events[i].ToModel(models.IngestSourceBatch)
		items[i] = item
	}

	result, err := h.ingestionService.IngestBatch(c.Request.Context(), items, requestMeta(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	if result.Failed > 0 {
		utils.PartialResponse(c, "Batch processed with failures", result)
		return
	}
	utils.SuccessResponse(c, "Batch processed", result)
}

func (h *EventHandler) IngestStream(c *gin.Context) {
	var req validators.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateEvent(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.ToMap())
		return
	}

	event, err := h.ingestionService.IngestStream(c.Request.Context(), req.ToModel(models.IngestSourceStream), requestMeta(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.AcceptedResponse(c, "Event accepted for processing", event)
}

func (h *EventHandler) RetryFailedStream(c *gin.Context) {
	result, err := h.ingestionService.RetryFailedStreamEvents(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Failed stream events reprocessed", result)
}
