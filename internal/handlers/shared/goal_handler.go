package shared

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/services"
	"visitrack/internal/utils"
	"visitrack/internal/validators"
)

type GoalHandler struct {
	goalService services.GoalService
}

func NewGoalHandler(goalService services.GoalService) *GoalHandler {
	return &GoalHandler{
		goalService: goalService,
	}
}

func (h *GoalHandler) RecordGoal(c *gin.Context) {
	var req validators.GoalRequest
	if !bindAndValidate(c, &req) {
		return
	}

	goal, err := h.goalService.RecordGoal(c.Request.Context(), req.ToModel(time.Now()))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.CreatedResponse(c, "Goal recorded", goal)
}

func (h *GoalHandler) ListGoals(c *gin.Context) {
	filter := &interfaces.GoalFilter{
		UserID: c.Query("user_id"),
		Name:   c.Query("name"),
	}
	if raw := c.Query("funnel_id"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			utils.ValidationErrorResponse(c, map[string]string{"funnel_id": "Invalid ID format"})
			return
		}
		filter.FunnelID = &id
	}

	params := utils.GetPaginationParams(c, "completed_at", "value", "name")
	goals, total, err := h.goalService.ListGoals(c.Request.Context(), filter, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	}
	utils.SuccessResponseWithMeta(c, "Goals retrieved successfully", map[string]interface{}{
		"goals": goals,
	}, meta)
}

func (h *GoalHandler) GetGoalStats(c *gin.Context) {
	from, ok := timeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := timeQuery(c, "to")
	if !ok {
		return
	}

	stats, err := h.goalService.GetGoalStats(c.Request.Context(), from, to)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Goal stats retrieved", map[string]interface{}{
		"goals": stats,
	})
}
