package services

import (
	"context"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
)

type GoalService interface {
	RecordGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error)
	ListGoals(ctx context.Context, filter *interfaces.GoalFilter, params *utils.PaginationParams) ([]*models.Goal, int64, error)
	GetGoalStats(ctx context.Context, from, to *time.Time) ([]*models.GoalStats, error)
}

type goalService struct {
	goalRepo   interfaces.GoalRepository
	funnelRepo interfaces.FunnelRepository
	now        func() time.Time
}

func NewGoalService(goalRepo interfaces.GoalRepository, funnelRepo interfaces.FunnelRepository) GoalService {
	return &goalService{
		goalRepo:   goalRepo,
		funnelRepo: funnelRepo,
		now:        time.Now,
	}
}

func (s *goalService) RecordGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	details := make(map[string]string)
	if goal.Name == "" {
		details["name"] = "name is required"
	}
	if goal.UserID == "" {
		details["user_id"] = "user_id is required"
	}
	if len(details) > 0 {
		return nil, utils.NewValidationError("invalid goal", details)
	}

	if goal.FunnelID != nil {
		funnel, err := s.funnelRepo.GetByID(ctx, *goal.FunnelID)
		if err != nil {
			return nil, err
		}
		if goal.StepIndex != nil && *goal.StepIndex >= len(funnel.Steps) {
			return nil, utils.NewValidationError("invalid goal", map[string]string{
				"step_index": "step_index is outside the funnel",
			})
		}
	}

	if goal.CompletedAt.IsZero() {
		goal.CompletedAt = s.now()
	}
	if err := s.goalRepo.Create(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *goalService) ListGoals(ctx context.Context, filter *interfaces.GoalFilter, params *utils.PaginationParams) ([]*models.Goal, int64, error) {
	return s.goalRepo.List(ctx, filter, params)
}

func (s *goalService) GetGoalStats(ctx context.Context, from, to *time.Time) ([]*models.GoalStats, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, utils.NewValidationError("invalid date range", map[string]string{"to": "must not be before from"})
	}
	return s.goalRepo.Stats(ctx, from, to)
}
