package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
)

// FunnelQuery narrows a funnel computation. An empty WebsiteID falls back to
// the funnel's own website.
type FunnelQuery struct {
	From      *time.Time
	To        *time.Time
	WebsiteID string
}

type FunnelService interface {
	CreateFunnel(ctx context.Context, funnel *models.Funnel) (*models.Funnel, error)
	GetFunnel(ctx context.Context, id primitive.ObjectID) (*models.Funnel, error)
	ListFunnels(ctx context.Context, params *utils.PaginationParams) ([]*models.Funnel, int64, error)
	UpdateFunnel(ctx context.Context, id primitive.ObjectID, update *models.Funnel) (*models.Funnel, error)
	DeleteFunnel(ctx context.Context, id primitive.ObjectID) error

	AnalyzeFunnel(ctx context.Context, id primitive.ObjectID, query FunnelQuery) (*models.FunnelAnalytics, error)
}

type funnelService struct {
	funnelRepo interfaces.FunnelRepository
	eventRepo  interfaces.EventRepository
	logger     *logger.Logger
	now        func() time.Time
}

func NewFunnelService(funnelRepo interfaces.FunnelRepository, eventRepo interfaces.EventRepository, logger *logger.Logger) FunnelService {
	return &funnelService{
		funnelRepo: funnelRepo,
		eventRepo:  eventRepo,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *funnelService) CreateFunnel(ctx context.Context, funnel *models.Funnel) (*models.Funnel, error) {
	if err := validateFunnel(funnel); err != nil {
		return nil, err
	}
	if err := s.funnelRepo.Create(ctx, funnel); err != nil {
		return nil, err
	}
	return funnel, nil
}

func (s *funnelService) GetFunnel(ctx context.Context, id primitive.ObjectID) (*models.Funnel, error) {
	return s.funnelRepo.GetByID(ctx, id)
}

func (s *funnelService) ListFunnels(ctx context.Context, params *utils.PaginationParams) ([]*models.Funnel, int64, error) {
	return s.funnelRepo.List(ctx, params)
}

func (s *funnelService) UpdateFunnel(ctx context.Context, id primitive.ObjectID, update *models.Funnel) (*models.Funnel, error) {
	if err := validateFunnel(update); err != nil {
		return nil, err
	}

	existing, err := s.funnelRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = update.Name
	existing.Description = update.Description
	existing.WebsiteID = update.WebsiteID
	existing.Steps = update.Steps
	existing.IsActive = update.IsActive
	existing.Metrics = nil

	if err := s.funnelRepo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *funnelService) DeleteFunnel(ctx context.Context, id primitive.ObjectID) error {
	return s.funnelRepo.Delete(ctx, id)
}

func (s *funnelService) AnalyzeFunnel(ctx context.Context, id primitive.ObjectID, query FunnelQuery) (*models.FunnelAnalytics, error) {
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return nil, utils.NewValidationError("invalid date range", map[string]string{"to": "must not be before from"})
	}

	funnel, err := s.funnelRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	filter := &interfaces.EventFilter{
		From:      query.From,
		To:        query.To,
		WebsiteID: utils.CoalesceString(query.WebsiteID, funnel.WebsiteID),
	}

	stepUsers := make([]map[string]interfaces.StepTiming, len(funnel.Steps))
	g, gctx := errgroup.WithContext(ctx)
	for i, step := range funnel.Steps {
		g.Go(func() error {
			users, err := s.eventRepo.StepUsers(gctx, step, filter)
			stepUsers[i] = users
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := computeFunnel(funnel, stepUsers)
	result.From = query.From
	result.To = query.To
	result.ComputedAt = s.now()

	if err := s.funnelRepo.SaveMetrics(ctx, id, result); err != nil {
		s.logger.WithError(err).WithField("funnel_id", id.Hex()).Warn("Failed to cache funnel metrics")
	}
	return result, nil
}

func validateFunnel(funnel *models.Funnel) error {
	details := make(map[string]string)
	if funnel.Name == "" {
		details["name"] = "name is required"
	}
	if len(funnel.Steps) == 0 {
		details["steps"] = "at least one step is required"
	}
	for _, step := range funnel.Steps {
		if step.EventType == "" {
			details["steps"] = "every step needs an event_type"
			break
		}
	}
	if len(details) > 0 {
		return utils.NewValidationError("invalid funnel", details)
	}
	return nil
}

// computeFunnel derives step conversion from the distinct users per step.
func computeFunnel(funnel *models.Funnel, stepUsers []map[string]interfaces.StepTiming) *models.FunnelAnalytics {
	result := &models.FunnelAnalytics{
		FunnelID: funnel.ID.Hex(),
		Steps:    make([]models.FunnelStepResult, len(funnel.Steps)),
	}

	var previous int64
	for i, step := range funnel.Steps {
		users := int64(len(stepUsers[i]))
		conversion := 100.0
		if i > 0 {
			conversion = utils.Round2(utils.Percentage(float64(users), float64(previous)))
		}
		result.Steps[i] = models.FunnelStepResult{
			Index:          i,
			Name:           utils.CoalesceString(step.Name, step.EventName, step.EventType),
			EventType:      step.EventType,
			EventName:      step.EventName,
			Users:          users,
			ConversionRate: conversion,
			DropOffRate:    utils.Round2(100 - conversion),
		}
		previous = users
	}

	if len(stepUsers) == 0 {
		return result
	}

	first := stepUsers[0]
	last := stepUsers[len(stepUsers)-1]
	result.Entrants = int64(len(first))
	result.Completions = int64(len(last))
	result.OverallConversion = utils.Round2(utils.Percentage(float64(result.Completions), float64(result.Entrants)))

	var total float64
	var completed int
	for userID, end := range last {
		start, ok := first[userID]
		if !ok {
			continue
		}
		elapsed := end.Last.Sub(start.First).Seconds()
		if elapsed < 0 {
			continue
		}
		total += elapsed
		completed++
	}
	if completed > 0 {
		result.AverageCompletionTime = utils.Round2(total / float64(completed))
	}
	return result
}
