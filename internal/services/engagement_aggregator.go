package services

import (
	"context"
	"fmt"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
)

// engagementAggregator rebuilds a visitor's engagement aggregate from its
// full session history.
type engagementAggregator struct {
	visitorRepo interfaces.VisitorRepository
	sessionRepo interfaces.SessionRepository
	eventRepo   interfaces.EventRepository
}

func (a *engagementAggregator) Recompute(ctx context.Context, userID string, now time.Time) (models.EngagementAggregate, error) {
	sessions, err := a.sessionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return models.EngagementAggregate{}, fmt.Errorf("failed to load session history: %w", err)
	}
	events, err := a.eventRepo.CountByUser(ctx, userID)
	if err != nil {
		return models.EngagementAggregate{}, fmt.Errorf("failed to count visitor events: %w", err)
	}

	agg := computeEngagementAggregate(sessions, events, now)
	if err := a.visitorRepo.UpdateEngagement(ctx, userID, agg); err != nil {
		return models.EngagementAggregate{}, err
	}
	return agg, nil
}

func computeEngagementAggregate(sessions []*models.Session, totalEvents int64, now time.Time) models.EngagementAggregate {
	agg := models.EngagementAggregate{
		TotalSessions: int64(len(sessions)),
		TotalEvents:   totalEvents,
	}

	for _, s := range sessions {
		duration := s.Duration
		if s.IsActive {
			// Stored duration of an open session lags behind; use now.
			tmp := *s
			tmp.RecomputeDuration(now)
			duration = tmp.Duration
		}
		agg.TotalTimeSpent += duration

		if agg.LastSessionAt == nil || s.StartTime.After(*agg.LastSessionAt) {
			start := s.StartTime
			agg.LastSessionAt = &start
		}
	}

	if agg.TotalSessions > 0 {
		agg.AverageSessionTime = agg.TotalTimeSpent / float64(agg.TotalSessions)
	}
	return agg
}
