package services

import (
	"context"
	"time"

	"visitrack/internal/repositories/interfaces"
	"visitrack/pkg/logger"
	"visitrack/pkg/metrics"
	"visitrack/pkg/websocket"
)

const reaperBatchSize = 500

type ReaperConfig struct {
	Interval       time.Duration
	Inactivity     time.Duration
	PresenceExpiry time.Duration
}

type SweepResult struct {
	SessionsClosed       int           `json:"sessions_closed"`
	VisitorsOffline      int64         `json:"visitors_offline"`
	PresenceExpired      int64         `json:"presence_expired"`
	EngagementRecomputed int           `json:"engagement_recomputed"`
	Errors               int           `json:"errors"`
	Duration             time.Duration `json:"duration"`
}

// PresenceReaper closes sessions that stopped pinging and expires stale
// presence records.
type PresenceReaper struct {
	sessionRepo  interfaces.SessionRepository
	visitorRepo  interfaces.VisitorRepository
	presenceRepo interfaces.PresenceRepository
	engagement   *engagementAggregator
	labeler      *SessionLabeler
	feed         LiveFeed
	config       ReaperConfig
	logger       *logger.Logger
	now          func() time.Time
}

func NewPresenceReaper(
	sessionRepo interfaces.SessionRepository,
	visitorRepo interfaces.VisitorRepository,
	presenceRepo interfaces.PresenceRepository,
	eventRepo interfaces.EventRepository,
	labeler *SessionLabeler,
	feed LiveFeed,
	config ReaperConfig,
	logger *logger.Logger,
) *PresenceReaper {
	if config.Interval <= 0 {
		config.Interval = 90 * time.Second
	}
	return &PresenceReaper{
		sessionRepo:  sessionRepo,
		visitorRepo:  visitorRepo,
		presenceRepo: presenceRepo,
		engagement: &engagementAggregator{
			visitorRepo: visitorRepo,
			sessionRepo: sessionRepo,
			eventRepo:   eventRepo,
		},
		labeler: labeler,
		feed:    feed,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *PresenceReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.WithField("interval", r.config.Interval.String()).Info("Presence reaper started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Presence reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				metrics.BackgroundErrors.WithLabelValues("reaper").Inc()
				r.logger.WithError(err).Error("Presence sweep failed")
			}
		}
	}
}

func (r *PresenceReaper) Sweep(ctx context.Context) (*SweepResult, error) {
	start := r.now()
	cutoff := start.Add(-r.config.Inactivity)
	result := &SweepResult{}
	affected := make(map[string]bool)

	for {
		stale, err := r.sessionRepo.FindStale(ctx, cutoff, reaperBatchSize)
		if err != nil {
			return result, err
		}

		progressed := false
		for _, session := range stale {
			session.Close(start)
			r.labeler.Label(ctx, session, false)

			closed, err := r.sessionRepo.CloseIfStale(ctx, session, cutoff, start)
			if err != nil {
				result.Errors++
				r.logger.WithError(err).WithSessionID(session.SessionID).Warn("Failed to close stale session")
				continue
			}
			if !closed {
				continue
			}

			progressed = true
			result.SessionsClosed++
			affected[session.UserID] = true
			if r.feed != nil {
				r.feed.Publish(websocket.RoomSessions, "session_ended", map[string]interface{}{
					"user_id":    session.UserID,
					"session_id": session.SessionID,
					"duration":   session.Duration,
					"reason":     "inactive",
				})
			}
		}

		if len(stale) < reaperBatchSize || !progressed {
			break
		}
	}

	if len(affected) > 0 {
		users := make([]string, 0, len(affected))
		for u := range affected {
			users = append(users, u)
		}

		offline, err := r.visitorRepo.MarkOffline(ctx, users, cutoff)
		if err != nil {
			result.Errors++
			r.logger.WithError(err).Warn("Failed to mark visitors offline")
		}
		result.VisitorsOffline = offline

		for _, userID := range users {
			if _, err := r.engagement.Recompute(ctx, userID, start); err != nil {
				result.Errors++
				r.logger.WithError(err).WithUserID(userID).Warn("Failed to recompute engagement")
				continue
			}
			result.EngagementRecomputed++
		}
	}

	expired, err := r.presenceRepo.ExpireStale(ctx, start.Add(-r.config.PresenceExpiry))
	if err != nil {
		result.Errors++
		r.logger.WithError(err).Warn("Failed to expire presence")
	}
	result.PresenceExpired = expired

	result.Duration = r.now().Sub(start)
	metrics.ReaperSessionsClosed.Add(float64(result.SessionsClosed))
	metrics.ReaperPresenceExpired.Add(float64(result.PresenceExpired))

	r.logger.WithFields(map[string]interface{}{
		"sessions_closed":       result.SessionsClosed,
		"visitors_offline":      result.VisitorsOffline,
		"presence_expired":      result.PresenceExpired,
		"engagement_recomputed": result.EngagementRecomputed,
		"errors":                result.Errors,
		"duration_ms":           result.Duration.Milliseconds(),
	}).Info("Presence sweep completed")

	return result, nil
}
