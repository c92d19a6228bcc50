package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"visitrack/internal/config"
	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
)

const maxPathSessions = 10000

type AnalyticsService interface {
	// Engagement
	GetSessionEngagement(ctx context.Context, sessionID string) (*models.SessionEngagement, error)
	GetUserEngagement(ctx context.Context, userID, window string) (*models.UserEngagement, error)

	// Retention and navigation
	GetCohortAnalysis(ctx context.Context, granularity string, periods int) (*models.CohortAnalysis, error)
	GetPathAnalysis(ctx context.Context, from, to *time.Time, limit int) (*models.PathAnalysis, error)

	// Live and system metrics
	GetRealtimeUsers(ctx context.Context, window string) (*models.RealtimeUsers, error)
	GetSystemMetrics(ctx context.Context) (*models.SystemMetrics, error)
	GetTopPages(ctx context.Context, limit int) ([]models.TopPage, error)
}

type analyticsService struct {
	visitorRepo     interfaces.VisitorRepository
	sessionRepo     interfaces.SessionRepository
	eventRepo       interfaces.EventRepository
	pageMetricsRepo interfaces.PageMetricsRepository
	cache           CacheService
	config          *config.AnalyticsConfig
	logger          *logger.Logger
	now             func() time.Time
}

func NewAnalyticsService(
	visitorRepo interfaces.VisitorRepository,
	sessionRepo interfaces.SessionRepository,
	eventRepo interfaces.EventRepository,
	pageMetricsRepo interfaces.PageMetricsRepository,
	cache CacheService,
	cfg *config.AnalyticsConfig,
	logger *logger.Logger,
) AnalyticsService {
	return &analyticsService{
		visitorRepo:     visitorRepo,
		sessionRepo:     sessionRepo,
		eventRepo:       eventRepo,
		pageMetricsRepo: pageMetricsRepo,
		cache:           cache,
		config:          cfg,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *analyticsService) GetSessionEngagement(ctx context.Context, sessionID string) (*models.SessionEngagement, error) {
	if _, err := s.sessionRepo.GetBySessionID(ctx, sessionID); err != nil {
		return nil, err
	}

	events, err := s.eventRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := computeSessionEngagement(sessionID, events)
	return &result, nil
}

func (s *analyticsService) GetUserEngagement(ctx context.Context, userID, window string) (*models.UserEngagement, error) {
	if _, err := s.visitorRepo.GetByUserID(ctx, userID); err != nil {
		return nil, err
	}

	label, length := utils.EngagementWindow(window)
	now := s.now()
	from := now.Add(-length)

	in := userEngagementInput{
		UserID:       userID,
		Window:       label,
		WindowLength: length,
		Now:          now,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions, err := s.sessionRepo.ListByUserBetween(gctx, userID, from, now)
		in.Sessions = sessions
		return err
	})
	g.Go(func() error {
		previous, err := s.sessionRepo.ListByUserBetween(gctx, userID, from.Add(-length), from)
		in.PreviousSessions = int64(len(previous))
		return err
	})
	g.Go(func() error {
		count, err := s.eventRepo.CountByUserTypes(gctx, userID, utils.InteractionEventTypes, from, now)
		in.Interactions = count
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := computeUserEngagement(in)
	return &result, nil
}

func (s *analyticsService) GetCohortAnalysis(ctx context.Context, granularity string, periods int) (*models.CohortAnalysis, error) {
	granularity = strings.ToLower(granularity)
	if granularity == "" {
		granularity = CohortGranularityMonth
	}
	if granularity != CohortGranularityMonth && granularity != CohortGranularityWeek {
		return nil, utils.NewValidationError("invalid cohort granularity", map[string]string{
			"granularity": "must be month or week",
		})
	}
	if periods <= 0 {
		periods = s.config.CohortPeriodsDefault
	}
	if periods > maxCohortPeriods {
		periods = maxCohortPeriods
	}

	model := CohortModelObserved
	if strings.EqualFold(s.config.CohortModel, "geometric") {
		model = CohortModelGeometric
	}

	cacheKey := fmt.Sprintf("analytics:cohorts:%s:%d:%s", granularity, periods, model)
	var cached models.CohortAnalysis
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	now := s.now()
	starts := cohortPeriods(granularity, periods, now)
	end := shiftPeriod(granularity, starts[len(starts)-1], 1)

	members, err := s.visitorRepo.ListFirstSeenBetween(ctx, starts[0], end)
	if err != nil {
		return nil, err
	}

	active := make([]map[string]bool, len(starts))
	if model == CohortModelObserved {
		g, gctx := errgroup.WithContext(ctx)
		for i, start := range starts {
			g.Go(func() error {
				users, err := s.sessionRepo.ActiveUsersBetween(gctx, start, shiftPeriod(granularity, start, 1))
				if err != nil {
					return err
				}
				set := make(map[string]bool, len(users))
				for _, u := range users {
					set[u] = true
				}
				active[i] = set
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	result := &models.CohortAnalysis{
		Granularity: granularity,
		Model:       model,
		Periods:     periods,
		Cohorts:     computeCohorts(granularity, model, starts, members, active),
		GeneratedAt: now,
	}

	if err := s.cache.Set(ctx, cacheKey, result, s.config.CacheTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to cache cohort analysis")
	}
	return result, nil
}

func (s *analyticsService) GetPathAnalysis(ctx context.Context, from, to *time.Time, limit int) (*models.PathAnalysis, error) {
	now := s.now()
	end := now
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, 0, -30)
	if from != nil {
		start = *from
	}
	if end.Before(start) {
		return nil, utils.NewValidationError("invalid date range", map[string]string{"to": "must not be before from"})
	}
	if limit <= 0 {
		limit = s.config.PathLimitDefault
	}

	var (
		paths     []*interfaces.SessionPath
		converted []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		paths, err = s.eventRepo.PageViewPaths(gctx, start, end, maxPathSessions)
		return err
	})
	g.Go(func() error {
		var err error
		converted, err = s.eventRepo.SessionsWithTypes(gctx, utils.ConversionEventTypes, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	convertedSet := make(map[string]bool, len(converted))
	for _, id := range converted {
		convertedSet[id] = true
	}

	result := computePathAnalysis(paths, convertedSet, limit)
	return &result, nil
}

func (s *analyticsService) GetRealtimeUsers(ctx context.Context, window string) (*models.RealtimeUsers, error) {
	length := utils.RealtimeWindow(window, s.config.RealtimeWindowDefault)
	now := s.now()

	breakdown, err := s.sessionRepo.ActiveBreakdown(ctx, now.Add(-length))
	if err != nil {
		return nil, err
	}

	return &models.RealtimeUsers{
		Window:      realtimeWindowLabel(length),
		ActiveUsers: breakdown.ActiveUsers,
		ByDevice:    breakdown.ByDevice,
		ByCountry:   breakdown.ByCountry,
		GeneratedAt: now,
	}, nil
}

func (s *analyticsService) GetSystemMetrics(ctx context.Context) (*models.SystemMetrics, error) {
	now := s.now()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	result := &models.SystemMetrics{GeneratedAt: now}
	var sessionsLastDay, convertedLastDay int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		result.EventsLastHour, err = s.eventRepo.CountSince(gctx, hourAgo)
		return
	})
	g.Go(func() (err error) {
		result.EventsLastDay, err = s.eventRepo.CountSince(gctx, dayAgo)
		return
	})
	g.Go(func() (err error) {
		result.ActiveSessions, err = s.sessionRepo.CountActive(gctx)
		return
	})
	g.Go(func() (err error) {
		result.NewSessionsLastHour, err = s.sessionRepo.CountStartedSince(gctx, hourAgo)
		return
	})
	g.Go(func() (err error) {
		sessionsLastDay, err = s.sessionRepo.CountStartedSince(gctx, dayAgo)
		return
	})
	g.Go(func() (err error) {
		result.NewUsersLastDay, err = s.visitorRepo.CountFirstSeenSince(gctx, dayAgo)
		return
	})
	g.Go(func() (err error) {
		convertedLastDay, err = s.eventRepo.CountSessionsWithTypes(gctx, utils.ConversionEventTypes, dayAgo)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.EventsPerSecond = utils.Round2(float64(result.EventsLastHour) / time.Hour.Seconds())
	result.ConversionRate = utils.Round2(utils.Percentage(float64(convertedLastDay), float64(sessionsLastDay)))
	return result, nil
}

func (s *analyticsService) GetTopPages(ctx context.Context, limit int) ([]models.TopPage, error) {
	if limit <= 0 || limit > utils.MaxPageSize {
		limit = utils.DefaultPageSize
	}

	metrics, err := s.pageMetricsRepo.Top(ctx, limit)
	if err != nil {
		return nil, err
	}

	pages := make([]models.TopPage, 0, len(metrics))
	for _, m := range metrics {
		pages = append(pages, models.TopPage{
			URL:             m.URL,
			Views:           m.Views,
			AverageDuration: utils.Round2(m.AverageDuration()),
		})
	}
	return pages, nil
}

func realtimeWindowLabel(d time.Duration) string {
	switch d {
	case 5 * time.Minute:
		return "5m"
	case 15 * time.Minute:
		return "15m"
	case time.Hour:
		return "1h"
	case 24 * time.Hour:
		return "24h"
	}
	return d.String()
}
