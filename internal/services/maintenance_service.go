package services

import (
	"context"
	"strings"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
)

// MaintenanceService runs operator bulk purges. Every purge is audited.
type MaintenanceService interface {
	PurgeByDeviceType(ctx context.Context, callerID, deviceType string) (*models.PurgeResult, error)
	PurgeByCountry(ctx context.Context, callerID, country string) (*models.PurgeResult, error)
	PurgeByDateRange(ctx context.Context, callerID string, from, to time.Time) (*models.PurgeResult, error)
	PurgeByDuration(ctx context.Context, callerID string, minSeconds, maxSeconds *float64) (*models.PurgeResult, error)
	PurgeDuplicates(ctx context.Context, callerID string) (*models.PurgeResult, error)
}

type maintenanceService struct {
	sessionRepo interfaces.SessionRepository
	audit       *logger.AuditLogger
	logger      *logger.Logger
}

func NewMaintenanceService(sessionRepo interfaces.SessionRepository, log *logger.Logger) MaintenanceService {
	return &maintenanceService{
		sessionRepo: sessionRepo,
		audit:       logger.NewAuditLoggerFrom(log),
		logger:      log,
	}
}

func (s *maintenanceService) PurgeByDeviceType(ctx context.Context, callerID, deviceType string) (*models.PurgeResult, error) {
	deviceType = strings.ToLower(strings.TrimSpace(deviceType))
	if deviceType == "" {
		return nil, utils.NewValidationError("device type is required", map[string]string{"device_type": "required"})
	}

	deleted, err := s.sessionRepo.DeleteByDeviceType(ctx, deviceType)
	if err != nil {
		return nil, err
	}
	return s.record(callerID, "device_type="+deviceType, deleted), nil
}

func (s *maintenanceService) PurgeByCountry(ctx context.Context, callerID, country string) (*models.PurgeResult, error) {
	country = strings.TrimSpace(country)
	if country == "" {
		return nil, utils.NewValidationError("country is required", map[string]string{"country": "required"})
	}

	deleted, err := s.sessionRepo.DeleteByCountry(ctx, country)
	if err != nil {
		return nil, err
	}
	return s.record(callerID, "country="+country, deleted), nil
}

func (s *maintenanceService) PurgeByDateRange(ctx context.Context, callerID string, from, to time.Time) (*models.PurgeResult, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, utils.NewValidationError("invalid date range", map[string]string{"to": "must not be before from"})
	}

	deleted, err := s.sessionRepo.DeleteByStartBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return s.record(callerID, "start_time between "+from.Format(time.RFC3339)+" and "+to.Format(time.RFC3339), deleted), nil
}

func (s *maintenanceService) PurgeByDuration(ctx context.Context, callerID string, minSeconds, maxSeconds *float64) (*models.PurgeResult, error) {
	if minSeconds == nil && maxSeconds == nil {
		return nil, utils.NewValidationError("a duration bound is required", map[string]string{
			"min_seconds": "min_seconds or max_seconds is required",
		})
	}
	if minSeconds != nil && maxSeconds != nil && *maxSeconds < *minSeconds {
		return nil, utils.NewValidationError("invalid duration range", map[string]string{
			"max_seconds": "must not be below min_seconds",
		})
	}

	deleted, err := s.sessionRepo.DeleteByDuration(ctx, minSeconds, maxSeconds)
	if err != nil {
		return nil, err
	}
	return s.record(callerID, durationCriteria(minSeconds, maxSeconds), deleted), nil
}

func (s *maintenanceService) PurgeDuplicates(ctx context.Context, callerID string) (*models.PurgeResult, error) {
	deleted, err := s.sessionRepo.DeleteDuplicates(ctx)
	if err != nil {
		return nil, err
	}
	return s.record(callerID, "duplicate sessions", deleted), nil
}

func (s *maintenanceService) record(callerID, criteria string, deleted int64) *models.PurgeResult {
	s.audit.LogAdminAction("purge_sessions", "sessions", callerID, map[string]interface{}{
		"criteria":         criteria,
		"sessions_deleted": deleted,
	})
	return &models.PurgeResult{Criteria: criteria, SessionsDeleted: deleted}
}

func durationCriteria(minSeconds, maxSeconds *float64) string {
	var parts []string
	if minSeconds != nil {
		parts = append(parts, "duration >= "+formatSeconds(*minSeconds))
	}
	if maxSeconds != nil {
		parts = append(parts, "duration <= "+formatSeconds(*maxSeconds))
	}
	return strings.Join(parts, " and ")
}

func formatSeconds(v float64) string {
	return time.Duration(v * float64(time.Second)).String()
}
