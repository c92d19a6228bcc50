package interfaces

import (
	"context"
	"time"

	"visitrack/internal/models"
)

type SessionRepository interface {
	// Create inserts a new session. It returns utils.ErrConflict when the
	// user already has an active session.
	Create(ctx context.Context, session *models.Session) error
	Save(ctx context.Context, session *models.Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	GetActiveByUserID(ctx context.Context, userID string) (*models.Session, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.Session, error)
	ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.Session, error)
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	Touch(ctx context.Context, sessionIDs []string, at time.Time) error

	// Presence reaping
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error)
	CloseIfStale(ctx context.Context, session *models.Session, cutoff, now time.Time) (bool, error)

	// Analytics
	CountActive(ctx context.Context) (int64, error)
	CountStartedSince(ctx context.Context, since time.Time) (int64, error)
	ActiveBreakdown(ctx context.Context, since time.Time) (*ActiveBreakdown, error)
	ActiveUsersBetween(ctx context.Context, from, to time.Time) ([]string, error)

	// Maintenance
	DeleteByDeviceType(ctx context.Context, deviceType string) (int64, error)
	DeleteByCountry(ctx context.Context, country string) (int64, error)
	DeleteByStartBetween(ctx context.Context, from, to time.Time) (int64, error)
	DeleteByDuration(ctx context.Context, minSeconds, maxSeconds *float64) (int64, error)
	DeleteDuplicates(ctx context.Context) (int64, error)
}

type ActiveBreakdown struct {
	ActiveUsers int64
	ByDevice    map[string]int64
	ByCountry   map[string]int64
}
