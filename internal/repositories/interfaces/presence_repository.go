package interfaces

import (
	"context"
	"time"

	"visitrack/internal/models"
)

type PresenceRepository interface {
	Upsert(ctx context.Context, presence *models.Presence) error
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

type PageMetricsRepository interface {
	RecordView(ctx context.Context, url string, at time.Time) error
	RecordDuration(ctx context.Context, url string, seconds float64) error
	Top(ctx context.Context, limit int) ([]*models.PageMetrics, error)
}
