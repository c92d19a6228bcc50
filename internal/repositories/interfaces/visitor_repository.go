package interfaces

import (
	"context"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/utils"
)

type VisitorRepository interface {
	Create(ctx context.Context, visitor *models.Visitor) error
	GetByUserID(ctx context.Context, userID string) (*models.Visitor, error)
	Save(ctx context.Context, visitor *models.Visitor) error
	Delete(ctx context.Context, userID string) error
	UpdateEngagement(ctx context.Context, userID string, engagement models.EngagementAggregate) error

	// MarkOffline flips is_online for the given users whose last activity is
	// still older than cutoff.
	MarkOffline(ctx context.Context, userIDs []string, cutoff time.Time) (int64, error)

	List(ctx context.Context, params *utils.PaginationParams) ([]*models.Visitor, int64, error)
	CountFirstSeenSince(ctx context.Context, since time.Time) (int64, error)
	ListFirstSeenBetween(ctx context.Context, from, to time.Time) ([]*VisitorFirstSeen, error)

	// FindMatching runs a compiled segment filter.
	FindMatching(ctx context.Context, filter map[string]interface{}, limit int) ([]string, int64, error)
}

type VisitorFirstSeen struct {
	UserID      string    `bson:"user_id"`
	FirstSeenAt time.Time `bson:"first_seen_at"`
}
