package interfaces

import (
	"context"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FunnelRepository interface {
	Create(ctx context.Context, funnel *models.Funnel) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Funnel, error)
	List(ctx context.Context, params *utils.PaginationParams) ([]*models.Funnel, int64, error)
	Update(ctx context.Context, funnel *models.Funnel) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	SaveMetrics(ctx context.Context, id primitive.ObjectID, metrics *models.FunnelAnalytics) error
}

type SegmentRepository interface {
	Create(ctx context.Context, segment *models.Segment) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Segment, error)
	List(ctx context.Context, params *utils.PaginationParams) ([]*models.Segment, int64, error)
	Update(ctx context.Context, segment *models.Segment) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	SaveEvaluation(ctx context.Context, id primitive.ObjectID, memberCount int64, at time.Time) error
}

type GoalRepository interface {
	Create(ctx context.Context, goal *models.Goal) error
	List(ctx context.Context, filter *GoalFilter, params *utils.PaginationParams) ([]*models.Goal, int64, error)
	Stats(ctx context.Context, from, to *time.Time) ([]*models.GoalStats, error)
}

type GoalFilter struct {
	UserID   string
	Name     string
	FunnelID *primitive.ObjectID
}
