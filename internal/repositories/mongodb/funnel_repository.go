package mongodb

import (
	"context"
	"fmt"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const funnelCacheTTL = 10 * time.Minute

type funnelRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

// NewFunnelRepository returns a funnel repository. cache may be nil.
func NewFunnelRepository(db *mongo.Database, cache CacheService) interfaces.FunnelRepository {
	return &funnelRepository{
		collection: db.Collection(database.CollectionFunnels),
		cache:      cache,
	}
}

func (r *funnelRepository) Create(ctx context.Context, funnel *models.Funnel) error {
	now := time.Now()
	funnel.ID = primitive.NewObjectID()
	funnel.CreatedAt = now
	funnel.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, funnel); err != nil {
		return utils.NewPersistenceError("failed to create funnel", err)
	}
	return nil
}

func (r *funnelRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Funnel, error) {
	if r.cache != nil {
		var cached models.Funnel
		if err := r.cache.Get(ctx, r.cacheKey(id), &cached); err == nil {
			return &cached, nil
		}
	}

	var funnel models.Funnel
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&funnel); err != nil {
		return nil, notFoundOr(err, "funnel", "get funnel")
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, r.cacheKey(id), funnel, funnelCacheTTL)
	}
	return &funnel, nil
}

func (r *funnelRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Funnel, int64, error) {
	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, utils.NewPersistenceError("failed to count funnels", err)
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, params.GetFindOptions())
	if err != nil {
		return nil, 0, utils.NewPersistenceError("failed to list funnels", err)
	}
	defer cursor.Close(ctx)

	var funnels []*models.Funnel
	if err := cursor.All(ctx, &funnels); err != nil {
		return nil, 0, fmt.Errorf("failed to decode funnels: %w", err)
	}
	return funnels, total, nil
}

func (r *funnelRepository) Update(ctx context.Context, funnel *models.Funnel) error {
	funnel.UpdatedAt = time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": funnel.ID},
		bson.M{"$set": bson.M{
			"name":        funnel.Name,
			"description": funnel.Description,
			"website_id":  funnel.WebsiteID,
			"steps":       funnel.Steps,
			"is_active":   funnel.IsActive,
			"updated_at":  funnel.UpdatedAt,
		}, "$unset": bson.M{"metrics": ""}},
	)
	if err != nil {
		return utils.NewPersistenceError("failed to update funnel", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("funnel")
	}

	r.invalidate(ctx, funnel.ID)
	return nil
}

func (r *funnelRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return utils.NewPersistenceError("failed to delete funnel", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewNotFoundError("funnel")
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *funnelRepository) SaveMetrics(ctx context.Context, id primitive.ObjectID, metrics *models.FunnelAnalytics) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"metrics": metrics, "updated_at": time.Now()}},
	)
	if err != nil {
		return utils.NewPersistenceError("failed to save funnel metrics", err)
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *funnelRepository) cacheKey(id primitive.ObjectID) string {
	return "funnel:" + id.Hex()
}

func (r *funnelRepository) invalidate(ctx context.Context, id primitive.ObjectID) {
	if r.cache != nil {
		_ = r.cache.Delete(ctx, r.cacheKey(id))
	}
}
