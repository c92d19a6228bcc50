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
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type presenceRepository struct {
	collection *mongo.Collection
}

func NewPresenceRepository(db *mongo.Database) interfaces.PresenceRepository {
	return &presenceRepository{
		collection: db.Collection(database.CollectionPresence),
	}
}

func (r *presenceRepository) Upsert(ctx context.Context, presence *models.Presence) error {
	presence.UpdatedAt = time.Now()

	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"user_id": presence.UserID},
		bson.M{"$set": bson.M{
			"last_ping":   presence.LastPing,
			"is_active":   presence.IsActive,
			"idle_time":   presence.IdleTime,
			"page_url":    presence.PageURL,
			"device_type": presence.DeviceType,
			"country":     presence.Country,
			"city":        presence.City,
			"updated_at":  presence.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return utils.NewPersistenceError("failed to upsert presence", err)
	}
	return nil
}

func (r *presenceRepository) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(
		ctx,
		bson.M{"is_active": true, "last_ping": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, utils.NewPersistenceError("failed to expire presence", err)
	}
	return result.ModifiedCount, nil
}

func (r *presenceRepository) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return utils.NewPersistenceError("failed to delete presence", err)
	}
	return nil
}

type pageMetricsRepository struct {
	collection *mongo.Collection
}

func NewPageMetricsRepository(db *mongo.Database) interfaces.PageMetricsRepository {
	return &pageMetricsRepository{
		collection: db.Collection(database.CollectionPageMetrics),
	}
}

func (r *pageMetricsRepository) RecordView(ctx context.Context, url string, at time.Time) error {
	if url == "" {
		return nil
	}

	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"url": url},
		bson.M{
			"$inc": bson.M{"views": 1},
			"$max": bson.M{"last_viewed_at": at},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return utils.NewPersistenceError("failed to record page view", err)
	}
	return nil
}

func (r *pageMetricsRepository) RecordDuration(ctx context.Context, url string, seconds float64) error {
	if url == "" || seconds <= 0 {
		return nil
	}

	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"url": url},
		bson.M{"$inc": bson.M{
			"total_duration":   seconds,
			"duration_samples": 1,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return utils.NewPersistenceError("failed to record page duration", err)
	}
	return nil
}

func (r *pageMetricsRepository) Top(ctx context.Context, limit int) ([]*models.PageMetrics, error) {
	opts := options.Find().SetSort(bson.D{{Key: "views", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, utils.NewPersistenceError("failed to list top pages", err)
	}
	defer cursor.Close(ctx)

	var pages []*models.PageMetrics
	if err := cursor.All(ctx, &pages); err != nil {
		return nil, fmt.Errorf("failed to decode page metrics: %w", err)
	}
	return pages, nil
}
