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

type goalRepository struct {
	collection *mongo.Collection
}

func NewGoalRepository(db *mongo.Database) interfaces.GoalRepository {
	return &goalRepository{
		collection: db.Collection(database.CollectionGoals),
	}
}

func (r *goalRepository) Create(ctx context.Context, goal *models.Goal) error {
	goal.ID = primitive.NewObjectID()
	goal.CreatedAt = time.Now()
	if goal.CompletedAt.IsZero() {
		goal.CompletedAt = goal.CreatedAt
	}

	if _, err := r.collection.InsertOne(ctx, goal); err != nil {
		return utils.NewPersistenceError("failed to record goal", err)
	}
	return nil
}

func (r *goalRepository) List(ctx context.Context, filter *interfaces.GoalFilter, params *utils.PaginationParams) ([]*models.Goal, int64, error) {
	query := bson.M{}
	if filter != nil {
		if filter.UserID != "" {
			query["user_id"] = filter.UserID
		}
		if filter.Name != "" {
			query["name"] = filter.Name
		}
		if filter.FunnelID != nil {
			query["funnel_id"] = *filter.FunnelID
		}
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, utils.NewPersistenceError("failed to count goals", err)
	}

	cursor, err := r.collection.Find(ctx, query, params.GetFindOptions())
	if err != nil {
		return nil, 0, utils.NewPersistenceError("failed to list goals", err)
	}
	defer cursor.Close(ctx)

	var goals []*models.Goal
	if err := cursor.All(ctx, &goals); err != nil {
		return nil, 0, fmt.Errorf("failed to decode goals: %w", err)
	}
	return goals, total, nil
}

func (r *goalRepository) Stats(ctx context.Context, from, to *time.Time) ([]*models.GoalStats, error) {
	match := bson.M{}
	rng := bson.M{}
	if from != nil {
		rng["$gte"] = *from
	}
	if to != nil {
		rng["$lt"] = *to
	}
	if len(rng) > 0 {
		match["completed_at"] = rng
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$name",
			"completions": bson.M{"$sum": 1},
			"total_value": bson.M{"$sum": "$value"},
			"users":       bson.M{"$addToSet": "$user_id"},
		}}},
		{{Key: "$project", Value: bson.M{
			"completions":  1,
			"total_value":  1,
			"unique_users": bson.M{"$size": "$users"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "completions", Value: -1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, utils.NewPersistenceError("failed to aggregate goals", err)
	}
	defer cursor.Close(ctx)

	var stats []*models.GoalStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode goal stats: %w", err)
	}
	return stats, nil
}
