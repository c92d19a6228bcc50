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

type segmentRepository struct {
	collection *mongo.Collection
}

func NewSegmentRepository(db *mongo.Database) interfaces.SegmentRepository {
	return &segmentRepository{
		collection: db.Collection(database.CollectionSegments),
	}
}

func (r *segmentRepository) Create(ctx context.Context, segment *models.Segment) error {
	now := time.Now()
	segment.ID = primitive.NewObjectID()
	segment.CreatedAt = now
	segment.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, segment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &utils.AppError{Kind: utils.ErrConflict, Message: "segment name already in use", Err: err}
		}
		return utils.NewPersistenceError("failed to create segment", err)
	}
	return nil
}

func (r *segmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Segment, error) {
	var segment models.Segment
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&segment); err != nil {
		return nil, notFoundOr(err, "segment", "get segment")
	}
	return &segment, nil
}

func (r *segmentRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Segment, int64, error) {
	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, utils.NewPersistenceError("failed to count segments", err)
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, params.GetFindOptions())
	if err != nil {
		return nil, 0, utils.NewPersistenceError("failed to list segments", err)
	}
	defer cursor.Close(ctx)

	var segments []*models.Segment
	if err := cursor.All(ctx, &segments); err != nil {
		return nil, 0, fmt.Errorf("failed to decode segments: %w", err)
	}
	return segments, total, nil
}

func (r *segmentRepository) Update(ctx context.Context, segment *models.Segment) error {
	segment.UpdatedAt = time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": segment.ID},
		bson.M{"$set": bson.M{
			"name":        segment.Name,
			"description": segment.Description,
			"rules":       segment.Rules,
			"updated_at":  segment.UpdatedAt,
		}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &utils.AppError{Kind: utils.ErrConflict, Message: "segment name already in use", Err: err}
		}
		return utils.NewPersistenceError("failed to update segment", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("segment")
	}
	return nil
}

func (r *segmentRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return utils.NewPersistenceError("failed to delete segment", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewNotFoundError("segment")
	}
	return nil
}

func (r *segmentRepository) SaveEvaluation(ctx context.Context, id primitive.ObjectID, memberCount int64, at time.Time) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"member_count":      memberCount,
			"last_evaluated_at": at,
		}},
	)
	if err != nil {
		return utils.NewPersistenceError("failed to save segment evaluation", err)
	}
	return nil
}
