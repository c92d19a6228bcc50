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
	"go.mongodb.org/mongo-driver/mongo/options"
)

type visitorRepository struct {
	collection *mongo.Collection
}

func NewVisitorRepository(db *mongo.Database) interfaces.VisitorRepository {
	return &visitorRepository{
		collection: db.Collection(database.CollectionVisitors),
	}
}

func (r *visitorRepository) Create(ctx context.Context, visitor *models.Visitor) error {
	now := time.Now()
	visitor.ID = primitive.NewObjectID()
	if visitor.CreatedAt.IsZero() {
		visitor.CreatedAt = now
	}
	visitor.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, visitor); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &utils.AppError{Kind: utils.ErrConflict, Message: "visitor already exists", Err: err}
		}
		return utils.NewPersistenceError("failed to create visitor", err)
	}
	return nil
}

func (r *visitorRepository) GetByUserID(ctx context.Context, userID string) (*models.Visitor, error) {
	var visitor models.Visitor
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&visitor)
	if err != nil {
		return nil, notFoundOr(err, "visitor", "get visitor")
	}
	return &visitor, nil
}

func (r *visitorRepository) Save(ctx context.Context, visitor *models.Visitor) error {
	visitor.UpdatedAt = time.Now()
	if visitor.ID.IsZero() {
		visitor.ID = primitive.NewObjectID()
	}

	_, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"user_id": visitor.UserID},
		visitor,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return utils.NewPersistenceError("failed to save visitor", err)
	}
	return nil
}

func (r *visitorRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return utils.NewPersistenceError("failed to delete visitor", err)
	}
	return nil
}

func (r *visitorRepository) UpdateEngagement(ctx context.Context, userID string, engagement models.EngagementAggregate) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{
			"engagement": engagement,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return utils.NewPersistenceError("failed to update visitor engagement", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("visitor")
	}
	return nil
}

func (r *visitorRepository) MarkOffline(ctx context.Context, userIDs []string, cutoff time.Time) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	result, err := r.collection.UpdateMany(
		ctx,
		bson.M{
			"user_id":        bson.M{"$in": userIDs},
			"is_online":      true,
			"last_active_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"is_online":  false,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return 0, utils.NewPersistenceError("failed to mark visitors offline", err)
	}
	return result.ModifiedCount, nil
}

func (r *visitorRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Visitor, int64, error) {
	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, utils.NewPersistenceError("failed to count visitors", err)
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, params.GetFindOptions())
	if err != nil {
		return nil, 0, utils.NewPersistenceError("failed to list visitors", err)
	}
	defer cursor.Close(ctx)

	var visitors []*models.Visitor
	if err := cursor.All(ctx, &visitors); err != nil {
		return nil, 0, fmt.Errorf("failed to decode visitors: %w", err)
	}
	return visitors, total, nil
}

func (r *visitorRepository) CountFirstSeenSince(ctx context.Context, since time.Time) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"first_seen_at": bson.M{"$gte": since}})
	if err != nil {
		return 0, utils.NewPersistenceError("failed to count new visitors", err)
	}
	return count, nil
}

func (r *visitorRepository) ListFirstSeenBetween(ctx context.Context, from, to time.Time) ([]*interfaces.VisitorFirstSeen, error) {
	opts := options.Find().
		SetProjection(bson.M{"user_id": 1, "first_seen_at": 1}).
		SetSort(bson.D{{Key: "first_seen_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{
		"first_seen_at": bson.M{"$gte": from, "$lt": to},
	}, opts)
	if err != nil {
		return nil, utils.NewPersistenceError("failed to list cohort members", err)
	}
	defer cursor.Close(ctx)

	var members []*interfaces.VisitorFirstSeen
	if err := cursor.All(ctx, &members); err != nil {
		return nil, fmt.Errorf("failed to decode cohort members: %w", err)
	}
	return members, nil
}

func (r *visitorRepository) FindMatching(ctx context.Context, filter map[string]interface{}, limit int) ([]string, int64, error) {
	query := bson.M(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, utils.NewPersistenceError("failed to count segment members", err)
	}

	opts := options.Find().SetProjection(bson.M{"user_id": 1}).SetSort(bson.D{{Key: "last_active_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, utils.NewPersistenceError("failed to find segment members", err)
	}

	members, err := collectStrings(ctx, cursor, "user_id")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode segment members: %w", err)
	}
	return members, total, nil
}
