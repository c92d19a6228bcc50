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

type sessionRepository struct {
	collection *mongo.Collection
}

func NewSessionRepository(db *mongo.Database) interfaces.SessionRepository {
	return &sessionRepository{
		collection: db.Collection(database.CollectionSessions),
	}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.Session) error {
	now := time.Now()
	session.ID = primitive.NewObjectID()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	session.RecomputeDuration(now)

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &utils.AppError{Kind: utils.ErrConflict, Message: "user already has an active session", Err: err}
		}
		return utils.NewPersistenceError("failed to create session", err)
	}
	return nil
}

// Save replaces the stored session. Duration is recomputed on every save.
func (r *sessionRepository) Save(ctx context.Context, session *models.Session) error {
	now := time.Now()
	session.UpdatedAt = now
	session.RecomputeDuration(now)

	result, err := r.collection.ReplaceOne(ctx, bson.M{"session_id": session.SessionID}, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &utils.AppError{Kind: utils.ErrConflict, Message: "user already has an active session", Err: err}
		}
		return utils.NewPersistenceError("failed to save session", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("session")
	}
	return nil
}

func (r *sessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := r.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&session); err != nil {
		return nil, notFoundOr(err, "session", "get session")
	}
	return &session, nil
}

func (r *sessionRepository) GetActiveByUserID(ctx context.Context, userID string) (*models.Session, error) {
	var session models.Session
	err := r.collection.FindOne(
		ctx,
		bson.M{"user_id": userID, "is_active": true},
		options.FindOne().SetSort(bson.D{{Key: "start_time", Value: -1}}),
	).Decode(&session)
	if err != nil {
		return nil, notFoundOr(err, "active session", "get active session")
	}
	return &session, nil
}

func (r *sessionRepository) ListByUserID(ctx context.Context, userID string) ([]*models.Session, error) {
	return r.find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
}

func (r *sessionRepository) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.Session, error) {
	return r.find(ctx, bson.M{
		"user_id":    userID,
		"start_time": bson.M{"$gte": from, "$lt": to},
	}, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
}

func (r *sessionRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Session, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewPersistenceError("failed to list sessions", err)
	}
	defer cursor.Close(ctx)

	var sessions []*models.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

func (r *sessionRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	return r.deleteMany(ctx, bson.M{"user_id": userID})
}

func (r *sessionRepository) Touch(ctx context.Context, sessionIDs []string, at time.Time) error {
	if len(sessionIDs) == 0 {
		return nil
	}

	// $max keeps last_activity monotonic when late events arrive.
	_, err := r.collection.UpdateMany(
		ctx,
		bson.M{"session_id": bson.M{"$in": sessionIDs}, "is_active": true},
		bson.M{
			"$max": bson.M{"last_activity": at},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return utils.NewPersistenceError("failed to touch sessions", err)
	}
	return nil
}

func (r *sessionRepository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{
		"is_active":     true,
		"last_activity": bson.M{"$lt": cutoff},
	}, opts)
}

// CloseIfStale closes the session only if it is still active and has not
// seen activity since cutoff, so a concurrent action always wins.
func (r *sessionRepository) CloseIfStale(ctx context.Context, session *models.Session, cutoff, now time.Time) (bool, error) {
	session.Close(now)

	set := bson.M{
		"is_active":  false,
		"end_time":   now,
		"duration":   session.Duration,
		"updated_at": now,
	}
	if session.Classification != nil {
		set["classification"] = session.Classification
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"session_id":    session.SessionID,
			"is_active":     true,
			"last_activity": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, utils.NewPersistenceError("failed to close stale session", err)
	}
	return result.ModifiedCount > 0, nil
}

func (r *sessionRepository) CountActive(ctx context.Context) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"is_active": true})
	if err != nil {
		return 0, utils.NewPersistenceError("failed to count active sessions", err)
	}
	return count, nil
}

func (r *sessionRepository) CountStartedSince(ctx context.Context, since time.Time) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"start_time": bson.M{"$gte": since}})
	if err != nil {
		return 0, utils.NewPersistenceError("failed to count new sessions", err)
	}
	return count, nil
}

func (r *sessionRepository) ActiveBreakdown(ctx context.Context, since time.Time) (*interfaces.ActiveBreakdown, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"is_active":  true,
			"start_time": bson.M{"$gte": since},
		}}},
		{{Key: "$facet", Value: bson.M{
			"users": bson.A{
				bson.M{"$group": bson.M{"_id": "$user_id"}},
				bson.M{"$count": "count"},
			},
			"devices": bson.A{
				bson.M{"$group": bson.M{"_id": "$device.device_type", "count": bson.M{"$sum": 1}}},
			},
			"countries": bson.A{
				bson.M{"$group": bson.M{"_id": "$location.country", "count": bson.M{"$sum": 1}}},
			},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, utils.NewPersistenceError("failed to aggregate active sessions", err)
	}
	defer cursor.Close(ctx)

	type bucket struct {
		ID    string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	var rows []struct {
		Users []struct {
			Count int64 `bson:"count"`
		} `bson:"users"`
		Devices   []bucket `bson:"devices"`
		Countries []bucket `bson:"countries"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode active sessions: %w", err)
	}

	breakdown := &interfaces.ActiveBreakdown{
		ByDevice:  make(map[string]int64),
		ByCountry: make(map[string]int64),
	}
	if len(rows) == 0 {
		return breakdown, nil
	}
	if len(rows[0].Users) > 0 {
		breakdown.ActiveUsers = rows[0].Users[0].Count
	}
	for _, b := range rows[0].Devices {
		breakdown.ByDevice[utils.CoalesceString(b.ID, "unknown")] += b.Count
	}
	for _, b := range rows[0].Countries {
		breakdown.ByCountry[utils.CoalesceString(b.ID, "unknown")] += b.Count
	}
	return breakdown, nil
}

func (r *sessionRepository) ActiveUsersBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "user_id", bson.M{
		"start_time": bson.M{"$gte": from, "$lt": to},
	})
	if err != nil {
		return nil, utils.NewPersistenceError("failed to list active users", err)
	}

	users := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			users = append(users, s)
		}
	}
	return users, nil
}

func (r *sessionRepository) DeleteByDeviceType(ctx context.Context, deviceType string) (int64, error) {
	return r.deleteMany(ctx, bson.M{"device.device_type": deviceType})
}

func (r *sessionRepository) DeleteByCountry(ctx context.Context, country string) (int64, error) {
	return r.deleteMany(ctx, bson.M{"location.country": country})
}

func (r *sessionRepository) DeleteByStartBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return r.deleteMany(ctx, bson.M{"start_time": bson.M{"$gte": from, "$lte": to}})
}

func (r *sessionRepository) DeleteByDuration(ctx context.Context, minSeconds, maxSeconds *float64) (int64, error) {
	rng := bson.M{}
	if minSeconds != nil {
		rng["$gte"] = *minSeconds
	}
	if maxSeconds != nil {
		rng["$lte"] = *maxSeconds
	}
	if len(rng) == 0 {
		return 0, utils.NewValidationError("duration bounds required", nil)
	}
	return r.deleteMany(ctx, bson.M{"duration": rng, "is_active": false})
}

// DeleteDuplicates removes sessions sharing a user and start time, keeping
// the earliest inserted document of each group.
func (r *sessionRepository) DeleteDuplicates(ctx context.Context) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"user_id": "$user_id", "start_time": "$start_time"},
			"ids":   bson.M{"$push": "$_id"},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$match", Value: bson.M{"count": bson.M{"$gt": 1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return 0, utils.NewPersistenceError("failed to find duplicate sessions", err)
	}
	defer cursor.Close(ctx)

	var doomed []primitive.ObjectID
	for cursor.Next(ctx) {
		var group struct {
			IDs []primitive.ObjectID `bson:"ids"`
		}
		if err := cursor.Decode(&group); err != nil {
			return 0, fmt.Errorf("failed to decode duplicate group: %w", err)
		}
		if len(group.IDs) > 1 {
			doomed = append(doomed, group.IDs[1:]...)
		}
	}
	if err := cursor.Err(); err != nil {
		return 0, utils.NewPersistenceError("failed to iterate duplicate sessions", err)
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	return r.deleteMany(ctx, bson.M{"_id": bson.M{"$in": doomed}})
}

func (r *sessionRepository) deleteMany(ctx context.Context, filter bson.M) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, utils.NewPersistenceError("failed to delete sessions", err)
	}
	return result.DeletedCount, nil
}
