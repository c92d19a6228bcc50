package mongodb

import (
	"context"
	"errors"
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

type eventRepository struct {
	collection *mongo.Collection
}

func NewEventRepository(db *mongo.Database) interfaces.EventRepository {
	return &eventRepository{
		collection: db.Collection(database.CollectionEvents),
	}
}

func (r *eventRepository) Insert(ctx context.Context, event *models.Event) error {
	prepareEvent(event, time.Now())

	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &utils.AppError{Kind: utils.ErrConflict, Message: "duplicate event_id " + event.EventID, Err: err}
		}
		return utils.NewPersistenceError("failed to insert event", err)
	}
	return nil
}

func (r *eventRepository) InsertMany(ctx context.Context, events []*models.Event) ([]interfaces.BulkInsertFailure, error) {
	if len(events) == 0 {
		return nil, nil
	}

	now := time.Now()
	docs := make([]interface{}, len(events))
	for i, e := range events {
		prepareEvent(e, now)
		docs[i] = e
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil, nil
	}

	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || len(bulkErr.WriteErrors) == 0 {
		return nil, utils.NewPersistenceError("failed to insert events", err)
	}

	failures := make([]interfaces.BulkInsertFailure, 0, len(bulkErr.WriteErrors))
	for _, we := range bulkErr.WriteErrors {
		failure := interfaces.BulkInsertFailure{Index: we.Index, Err: errors.New(we.Message)}
		if we.Code == 11000 {
			failure.Err = &utils.AppError{Kind: utils.ErrConflict, Message: "duplicate event_id"}
		}
		failures = append(failures, failure)
	}
	return failures, nil
}

func prepareEvent(event *models.Event, now time.Time) {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
}

func (r *eventRepository) GetByEventID(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	if err := r.collection.FindOne(ctx, bson.M{"event_id": eventID}).Decode(&event); err != nil {
		return nil, notFoundOr(err, "event", "get event")
	}
	return &event, nil
}

func (r *eventRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.Event, error) {
	return r.find(ctx, bson.M{"session_id": sessionID}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
}

func (r *eventRepository) ListForExport(ctx context.Context, filter *interfaces.EventFilter, limit int) ([]*models.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, buildEventFilter(filter), opts)
}

func (r *eventRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Event, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewPersistenceError("failed to list events", err)
	}
	defer cursor.Close(ctx)

	var events []*models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

func (r *eventRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, utils.NewPersistenceError("failed to delete events", err)
	}
	return result.DeletedCount, nil
}

func (r *eventRepository) UpdateProcessingStatus(ctx context.Context, eventID string, status models.ProcessingStatus, errMsg string) error {
	set := bson.M{"processing_status": status}
	update := bson.M{"$set": set}

	switch status {
	case models.ProcessingStatusCompleted:
		set["processed_at"] = time.Now()
		update["$unset"] = bson.M{"error_message": ""}
	case models.ProcessingStatusFailed:
		set["processed_at"] = time.Now()
		set["error_message"] = errMsg
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"event_id": eventID}, update)
	if err != nil {
		return utils.NewPersistenceError("failed to update event status", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("event")
	}
	return nil
}

func (r *eventRepository) IncrementRetry(ctx context.Context, eventID string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"event_id": eventID}, bson.M{"$inc": bson.M{"retry_count": 1}})
	if err != nil {
		return utils.NewPersistenceError("failed to increment event retry", err)
	}
	return nil
}

func (r *eventRepository) ListFailed(ctx context.Context, source models.IngestSource, limit int) ([]*models.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{
		"source":            source,
		"processing_status": models.ProcessingStatusFailed,
	}, opts)
}

func (r *eventRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"timestamp": bson.M{"$gte": since}})
	if err != nil {
		return 0, utils.NewPersistenceError("failed to count events", err)
	}
	return count, nil
}

func (r *eventRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, utils.NewPersistenceError("failed to count user events", err)
	}
	return count, nil
}

func (r *eventRepository) CountByUserTypes(ctx context.Context, userID string, eventTypes []string, from, to time.Time) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"user_id":    userID,
		"event_type": bson.M{"$in": eventTypes},
		"timestamp":  bson.M{"$gte": from, "$lt": to},
	})
	if err != nil {
		return 0, utils.NewPersistenceError("failed to count user interactions", err)
	}
	return count, nil
}

func (r *eventRepository) CountSessionsWithTypes(ctx context.Context, eventTypes []string, since time.Time) (int64, error) {
	sessions, err := r.SessionsWithTypes(ctx, eventTypes, since, time.Now().Add(time.Minute))
	if err != nil {
		return 0, err
	}
	return int64(len(sessions)), nil
}

func (r *eventRepository) SessionsWithTypes(ctx context.Context, eventTypes []string, from, to time.Time) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "session_id", bson.M{
		"event_type": bson.M{"$in": eventTypes},
		"timestamp":  bson.M{"$gte": from, "$lt": to},
	})
	if err != nil {
		return nil, utils.NewPersistenceError("failed to list converting sessions", err)
	}

	sessions := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

func (r *eventRepository) StepUsers(ctx context.Context, step models.FunnelStep, filter *interfaces.EventFilter) (map[string]interfaces.StepTiming, error) {
	match := buildEventFilter(filter)
	match["event_type"] = step.EventType
	if step.EventName != "" {
		match["event_name"] = step.EventName
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$user_id",
			"first": bson.M{"$min": "$timestamp"},
			"last":  bson.M{"$max": "$timestamp"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, utils.NewPersistenceError("failed to aggregate funnel step", err)
	}
	defer cursor.Close(ctx)

	users := make(map[string]interfaces.StepTiming)
	for cursor.Next(ctx) {
		var row struct {
			UserID string    `bson:"_id"`
			First  time.Time `bson:"first"`
			Last   time.Time `bson:"last"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode funnel step: %w", err)
		}
		if row.UserID == "" {
			continue
		}
		users[row.UserID] = interfaces.StepTiming{First: row.First, Last: row.Last}
	}
	return users, cursor.Err()
}

func (r *eventRepository) PageViewPaths(ctx context.Context, from, to time.Time, limit int) ([]*interfaces.SessionPath, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"event_type":        utils.EventPageView,
			"timestamp":         bson.M{"$gte": from, "$lt": to},
			"metadata.page_url": bson.M{"$exists": true, "$ne": ""},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$session_id",
			"pages": bson.M{"$push": "$metadata.page_url"},
			"start": bson.M{"$min": "$timestamp"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "start", Value: -1}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, utils.NewPersistenceError("failed to aggregate page paths", err)
	}
	defer cursor.Close(ctx)

	var paths []*interfaces.SessionPath
	for cursor.Next(ctx) {
		var row struct {
			SessionID string   `bson:"_id"`
			Pages     []string `bson:"pages"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode page path: %w", err)
		}
		paths = append(paths, &interfaces.SessionPath{SessionID: row.SessionID, Pages: row.Pages})
	}
	return paths, cursor.Err()
}

func buildEventFilter(filter *interfaces.EventFilter) bson.M {
	query := bson.M{}
	if filter == nil {
		return query
	}

	ts := bson.M{}
	if filter.From != nil {
		ts["$gte"] = *filter.From
	}
	if filter.To != nil {
		ts["$lt"] = *filter.To
	}
	if len(ts) > 0 {
		query["timestamp"] = ts
	}
	if filter.EventType != "" {
		query["event_type"] = filter.EventType
	}
	if filter.WebsiteID != "" {
		query["website_id"] = filter.WebsiteID
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	return query
}
