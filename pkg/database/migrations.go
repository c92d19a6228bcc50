package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"visitrack/pkg/logger"
)

type Migration struct {
	Version     int
	Description string
	Up          func(context.Context, *mongo.Database) error
	Down        func(context.Context, *mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	logger     *logger.Logger
	migrations []Migration
}

func NewMigrator(db *mongo.Database, log *logger.Logger) *Migrator {
	return &Migrator{
		db:         db,
		logger:     log,
		migrations: getMigrations(),
	}
}

func (m *Migrator) Up(ctx context.Context) error {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}
		m.logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Running migration")

		if err := migration.Up(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if err := m.updateVersion(ctx, migration.Version); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) Down(ctx context.Context, targetVersion int) error {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if migration.Version > currentVersion || migration.Version <= targetVersion {
			continue
		}
		m.logger.WithField("version", migration.Version).Info("Reverting migration")

		if err := migration.Down(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d rollback failed: %w", migration.Version, err)
		}

		previousVersion := targetVersion
		if i > 0 {
			previousVersion = m.migrations[i-1].Version
		}
		if err := m.updateVersion(ctx, previousVersion); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) getCurrentVersion(ctx context.Context) (int, error) {
	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection(CollectionMigrations).FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(ctx context.Context, version int) error {
	_, err := m.db.Collection(CollectionMigrations).ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)
	return err
}

func dropCollection(name string) func(context.Context, *mongo.Database) error {
	return func(ctx context.Context, db *mongo.Database) error {
		return db.Collection(name).Drop(ctx)
	}
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create visitors collection with indexes",
			Up:          createVisitorsIndexes,
			Down:        dropCollection(CollectionVisitors),
		},
		{
			Version:     2,
			Description: "Create sessions collection with indexes",
			Up:          createSessionsIndexes,
			Down:        dropCollection(CollectionSessions),
		},
		{
			Version:     3,
			Description: "Create events collection with indexes",
			Up:          createEventsIndexes,
			Down:        dropCollection(CollectionEvents),
		},
		{
			Version:     4,
			Description: "Create presence collection with indexes",
			Up:          createPresenceIndexes,
			Down:        dropCollection(CollectionPresence),
		},
		{
			Version:     5,
			Description: "Create funnel, segment, goal and page metric indexes",
			Up:          createAnalyticsConfigIndexes,
			Down: func(ctx context.Context, db *mongo.Database) error {
				for _, name := range []string{CollectionFunnels, CollectionSegments, CollectionGoals, CollectionPageMetrics} {
					if err := db.Collection(name).Drop(ctx); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

func createVisitorsIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "first_seen_at", Value: 1}}},
		{Keys: bson.D{{Key: "is_online", Value: 1}, {Key: "last_active_at", Value: -1}}},
		{Keys: bson.D{{Key: "location.country", Value: 1}}},
	}

	_, err := db.Collection(CollectionVisitors).Indexes().CreateMany(ctx, indexes)
	return err
}

func createSessionsIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// At most one active session per user.
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("user_id_active_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "start_time", Value: -1}}},
		{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "last_activity", Value: 1}}},
		{Keys: bson.D{{Key: "start_time", Value: -1}}},
		{Keys: bson.D{{Key: "device.device_type", Value: 1}}},
		{Keys: bson.D{{Key: "location.country", Value: 1}}},
	}

	_, err := db.Collection(CollectionSessions).Indexes().CreateMany(ctx, indexes)
	return err
}

func createEventsIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "event_type", Value: 1}, {Key: "event_name", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "source", Value: 1}, {Key: "processing_status", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	}

	_, err := db.Collection(CollectionEvents).Indexes().CreateMany(ctx, indexes)
	return err
}

func createPresenceIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "last_ping", Value: 1}}},
	}

	_, err := db.Collection(CollectionPresence).Indexes().CreateMany(ctx, indexes)
	return err
}

func createAnalyticsConfigIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(CollectionFunnels).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return err
	}
	if _, err := db.Collection(CollectionSegments).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := db.Collection(CollectionGoals).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "completed_at", Value: -1}}},
		{Keys: bson.D{{Key: "funnel_id", Value: 1}}},
		{Keys: bson.D{{Key: "name", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := db.Collection(CollectionPageMetrics).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
