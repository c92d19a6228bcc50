package mongodb

import (
	"context"
	"errors"
	"time"

	"visitrack/internal/utils"

	"go.mongodb.org/mongo-driver/mongo"
)

// CacheService is the read-through cache used by repositories that serve
// slowly changing definitions.
type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

func notFoundOr(err error, resource, op string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return utils.NewNotFoundError(resource)
	}
	return utils.NewPersistenceError("failed to "+op, err)
}

func collectStrings(ctx context.Context, cursor *mongo.Cursor, field string) ([]string, error) {
	defer cursor.Close(ctx)

	var out []string
	for cursor.Next(ctx) {
		var row map[string]interface{}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		if v, ok := row[field].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out, cursor.Err()
}
