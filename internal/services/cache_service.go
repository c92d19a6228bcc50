package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"visitrack/internal/utils"
	"visitrack/pkg/cache"
	"visitrack/pkg/logger"
)

// ErrLockNotAcquired is returned by Lock when another holder owns the key.
var ErrLockNotAcquired = errors.New("lock not acquired")

type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Lock operations
	Lock(ctx context.Context, key string, expiration time.Duration) (*DistributedLock, error)
	Unlock(ctx context.Context, lock *DistributedLock) error

	Ping(ctx context.Context) error
}

type DistributedLock struct {
	Key        string        `json:"key"`
	Value      string        `json:"value"`
	Expiration time.Duration `json:"expiration"`
	CreatedAt  time.Time     `json:"created_at"`
}

type cacheService struct {
	redis      *cache.RedisCache
	logger     *logger.Logger
	defaultTTL time.Duration
	keyPrefix  string
}

func NewCacheService(redis *cache.RedisCache, logger *logger.Logger, keyPrefix string, defaultTTL time.Duration) CacheService {
	return &cacheService{
		redis:      redis,
		logger:     logger,
		keyPrefix:  keyPrefix,
		defaultTTL: defaultTTL,
	}
}

func (s *cacheService) Get(ctx context.Context, key string, dest interface{}) error {
	err := s.redis.Get(ctx, s.buildKey(key), dest)
	if errors.Is(err, cache.ErrCacheMiss) {
		return cache.ErrCacheMiss
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
	}
	return err
}

func (s *cacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration == 0 {
		expiration = s.defaultTTL
	}
	return s.redis.Set(ctx, s.buildKey(key), value, expiration)
}

func (s *cacheService) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.buildKey(k)
	}
	return s.redis.Delete(ctx, full...)
}

func (s *cacheService) Exists(ctx context.Context, key string) (bool, error) {
	return s.redis.Exists(ctx, s.buildKey(key))
}

func (s *cacheService) Lock(ctx context.Context, key string, expiration time.Duration) (*DistributedLock, error) {
	lockKey := s.buildKey(key)
	lockValue := utils.GenerateRandomString(32)

	ok, err := s.redis.AcquireLock(ctx, lockKey, lockValue, expiration)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &DistributedLock{
		Key:        lockKey,
		Value:      lockValue,
		Expiration: expiration,
		CreatedAt:  time.Now(),
	}, nil
}

func (s *cacheService) Unlock(ctx context.Context, lock *DistributedLock) error {
	return s.redis.ReleaseLock(ctx, lock.Key, lock.Value)
}

func (s *cacheService) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx)
}

func (s *cacheService) buildKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", s.keyPrefix, key)
}

const memoryCacheCapacity = 10000

// memoryCacheService is the single-process fallback used when Redis is off.
// Values round-trip through JSON so callers see the same semantics as Redis.
// Locks live in their own cache so capacity eviction never drops a held lock.
type memoryCacheService struct {
	entries *ttlcache.Cache[string, []byte]
	locks   *ttlcache.Cache[string, string]
	lockMu  sync.Mutex
}

func NewMemoryCacheService(defaultTTL time.Duration) CacheService {
	return &memoryCacheService{
		entries: ttlcache.New[string, []byte](
			ttlcache.WithTTL[string, []byte](defaultTTL),
			ttlcache.WithCapacity[string, []byte](memoryCacheCapacity),
			ttlcache.WithDisableTouchOnHit[string, []byte](),
		),
		locks: ttlcache.New[string, string](
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

func (s *memoryCacheService) Get(ctx context.Context, key string, dest interface{}) error {
	item := s.entries.Get(key)
	if item == nil {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(item.Value(), dest)
}

func (s *memoryCacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.entries.Set(key, data, expiration)
	return nil
}

func (s *memoryCacheService) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		s.entries.Delete(k)
	}
	return nil
}

func (s *memoryCacheService) Exists(ctx context.Context, key string) (bool, error) {
	return s.entries.Has(key), nil
}

func (s *memoryCacheService) Lock(ctx context.Context, key string, expiration time.Duration) (*DistributedLock, error) {
	value := utils.GenerateRandomString(32)

	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if _, held := s.locks.GetOrSet(key, value, ttlcache.WithTTL[string, string](expiration)); held {
		return nil, ErrLockNotAcquired
	}
	return &DistributedLock{Key: key, Value: value, Expiration: expiration, CreatedAt: time.Now()}, nil
}

func (s *memoryCacheService) Unlock(ctx context.Context, lock *DistributedLock) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if item := s.locks.Get(lock.Key); item != nil && item.Value() == lock.Value {
		s.locks.Delete(lock.Key)
	}
	return nil
}

func (s *memoryCacheService) Ping(ctx context.Context) error {
	return nil
}
