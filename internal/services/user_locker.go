package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"visitrack/internal/utils"
	"visitrack/pkg/logger"
)

// UserLocker serialises visitor actions per user. Within a process a keyed
// mutex is used; when a distributed cache is configured the same key is
// also held in it so several instances agree.
type UserLocker struct {
	mu    sync.Mutex
	locks map[string]*userLock

	distributed CacheService
	ttl         time.Duration
	retry       time.Duration
	logger      *logger.Logger
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewUserLocker(distributed CacheService, ttl time.Duration, logger *logger.Logger) *UserLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &UserLocker{
		locks:       make(map[string]*userLock),
		distributed: distributed,
		ttl:         ttl,
		retry:       25 * time.Millisecond,
		logger:      logger,
	}
}

// Lock blocks until the user's lock is held or ctx is done. The returned
// function releases it and must be called exactly once.
func (l *UserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	entry := l.acquireLocal(userID)

	locked := make(chan struct{})
	go func() {
		entry.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
	case <-ctx.Done():
		// The goroutine still takes the mutex eventually; hand it back.
		go func() {
			<-locked
			entry.mu.Unlock()
			l.releaseLocal(userID, entry)
		}()
		return nil, ctx.Err()
	}

	dist, err := l.lockDistributed(ctx, userID)
	if err != nil {
		entry.mu.Unlock()
		l.releaseLocal(userID, entry)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if dist != nil {
				// Release with a fresh context so a cancelled request still frees the key.
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := l.distributed.Unlock(rctx, dist); err != nil {
					l.logger.WithError(err).WithUserID(userID).Warn("Failed to release visitor lock")
				}
				cancel()
			}
			entry.mu.Unlock()
			l.releaseLocal(userID, entry)
		})
	}, nil
}

func (l *UserLocker) acquireLocal(userID string) *userLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[userID]
	if !ok {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	return entry
}

func (l *UserLocker) releaseLocal(userID string, entry *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, userID)
	}
}

func (l *UserLocker) lockDistributed(ctx context.Context, userID string) (*DistributedLock, error) {
	if l.distributed == nil {
		return nil, nil
	}

	key := utils.CacheLockPrefix + userID
	for {
		lock, err := l.distributed.Lock(ctx, key, l.ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			// The partial unique index still guards the invariant.
			l.logger.WithError(err).WithUserID(userID).Warn("Distributed visitor lock unavailable, continuing with local lock")
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
