package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitrack/internal/utils"
	"visitrack/pkg/logger"
)

func TestUserLockerSerialisesSameUser(t *testing.T) {
	locker := NewUserLocker(nil, 0, logger.NewNop())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "u1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	locker.mu.Lock()
	assert.Empty(t, locker.locks)
	locker.mu.Unlock()
}

func TestUserLockerIndependentUsers(t *testing.T) {
	locker := NewUserLocker(nil, 0, logger.NewNop())

	unlockA, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestUserLockerHonoursContext(t *testing.T) {
	locker := NewUserLocker(nil, 0, logger.NewNop())

	unlock, err := locker.Lock(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "u1")
	require.NoError(t, err)
	again()
}

func TestUserLockerDistributed(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryCacheService(time.Minute)
	locker := NewUserLocker(shared, time.Second, logger.NewNop())

	held, err := shared.Lock(ctx, utils.CacheLockPrefix+"u1", time.Minute)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, shared.Unlock(ctx, held))

	unlock, err := locker.Lock(ctx, "u1")
	require.NoError(t, err)
	exists, err := shared.Exists(ctx, utils.CacheLockPrefix+"u1")
	require.NoError(t, err)
	assert.True(t, exists)

	unlock()
	exists, err = shared.Exists(ctx, utils.CacheLockPrefix+"u1")
	require.NoError(t, err)
	assert.False(t, exists)
}
