package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitrack/internal/models"
	"visitrack/pkg/logger"
)

func TestPresenceReaperSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	visitors := newFakeVisitorRepo()
	sessions := newFakeSessionRepo()
	presence := newFakePresenceRepo()
	events := newFakeEventRepo()
	feed := &fakeFeed{}

	require.NoError(t, visitors.Create(ctx, &models.Visitor{UserID: "idle", IsOnline: true, LastActiveAt: now.Add(-3 * time.Minute)}))
	require.NoError(t, visitors.Create(ctx, &models.Visitor{UserID: "busy", IsOnline: true, LastActiveAt: now.Add(-30 * time.Second)}))
	sessions.put(&models.Session{
		SessionID:    "s-idle",
		UserID:       "idle",
		IsActive:     true,
		StartTime:    now.Add(-10 * time.Minute),
		LastActivity: now.Add(-3 * time.Minute),
	})
	sessions.put(&models.Session{
		SessionID:    "s-busy",
		UserID:       "busy",
		IsActive:     true,
		StartTime:    now.Add(-10 * time.Minute),
		LastActivity: now.Add(-30 * time.Second),
	})
	require.NoError(t, presence.Upsert(ctx, &models.Presence{UserID: "idle", IsActive: true, LastPing: now.Add(-6 * time.Minute)}))
	require.NoError(t, presence.Upsert(ctx, &models.Presence{UserID: "busy", IsActive: true, LastPing: now.Add(-30 * time.Second)}))

	reaper := NewPresenceReaper(sessions, visitors, presence, events, nil, feed, ReaperConfig{
		Inactivity:     2 * time.Minute,
		PresenceExpiry: 5 * time.Minute,
	}, logger.NewNop())
	reaper.now = func() time.Time { return now }

	result, err := reaper.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SessionsClosed)
	assert.Equal(t, int64(1), result.VisitorsOffline)
	assert.Equal(t, int64(1), result.PresenceExpired)
	assert.Equal(t, 1, result.EngagementRecomputed)
	assert.Equal(t, 0, result.Errors)

	closed := sessions.get("s-idle")
	assert.False(t, closed.IsActive)
	require.NotNil(t, closed.EndTime)
	assert.Equal(t, now, *closed.EndTime)
	assert.Equal(t, 600.0, closed.Duration)
	assert.True(t, sessions.get("s-busy").IsActive)

	idle, err := visitors.GetByUserID(ctx, "idle")
	require.NoError(t, err)
	assert.False(t, idle.IsOnline)
	assert.Equal(t, int64(1), idle.Engagement.TotalSessions)
	assert.Equal(t, 600.0, idle.Engagement.TotalTimeSpent)

	busy, err := visitors.GetByUserID(ctx, "busy")
	require.NoError(t, err)
	assert.True(t, busy.IsOnline)

	ended := feed.ofType("session_ended")
	require.Len(t, ended, 1)
	assert.Equal(t, "s-idle", ended[0].data["session_id"])
	assert.Equal(t, "inactive", ended[0].data["reason"])

	again, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.SessionsClosed)
	assert.Equal(t, int64(0), again.PresenceExpired)
}

func TestPresenceReaperRunStopsOnCancel(t *testing.T) {
	reaper := NewPresenceReaper(newFakeSessionRepo(), newFakeVisitorRepo(), newFakePresenceRepo(), newFakeEventRepo(),
		nil, nil, ReaperConfig{Interval: 5 * time.Millisecond, Inactivity: time.Minute}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
