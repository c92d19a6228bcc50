package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitrack/internal/config"
	"visitrack/internal/models"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
)

type analyticsHarness struct {
	svc      AnalyticsService
	visitors *fakeVisitorRepo
	sessions *fakeSessionRepo
	events   *fakeEventRepo
	pages    *fakePageMetricsRepo
	cache    CacheService
	now      time.Time
}

func newAnalyticsHarness(cohortModel string) *analyticsHarness {
	h := &analyticsHarness{
		visitors: newFakeVisitorRepo(),
		sessions: newFakeSessionRepo(),
		events:   newFakeEventRepo(),
		pages:    newFakePageMetricsRepo(),
		cache:    NewMemoryCacheService(time.Minute),
		now:      time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	h.svc = NewAnalyticsService(h.visitors, h.sessions, h.events, h.pages, h.cache, &config.AnalyticsConfig{
		RealtimeWindowDefault: 15 * time.Minute,
		CacheTTL:              time.Minute,
		CohortModel:           cohortModel,
		CohortPeriodsDefault:  3,
		PathLimitDefault:      10,
	}, logger.NewNop())
	h.svc.(*analyticsService).now = func() time.Time { return h.now }
	return h
}

func TestGetSessionEngagement(t *testing.T) {
	h := newAnalyticsHarness("")
	h.sessions.put(&models.Session{SessionID: "s1", UserID: "u1"})
	for _, eventType := range []string{"page_view", "page_view", "click", "video_play"} {
		require.NoError(t, h.events.Insert(context.Background(), &models.Event{SessionID: "s1", EventType: eventType}))
	}

	result, err := h.svc.GetSessionEngagement(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 55.0, result.Score)
	assert.Equal(t, 2, result.PageViews)

	_, err = h.svc.GetSessionEngagement(context.Background(), "missing")
	assert.True(t, errors.Is(err, utils.ErrNotFound))
}

func TestGetUserEngagement(t *testing.T) {
	ctx := context.Background()
	h := newAnalyticsHarness("")
	require.NoError(t, h.visitors.Create(ctx, &models.Visitor{UserID: "u1"}))

	for i := 0; i < 3; i++ {
		h.sessions.put(&models.Session{
			SessionID: "cur-" + string(rune('a'+i)),
			UserID:    "u1",
			StartTime: h.now.Add(-time.Duration(i+1) * 24 * time.Hour),
			Duration:  120,
		})
	}
	h.sessions.put(&models.Session{SessionID: "old", UserID: "u1", StartTime: h.now.AddDate(0, 0, -10), Duration: 60})
	require.NoError(t, h.events.Insert(ctx, &models.Event{UserID: "u1", EventType: "click", Timestamp: h.now.Add(-time.Hour)}))

	result, err := h.svc.GetUserEngagement(ctx, "u1", "7d")
	require.NoError(t, err)

	assert.Equal(t, "7d", result.Window)
	assert.Equal(t, int64(3), result.SessionCount)
	assert.Equal(t, int64(1), result.Interactions)
	assert.Equal(t, 120.0, result.AverageSessionDuration)
	assert.Equal(t, trendUp, result.Trend.Direction)
	assert.Equal(t, int64(1), result.Trend.PreviousSessions)

	_, err = h.svc.GetUserEngagement(ctx, "ghost", "30d")
	assert.True(t, errors.Is(err, utils.ErrNotFound))
}

func TestGetCohortAnalysis(t *testing.T) {
	ctx := context.Background()
	h := newAnalyticsHarness("")
	require.NoError(t, h.visitors.Create(ctx, &models.Visitor{UserID: "a", FirstSeenAt: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)}))
	require.NoError(t, h.visitors.Create(ctx, &models.Visitor{UserID: "b", FirstSeenAt: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)}))
	h.sessions.put(&models.Session{SessionID: "a1", UserID: "a", StartTime: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)})
	h.sessions.put(&models.Session{SessionID: "b1", UserID: "b", StartTime: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)})
	h.sessions.put(&models.Session{SessionID: "a2", UserID: "a", StartTime: time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)})

	result, err := h.svc.GetCohortAnalysis(ctx, "", 0)
	require.NoError(t, err)

	assert.Equal(t, CohortGranularityMonth, result.Granularity)
	assert.Equal(t, CohortModelObserved, result.Model)
	require.Len(t, result.Cohorts, 3)
	jan := result.Cohorts[0]
	assert.Equal(t, "2024-01", jan.Period)
	assert.Equal(t, int64(2), jan.Size)
	assert.Equal(t, 50.0, jan.Retention[1].Rate)
	assert.Equal(t, 0.0, jan.Retention[2].Rate)

	// A second call is served from cache even after new data arrives.
	h.sessions.put(&models.Session{SessionID: "b2", UserID: "b", StartTime: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)})
	cached, err := h.svc.GetCohortAnalysis(ctx, "month", 3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cached.Cohorts[0].Retention[2].Rate)

	_, err = h.svc.GetCohortAnalysis(ctx, "day", 3)
	assert.True(t, errors.Is(err, utils.ErrValidation))
}

func TestGetCohortAnalysisGeometric(t *testing.T) {
	ctx := context.Background()
	h := newAnalyticsHarness("geometric")
	require.NoError(t, h.visitors.Create(ctx, &models.Visitor{UserID: "a", FirstSeenAt: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)}))

	result, err := h.svc.GetCohortAnalysis(ctx, "month", 2)
	require.NoError(t, err)

	assert.Equal(t, CohortModelGeometric, result.Model)
	assert.Equal(t, 0.8, result.Cohorts[0].Retention[1].Users)
}

func TestGetPathAnalysis(t *testing.T) {
	h := newAnalyticsHarness("")
	h.events.paths = nil
	h.events.converted = []string{"s1"}

	from := h.now
	to := h.now.Add(-time.Hour)
	_, err := h.svc.GetPathAnalysis(context.Background(), &from, &to, 0)
	assert.True(t, errors.Is(err, utils.ErrValidation))

	result, err := h.svc.GetPathAnalysis(context.Background(), nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.SessionsAnalyzed)
	assert.NotNil(t, result.TopPaths)
}

func TestGetRealtimeUsers(t *testing.T) {
	h := newAnalyticsHarness("")
	h.sessions.put(&models.Session{SessionID: "s1", UserID: "u1", IsActive: true, StartTime: h.now.Add(-2 * time.Minute),
		Device: models.DeviceInfo{DeviceType: "mobile"}, Location: models.Location{Country: "Spain"}})
	h.sessions.put(&models.Session{SessionID: "s2", UserID: "u2", IsActive: true, StartTime: h.now.Add(-10 * time.Minute),
		Device: models.DeviceInfo{DeviceType: "desktop"}, Location: models.Location{Country: "Spain"}})
	h.sessions.put(&models.Session{SessionID: "s3", UserID: "u3", IsActive: false, StartTime: h.now.Add(-time.Minute)})

	tests := []struct {
		window   string
		label    string
		expected int64
	}{
		{"5m", "5m", 1},
		{"1h", "1h", 2},
		{"bogus", "15m", 2},
	}

	for _, tt := range tests {
		t.Run(tt.window, func(t *testing.T) {
			result, err := h.svc.GetRealtimeUsers(context.Background(), tt.window)
			require.NoError(t, err)
			assert.Equal(t, tt.label, result.Window)
			assert.Equal(t, tt.expected, result.ActiveUsers)
		})
	}

	result, err := h.svc.GetRealtimeUsers(context.Background(), "1h")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.ByCountry["Spain"])
	assert.Equal(t, int64(1), result.ByDevice["mobile"])
}

func TestGetSystemMetrics(t *testing.T) {
	ctx := context.Background()
	h := newAnalyticsHarness("")
	h.sessions.put(&models.Session{SessionID: "s1", UserID: "u1", IsActive: true, StartTime: h.now.Add(-30 * time.Minute)})
	h.sessions.put(&models.Session{SessionID: "s2", UserID: "u2", StartTime: h.now.Add(-5 * time.Hour)})
	require.NoError(t, h.visitors.Create(ctx, &models.Visitor{UserID: "u1", FirstSeenAt: h.now.Add(-30 * time.Minute)}))
	for _, e := range []*models.Event{
		{SessionID: "s1", EventType: "page_view", Timestamp: h.now.Add(-10 * time.Minute)},
		{SessionID: "s1", EventType: "purchase", Timestamp: h.now.Add(-5 * time.Minute)},
		{SessionID: "s2", EventType: "page_view", Timestamp: h.now.Add(-5 * time.Hour)},
	} {
		require.NoError(t, h.events.Insert(ctx, e))
	}

	result, err := h.svc.GetSystemMetrics(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.EventsLastHour)
	assert.Equal(t, int64(3), result.EventsLastDay)
	assert.Equal(t, int64(1), result.ActiveSessions)
	assert.Equal(t, int64(1), result.NewSessionsLastHour)
	assert.Equal(t, int64(1), result.NewUsersLastDay)
	assert.Equal(t, 50.0, result.ConversionRate)
	assert.Equal(t, h.now, result.GeneratedAt)
}

func TestGetTopPages(t *testing.T) {
	ctx := context.Background()
	h := newAnalyticsHarness("")
	require.NoError(t, h.pages.RecordView(ctx, "/home", h.now))
	require.NoError(t, h.pages.RecordView(ctx, "/home", h.now))
	require.NoError(t, h.pages.RecordView(ctx, "/about", h.now))

	pages, err := h.svc.GetTopPages(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "/home", pages[0].URL)
	assert.Equal(t, int64(2), pages[0].Views)
}
