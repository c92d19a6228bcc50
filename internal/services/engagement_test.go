package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"visitrack/internal/models"
)

func eventsOfType(eventType string, n int) []*models.Event {
	out := make([]*models.Event, n)
	for i := range out {
		out[i] = &models.Event{EventType: eventType}
	}
	return out
}

func TestComputeSessionEngagement(t *testing.T) {
	tests := []struct {
		name     string
		events   []*models.Event
		expected float64
	}{
		{name: "No events", events: nil, expected: 0},
		{
			name:     "Page views only",
			events:   eventsOfType("page_view", 3),
			expected: 30,
		},
		{
			name: "Mixed signals",
			events: append(append(eventsOfType("page_view", 2), eventsOfType("click", 2)...),
				&models.Event{EventType: "video_play"}),
			expected: 70,
		},
		{
			name: "Raw score above 100 is clamped",
			// 5*10 + 9*15 + 5*20 = 285
			events: append(append(eventsOfType("page_view", 5), eventsOfType("form_submit", 9)...),
				eventsOfType("video_progress", 5)...),
			expected: 100,
		},
		{
			name: "Scroll depth adds points",
			events: []*models.Event{
				{EventType: "page_view"},
				{EventType: "scroll", Metadata: map[string]interface{}{"scroll_depth": 0.5}},
				{EventType: "scroll", Metadata: map[string]interface{}{"scroll_depth": 2}},
			},
			expected: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := computeSessionEngagement("s1", tt.events)
			assert.Equal(t, tt.expected, result.Score)
			assert.Equal(t, len(tt.events), result.TotalEvents)
		})
	}
}

func TestComputeUserEngagement(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	var sessions []*models.Session
	for i := 0; i < 20; i++ {
		sessions = append(sessions, &models.Session{
			Duration:     600,
			PageSequence: make([]models.PageVisit, 10),
		})
	}

	result := computeUserEngagement(userEngagementInput{
		UserID:           "u1",
		Window:           "30d",
		WindowLength:     28 * 24 * time.Hour,
		Sessions:         sessions,
		Interactions:     100,
		PreviousSessions: 10,
		Now:              now,
	})

	assert.Equal(t, 100.0, result.SubScores.Frequency)
	assert.Equal(t, 100.0, result.SubScores.Duration)
	assert.Equal(t, 100.0, result.SubScores.PageViews)
	assert.Equal(t, 100.0, result.SubScores.Interactions)
	assert.Equal(t, 100.0, result.Score)
	assert.Equal(t, engagementTierHigh, result.Tier)
	assert.Equal(t, trendUp, result.Trend.Direction)
	assert.Equal(t, 100.0, result.Trend.ChangePercent)
}

func TestComputeUserEngagementActiveSessionUsesNow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sessions := []*models.Session{
		{IsActive: true, StartTime: now.Add(-5 * time.Minute), Duration: 0},
	}

	result := computeUserEngagement(userEngagementInput{
		UserID:       "u1",
		WindowLength: 7 * 24 * time.Hour,
		Sessions:     sessions,
		Now:          now,
	})

	assert.Equal(t, 300.0, result.AverageSessionDuration)
	assert.Equal(t, 50.0, result.SubScores.Duration)
}

func TestEngagementTier(t *testing.T) {
	assert.Equal(t, engagementTierHigh, engagementTier(70))
	assert.Equal(t, engagementTierMedium, engagementTier(69.99))
	assert.Equal(t, engagementTierMedium, engagementTier(40))
	assert.Equal(t, engagementTierLow, engagementTier(39.5))
}

func TestEngagementTrend(t *testing.T) {
	tests := []struct {
		name      string
		current   int64
		previous  int64
		direction string
		change    float64
	}{
		{"From nothing", 3, 0, trendUp, 100},
		{"Both empty", 0, 0, trendStable, 0},
		{"Growth", 6, 4, trendUp, 50},
		{"Decline", 1, 4, trendDown, -75},
		{"Flat", 4, 4, trendStable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend := engagementTrend(tt.current, tt.previous)
			assert.Equal(t, tt.direction, trend.Direction)
			assert.Equal(t, tt.change, trend.ChangePercent)
		})
	}
}
