package services

import (
	"math"
	"strings"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/utils"
)

const (
	engagementTierHigh   = "high"
	engagementTierMedium = "medium"
	engagementTierLow    = "low"

	trendUp     = "up"
	trendDown   = "down"
	trendStable = "stable"
)

// Points per signal for the session score.
const (
	pageViewPoints    = 10
	interactionPoints = 15
	videoPoints       = 20
	scrollPoints      = 5
)

// Sub-score saturation points. A user reaching these earns 100 for the signal.
const (
	saturationSessionsPerWeek   = 5.0
	saturationSessionSeconds    = 600.0
	saturationPagesPerSession   = 10.0
	saturationActionsPerSession = 5.0
)

func computeSessionEngagement(sessionID string, events []*models.Event) models.SessionEngagement {
	result := models.SessionEngagement{
		SessionID:   sessionID,
		TotalEvents: len(events),
	}

	for _, e := range events {
		switch {
		case e.EventType == utils.EventPageView:
			result.PageViews++
		case utils.Contains(utils.InteractionEventTypes, e.EventType):
			result.Interactions++
		case strings.HasPrefix(e.EventType, utils.VideoEventPrefix):
			result.VideoEvents++
		}
		if depth := e.ScrollDepth(); depth > result.MaxScrollDepth {
			result.MaxScrollDepth = depth
		}
	}

	raw := float64(result.PageViews*pageViewPoints) +
		float64(result.Interactions*interactionPoints) +
		float64(result.VideoEvents*videoPoints) +
		result.MaxScrollDepth*scrollPoints
	result.Score = utils.Round2(utils.ClampFloat64(raw, 0, 100))
	return result
}

// userEngagementInput is everything the user score needs, fetched up front.
type userEngagementInput struct {
	UserID           string
	Window           string
	WindowLength     time.Duration
	Sessions         []*models.Session
	Interactions     int64
	PreviousSessions int64
	Now              time.Time
}

func computeUserEngagement(in userEngagementInput) models.UserEngagement {
	result := models.UserEngagement{
		UserID:       in.UserID,
		Window:       in.Window,
		SessionCount: int64(len(in.Sessions)),
		Interactions: in.Interactions,
	}

	var totalDuration float64
	var totalPages int
	for _, s := range in.Sessions {
		if s.IsActive {
			snapshot := *s
			snapshot.RecomputeDuration(in.Now)
			totalDuration += snapshot.Duration
		} else {
			totalDuration += s.Duration
		}
		totalPages += len(s.PageSequence)
	}

	if result.SessionCount > 0 {
		n := float64(result.SessionCount)
		result.AverageSessionDuration = utils.Round2(totalDuration / n)
		result.AveragePagesPerSession = utils.Round2(float64(totalPages) / n)
	}

	weeks := in.WindowLength.Hours() / (24 * 7)
	if weeks <= 0 {
		weeks = 1
	}
	var actionsPerSession float64
	if result.SessionCount > 0 {
		actionsPerSession = float64(in.Interactions) / float64(result.SessionCount)
	}

	result.SubScores = models.EngagementSubScores{
		Frequency:    subScore(float64(result.SessionCount)/weeks, saturationSessionsPerWeek),
		Duration:     subScore(result.AverageSessionDuration, saturationSessionSeconds),
		PageViews:    subScore(result.AveragePagesPerSession, saturationPagesPerSession),
		Interactions: subScore(actionsPerSession, saturationActionsPerSession),
	}
	result.Score = utils.Round2(
		result.SubScores.Frequency*0.30 +
			result.SubScores.Duration*0.25 +
			result.SubScores.PageViews*0.20 +
			result.SubScores.Interactions*0.25,
	)
	result.Tier = engagementTier(result.Score)
	result.Trend = engagementTrend(result.SessionCount, in.PreviousSessions)
	return result
}

func subScore(value, saturation float64) float64 {
	if saturation <= 0 || value <= 0 {
		return 0
	}
	return utils.Round2(math.Min(value/saturation*100, 100))
}

func engagementTier(score float64) string {
	switch {
	case score >= 70:
		return engagementTierHigh
	case score >= 40:
		return engagementTierMedium
	default:
		return engagementTierLow
	}
}

func engagementTrend(current, previous int64) models.EngagementTrend {
	trend := models.EngagementTrend{
		CurrentSessions:  current,
		PreviousSessions: previous,
		Direction:        trendStable,
	}

	switch {
	case previous == 0 && current > 0:
		trend.ChangePercent = 100
	case previous > 0:
		trend.ChangePercent = utils.Round2(float64(current-previous) / float64(previous) * 100)
	}

	if current > previous {
		trend.Direction = trendUp
	} else if current < previous {
		trend.Direction = trendDown
	}
	return trend
}
