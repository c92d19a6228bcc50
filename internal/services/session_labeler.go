package services

import (
	"context"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
	"visitrack/pkg/metrics"
	"visitrack/pkg/ml"
)

// SessionLabeler attaches a classification to sessions as they close. A nil
// labeler, or one without a classifier, does nothing.
type SessionLabeler struct {
	classifier ml.SessionClassifier
	eventRepo  interfaces.EventRepository
	logger     *logger.Logger
}

func NewSessionLabeler(classifier ml.SessionClassifier, eventRepo interfaces.EventRepository, logger *logger.Logger) *SessionLabeler {
	return &SessionLabeler{
		classifier: classifier,
		eventRepo:  eventRepo,
		logger:     logger,
	}
}

// Label is best effort; failures are logged and the session is left unlabelled.
func (l *SessionLabeler) Label(ctx context.Context, session *models.Session, returning bool) {
	if l == nil || l.classifier == nil || session == nil {
		return
	}

	events, err := l.eventRepo.ListBySession(ctx, session.SessionID)
	if err != nil {
		metrics.BackgroundErrors.WithLabelValues("classify_session").Inc()
		l.logger.WithError(err).WithSessionID(session.SessionID).Warn("Failed to load events for classification")
		return
	}

	result, err := l.classifier.Classify(ctx, sessionFeatures(session, events, returning))
	if err != nil {
		metrics.BackgroundErrors.WithLabelValues("classify_session").Inc()
		l.logger.WithError(err).WithSessionID(session.SessionID).Warn("Session classification failed")
		return
	}

	session.Classification = &models.SessionClassification{
		Class:        result.Class,
		Score:        result.Score,
		ModelVersion: result.ModelVersion,
	}
}

func sessionFeatures(session *models.Session, events []*models.Event, returning bool) ml.SessionFeatures {
	features := ml.SessionFeatures{
		DurationSeconds: session.Duration,
		PageViews:       len(session.PageSequence),
		UniquePages:     len(utils.UniqueStrings(session.PageURLs())),
		Events:          len(events),
		IsReturning:     returning,
		DeviceType:      session.Device.DeviceType,
	}
	for _, e := range events {
		switch {
		case utils.Contains(utils.ConversionEventTypes, e.EventType):
			features.Conversions++
			if utils.Contains(utils.InteractionEventTypes, e.EventType) {
				features.Interactions++
			}
		case utils.Contains(utils.InteractionEventTypes, e.EventType):
			features.Interactions++
		}
	}
	return features
}
