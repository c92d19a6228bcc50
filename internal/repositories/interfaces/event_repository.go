package interfaces

import (
	"context"
	"time"

	"visitrack/internal/models"
)

type EventRepository interface {
	Insert(ctx context.Context, event *models.Event) error
	// InsertMany performs an unordered insert. Rejected documents are reported
	// per input index; the returned error is only set when nothing could be
	// attempted.
	InsertMany(ctx context.Context, events []*models.Event) ([]BulkInsertFailure, error)
	GetByEventID(ctx context.Context, eventID string) (*models.Event, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.Event, error)
	ListForExport(ctx context.Context, filter *EventFilter, limit int) ([]*models.Event, error)
	DeleteByUserID(ctx context.Context, userID string) (int64, error)

	// Stream processing
	UpdateProcessingStatus(ctx context.Context, eventID string, status models.ProcessingStatus, errMsg string) error
	IncrementRetry(ctx context.Context, eventID string) error
	ListFailed(ctx context.Context, source models.IngestSource, limit int) ([]*models.Event, error)

	// Analytics
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	CountByUserTypes(ctx context.Context, userID string, eventTypes []string, from, to time.Time) (int64, error)
	CountSessionsWithTypes(ctx context.Context, eventTypes []string, since time.Time) (int64, error)
	SessionsWithTypes(ctx context.Context, eventTypes []string, from, to time.Time) ([]string, error)
	StepUsers(ctx context.Context, step models.FunnelStep, filter *EventFilter) (map[string]StepTiming, error)
	PageViewPaths(ctx context.Context, from, to time.Time, limit int) ([]*SessionPath, error)
}

type BulkInsertFailure struct {
	Index int
	Err   error
}

type EventFilter struct {
	From      *time.Time
	To        *time.Time
	EventType string
	WebsiteID string
	UserID    string
}

// StepTiming is a user's first and last occurrence of a funnel step.
type StepTiming struct {
	First time.Time
	Last  time.Time
}

type SessionPath struct {
	SessionID string
	Pages     []string
}
