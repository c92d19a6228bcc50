package validators

import (
	"strings"
	"time"

	"visitrack/internal/models"
)

type EventRequest struct {
	EventID   string                 `json:"event_id" validate:"omitempty,max=128"`
	UserID    string                 `json:"user_id" validate:"required,max=256"`
	SessionID string                 `json:"session_id" validate:"required,max=128"`
	EventType string                 `json:"event_type" validate:"required,event_type"`
	EventName string                 `json:"event_name" validate:"required,max=200"`
	Timestamp *time.Time             `json:"timestamp"`
	Duration  float64                `json:"duration" validate:"min=0"`
	WebsiteID string                 `json:"website_id" validate:"omitempty,max=128"`
	Metadata  map[string]interface{} `json:"metadata"`
	Location  *LocationRequest       `json:"location"`
	BatchMode bool                   `json:"batch_mode"`
}

// BatchRequest items are validated one by one so a bad event does not
// reject the whole batch.
type BatchRequest struct {
	Events []EventRequest `json:"events" validate:"required,min=1,max=1000"`
}

func ValidateEvent(req *EventRequest) ValidationErrors {
	req.UserID = strings.TrimSpace(req.UserID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.EventType = strings.TrimSpace(req.EventType)
	return ValidateStruct(req)
}

func ValidateBatch(req *BatchRequest) ValidationErrors {
	return ValidateStruct(req)
}

func (r *EventRequest) ToModel(source models.IngestSource) *models.Event {
	event := &models.Event{
		EventID:   r.EventID,
		UserID:    r.UserID,
		SessionID: r.SessionID,
		EventType: r.EventType,
		EventName: r.EventName,
		Duration:  r.Duration,
		WebsiteID: r.WebsiteID,
		Metadata:  r.Metadata,
		Source:    source,
	}
	if r.Timestamp != nil {
		event.Timestamp = *r.Timestamp
	}
	if r.Location != nil {
		loc := r.Location.ToModel()
		event.Location = &loc
	}
	return event
}
