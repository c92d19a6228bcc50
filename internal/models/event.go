package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProcessingStatus string
type IngestSource string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"

	IngestSourceSingle IngestSource = "single"
	IngestSourceBatch  IngestSource = "batch"
	IngestSourceStream IngestSource = "stream"
	IngestSourceClaim  IngestSource = "claim"
)

type Event struct {
	ID               primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	EventID          string                 `json:"event_id" bson:"event_id"`
	UserID           string                 `json:"user_id" bson:"user_id"`
	SessionID        string                 `json:"session_id" bson:"session_id"`
	EventType        string                 `json:"event_type" bson:"event_type"`
	EventName        string                 `json:"event_name" bson:"event_name"`
	Timestamp        time.Time              `json:"timestamp" bson:"timestamp"`
	Duration         float64                `json:"duration" bson:"duration"`
	WebsiteID        string                 `json:"website_id,omitempty" bson:"website_id,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Location         *Location              `json:"location,omitempty" bson:"location,omitempty"`
	Fingerprint      string                 `json:"fingerprint,omitempty" bson:"fingerprint,omitempty"`
	Source           IngestSource           `json:"source" bson:"source"`
	ProcessingStatus ProcessingStatus       `json:"processing_status,omitempty" bson:"processing_status,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty" bson:"error_message,omitempty"`
	RetryCount       int                    `json:"retry_count,omitempty" bson:"retry_count,omitempty"`
	ProcessedAt      *time.Time             `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at" bson:"created_at"`
}

func (e *Event) metaString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	if v, ok := e.Metadata[key].(string); ok {
		return v
	}
	return ""
}

func (e *Event) PageURL() string {
	return e.metaString("page_url")
}

// ScrollDepth reads metadata.scroll_depth whatever numeric type the decoder produced.
func (e *Event) ScrollDepth() float64 {
	if e.Metadata == nil {
		return 0
	}
	switch v := e.Metadata["scroll_depth"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
