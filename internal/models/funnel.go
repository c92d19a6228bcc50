package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FunnelStep struct {
	Name      string `json:"name" bson:"name"`
	EventType string `json:"event_type" bson:"event_type"`
	EventName string `json:"event_name" bson:"event_name"`
}

type Funnel struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description" bson:"description"`
	WebsiteID   string             `json:"website_id,omitempty" bson:"website_id,omitempty"`
	Steps       []FunnelStep       `json:"steps" bson:"steps"`
	Metrics     *FunnelAnalytics   `json:"metrics,omitempty" bson:"metrics,omitempty"`
	IsActive    bool               `json:"is_active" bson:"is_active"`
	CreatedBy   string             `json:"created_by,omitempty" bson:"created_by,omitempty"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}

type FunnelStepResult struct {
	Index          int     `json:"index" bson:"index"`
	Name           string  `json:"name" bson:"name"`
	EventType      string  `json:"event_type" bson:"event_type"`
	EventName      string  `json:"event_name" bson:"event_name"`
	Users          int64   `json:"users" bson:"users"`
	ConversionRate float64 `json:"conversion_rate" bson:"conversion_rate"`
	DropOffRate    float64 `json:"drop_off_rate" bson:"drop_off_rate"`
}

type FunnelAnalytics struct {
	FunnelID              string             `json:"funnel_id" bson:"funnel_id"`
	Steps                 []FunnelStepResult `json:"steps" bson:"steps"`
	OverallConversion     float64            `json:"overall_conversion" bson:"overall_conversion"`
	AverageCompletionTime float64            `json:"average_completion_time" bson:"average_completion_time"`
	Entrants              int64              `json:"entrants" bson:"entrants"`
	Completions           int64              `json:"completions" bson:"completions"`
	From                  *time.Time         `json:"from,omitempty" bson:"from,omitempty"`
	To                    *time.Time         `json:"to,omitempty" bson:"to,omitempty"`
	ComputedAt            time.Time          `json:"computed_at" bson:"computed_at"`
}
