package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Presence is overwritten on every ping.
type Presence struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID     string             `json:"user_id" bson:"user_id"`
	LastPing   time.Time          `json:"last_ping" bson:"last_ping"`
	IsActive   bool               `json:"is_active" bson:"is_active"`
	IdleTime   float64            `json:"idle_time" bson:"idle_time"`
	PageURL    string             `json:"page_url" bson:"page_url"`
	DeviceType string             `json:"device_type" bson:"device_type"`
	Country    string             `json:"country" bson:"country"`
	City       string             `json:"city" bson:"city"`
	UpdatedAt  time.Time          `json:"updated_at" bson:"updated_at"`
}

type PageMetrics struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	URL             string             `json:"url" bson:"url"`
	Views           int64              `json:"views" bson:"views"`
	TotalDuration   float64            `json:"total_duration" bson:"total_duration"`
	DurationSamples int64              `json:"duration_samples" bson:"duration_samples"`
	LastViewedAt    time.Time          `json:"last_viewed_at" bson:"last_viewed_at"`
}

func (p PageMetrics) AverageDuration() float64 {
	if p.DurationSamples == 0 {
		return 0
	}
	return p.TotalDuration / float64(p.DurationSamples)
}
