package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type VisitorStatus string

const (
	VisitorStatusNew       VisitorStatus = "new"
	VisitorStatusReturning VisitorStatus = "returning"
)

type Visitor struct {
	ID           primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	UserID       string              `json:"user_id" bson:"user_id"`
	AnonymousID  string              `json:"anonymous_id,omitempty" bson:"anonymous_id,omitempty"`
	FirstSeenAt  time.Time           `json:"first_seen_at" bson:"first_seen_at"`
	LastSeenAt   time.Time           `json:"last_seen_at" bson:"last_seen_at"`
	LastActiveAt time.Time           `json:"last_active_at" bson:"last_active_at"`
	IsOnline     bool                `json:"is_online" bson:"is_online"`
	Status       VisitorStatus       `json:"status" bson:"status"`
	Device       DeviceInfo          `json:"device" bson:"device"`
	Location     Location            `json:"location" bson:"location"`
	Referrer     ReferrerInfo        `json:"referrer" bson:"referrer"`
	Engagement   EngagementAggregate `json:"engagement" bson:"engagement"`
	CreatedAt    time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" bson:"updated_at"`
}

type DeviceInfo struct {
	OS         string `json:"os" bson:"os"`
	Browser    string `json:"browser" bson:"browser"`
	DeviceType string `json:"device_type" bson:"device_type"`
	UserAgent  string `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
	Language   string `json:"language,omitempty" bson:"language,omitempty"`
	Screen     string `json:"screen,omitempty" bson:"screen,omitempty"`
}

// Normalize defaults empty device fields so aggregations never group on "".
func (d DeviceInfo) Normalize() DeviceInfo {
	if d.OS == "" {
		d.OS = "unknown"
	}
	if d.Browser == "" {
		d.Browser = "unknown"
	}
	if d.DeviceType == "" {
		d.DeviceType = "desktop"
	}
	return d
}

type ReferrerInfo struct {
	Source   string `json:"source" bson:"source"`
	Medium   string `json:"medium" bson:"medium"`
	Campaign string `json:"campaign,omitempty" bson:"campaign,omitempty"`
	URL      string `json:"url,omitempty" bson:"url,omitempty"`
	IsDirect bool   `json:"is_direct" bson:"is_direct"`
}

func (r ReferrerInfo) Normalize() ReferrerInfo {
	if r.Source == "" && r.URL == "" {
		r.Source = "direct"
		r.Medium = "none"
		r.IsDirect = true
	}
	if r.Medium == "" {
		r.Medium = "referral"
	}
	return r
}

// EngagementAggregate is recomputed from session history, never patched.
type EngagementAggregate struct {
	TotalSessions      int64      `json:"total_sessions" bson:"total_sessions"`
	TotalTimeSpent     float64    `json:"total_time_spent" bson:"total_time_spent"`
	TotalEvents        int64      `json:"total_events" bson:"total_events"`
	AverageSessionTime float64    `json:"average_session_time" bson:"average_session_time"`
	LastSessionAt      *time.Time `json:"last_session_at,omitempty" bson:"last_session_at,omitempty"`
}
