package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Goal struct {
	ID          primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	Name        string                 `json:"name" bson:"name"`
	UserID      string                 `json:"user_id" bson:"user_id"`
	SessionID   string                 `json:"session_id" bson:"session_id"`
	FunnelID    *primitive.ObjectID    `json:"funnel_id,omitempty" bson:"funnel_id,omitempty"`
	StepIndex   *int                   `json:"step_index,omitempty" bson:"step_index,omitempty"`
	Value       float64                `json:"value" bson:"value"`
	Currency    string                 `json:"currency,omitempty" bson:"currency,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CompletedAt time.Time              `json:"completed_at" bson:"completed_at"`
	CreatedAt   time.Time              `json:"created_at" bson:"created_at"`
}

type GoalStats struct {
	Name        string  `json:"name" bson:"_id"`
	Completions int64   `json:"completions" bson:"completions"`
	TotalValue  float64 `json:"total_value" bson:"total_value"`
	UniqueUsers int64   `json:"unique_users" bson:"unique_users"`
}
