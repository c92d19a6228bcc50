package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SegmentOpEquals    = "equals"
	SegmentOpNotEquals = "not_equals"
	SegmentOpContains  = "contains"
	SegmentOpGT        = "gt"
	SegmentOpGTE       = "gte"
	SegmentOpLT        = "lt"
	SegmentOpLTE       = "lte"
	SegmentOpIn        = "in"
	SegmentOpExists    = "exists"
)

type SegmentRule struct {
	Field    string      `json:"field" bson:"field"`
	Operator string      `json:"operator" bson:"operator"`
	Value    interface{} `json:"value" bson:"value"`
}

// Segment rules are combined with AND.
type Segment struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name            string             `json:"name" bson:"name"`
	Description     string             `json:"description" bson:"description"`
	Rules           []SegmentRule      `json:"rules" bson:"rules"`
	MemberCount     int64              `json:"member_count" bson:"member_count"`
	LastEvaluatedAt *time.Time         `json:"last_evaluated_at,omitempty" bson:"last_evaluated_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}

type SegmentEvaluation struct {
	SegmentID   string    `json:"segment_id"`
	MemberCount int64     `json:"member_count"`
	Members     []string  `json:"members"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
