package validators

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"visitrack/internal/models"
)

type FunnelStepRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	EventType string `json:"event_type" validate:"required,event_type"`
	EventName string `json:"event_name" validate:"required,max=200"`
}

type FunnelRequest struct {
	Name        string              `json:"name" validate:"required,min=1,max=100"`
	Description string              `json:"description" validate:"omitempty,max=500"`
	WebsiteID   string              `json:"website_id" validate:"omitempty,max=128"`
	Steps       []FunnelStepRequest `json:"steps" validate:"required,min=1,max=20,dive"`
	IsActive    *bool               `json:"is_active"`
}

func (r *FunnelRequest) ToModel() *models.Funnel {
	funnel := &models.Funnel{
		Name:        r.Name,
		Description: r.Description,
		WebsiteID:   r.WebsiteID,
		IsActive:    true,
	}
	if r.IsActive != nil {
		funnel.IsActive = *r.IsActive
	}
	for _, s := range r.Steps {
		funnel.Steps = append(funnel.Steps, models.FunnelStep{
			Name:      s.Name,
			EventType: s.EventType,
			EventName: s.EventName,
		})
	}
	return funnel
}

type SegmentRuleRequest struct {
	Field    string      `json:"field" validate:"required,max=100"`
	Operator string      `json:"operator" validate:"required,segment_operator"`
	Value    interface{} `json:"value"`
}

type SegmentRequest struct {
	Name        string               `json:"name" validate:"required,min=1,max=100"`
	Description string               `json:"description" validate:"omitempty,max=500"`
	Rules       []SegmentRuleRequest `json:"rules" validate:"required,min=1,max=50,dive"`
}

func ValidateSegment(req *SegmentRequest) ValidationErrors {
	errs := ValidateStruct(req)
	for i, rule := range req.Rules {
		if rule.Operator != models.SegmentOpExists && rule.Value == nil {
			errs = append(errs, ValidationError{
				Field:   "rules[" + strconv.Itoa(i) + "].value",
				Tag:     "required",
				Message: "value is required for operator " + rule.Operator,
			})
		}
	}
	return errs
}

func (r *SegmentRequest) ToModel() *models.Segment {
	segment := &models.Segment{
		Name:        r.Name,
		Description: r.Description,
	}
	for _, rule := range r.Rules {
		segment.Rules = append(segment.Rules, models.SegmentRule{
			Field:    rule.Field,
			Operator: rule.Operator,
			Value:    rule.Value,
		})
	}
	return segment
}

type GoalRequest struct {
	Name      string                 `json:"name" validate:"required,max=100"`
	UserID    string                 `json:"user_id" validate:"required,max=256"`
	SessionID string                 `json:"session_id" validate:"required,max=128"`
	FunnelID  string                 `json:"funnel_id" validate:"omitempty,object_id"`
	StepIndex *int                   `json:"step_index" validate:"omitempty,min=0"`
	Value     float64                `json:"value" validate:"min=0"`
	Currency  string                 `json:"currency" validate:"omitempty,currency_code"`
	Metadata  map[string]interface{} `json:"metadata"`
}

func (r *GoalRequest) ToModel(now time.Time) *models.Goal {
	goal := &models.Goal{
		Name:        r.Name,
		UserID:      r.UserID,
		SessionID:   r.SessionID,
		StepIndex:   r.StepIndex,
		Value:       r.Value,
		Currency:    r.Currency,
		Metadata:    r.Metadata,
		CompletedAt: now,
	}
	if r.FunnelID != "" {
		if id, err := primitive.ObjectIDFromHex(r.FunnelID); err == nil {
			goal.FunnelID = &id
		}
	}
	return goal
}

type DateRangePurgeRequest struct {
	From time.Time `json:"from" validate:"required"`
	To   time.Time `json:"to" validate:"required,gtefield=From"`
}

// DurationPurgeRequest needs at least one bound.
type DurationPurgeRequest struct {
	MinSeconds *float64 `json:"min_seconds" validate:"omitempty,min=0"`
	MaxSeconds *float64 `json:"max_seconds" validate:"omitempty,min=0"`
}

type ExportRequest struct {
	From      *time.Time `json:"from"`
	To        *time.Time `json:"to"`
	EventType string     `json:"event_type" validate:"omitempty,event_type"`
	Limit     int        `json:"limit" validate:"omitempty,min=1,max=100000"`
}
