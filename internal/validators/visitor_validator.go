package validators

import (
	"strings"
	"time"

	"visitrack/internal/models"
)

type DeviceInfoRequest struct {
	OS         string `json:"os" validate:"omitempty,max=100"`
	Browser    string `json:"browser" validate:"omitempty,max=100"`
	DeviceType string `json:"device_type" validate:"omitempty,max=50"`
	UserAgent  string `json:"user_agent" validate:"omitempty,max=1024"`
	Language   string `json:"language" validate:"omitempty,max=35"`
	Screen     string `json:"screen" validate:"omitempty,max=32"`
}

type LocationRequest struct {
	Country   string  `json:"country" validate:"omitempty,max=100"`
	City      string  `json:"city" validate:"omitempty,max=100"`
	Region    string  `json:"region" validate:"omitempty,max=100"`
	Timezone  string  `json:"timezone" validate:"omitempty,max=64"`
	Latitude  float64 `json:"latitude" validate:"latitude_value"`
	Longitude float64 `json:"longitude" validate:"longitude_value"`
}

type ReferrerRequest struct {
	Source   string `json:"source" validate:"omitempty,max=200"`
	Medium   string `json:"medium" validate:"omitempty,max=100"`
	Campaign string `json:"campaign" validate:"omitempty,max=200"`
	URL      string `json:"url" validate:"omitempty,max=2048"`
}

type CurrentPageRequest struct {
	URL      string  `json:"url" validate:"required,max=2048"`
	Title    string  `json:"title" validate:"omitempty,max=512"`
	Referrer string  `json:"referrer" validate:"omitempty,max=2048"`
	Duration float64 `json:"duration" validate:"min=0"`
}

// ClaimEventRequest is an event buffered by the client and flushed with a ping.
// The session is resolved server side.
type ClaimEventRequest struct {
	EventID   string                 `json:"event_id" validate:"omitempty,max=128"`
	EventType string                 `json:"event_type" validate:"required,event_type"`
	EventName string                 `json:"event_name" validate:"required,max=200"`
	Timestamp *time.Time             `json:"timestamp"`
	Duration  float64                `json:"duration" validate:"min=0"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type ClaimRequest struct {
	UserID           string              `json:"user_id" validate:"required,max=256"`
	AnonymousID      string              `json:"anonymous_id" validate:"omitempty,max=256"`
	ActionType       string              `json:"action_type" validate:"omitempty,oneof=page_view heartbeat page_leave"`
	Reset            bool                `json:"reset"`
	DeviceInfo       *DeviceInfoRequest  `json:"device_info"`
	Location         *LocationRequest    `json:"location"`
	Referrer         *ReferrerRequest    `json:"referrer"`
	CurrentPage      *CurrentPageRequest `json:"current_page"`
	PageStayDuration float64             `json:"page_stay_duration" validate:"min=0"`
	Events           []ClaimEventRequest `json:"events" validate:"omitempty,max=1000,dive"`
}

func ValidateClaim(req *ClaimRequest) ValidationErrors {
	req.UserID = strings.TrimSpace(req.UserID)
	return ValidateStruct(req)
}

// ToAction converts the request into the state machine input. Request
// metadata (client IP, headers) is filled in by the handler.
func (r *ClaimRequest) ToAction(now time.Time) models.VisitorAction {
	action := models.VisitorAction{
		UserID:           r.UserID,
		AnonymousID:      r.AnonymousID,
		ActionType:       models.ActionType(r.ActionType),
		Reset:            r.Reset,
		PageStayDuration: r.PageStayDuration,
		Timestamp:        now,
	}
	if action.ActionType == "" {
		action.ActionType = models.ActionTypePageView
	}
	if r.DeviceInfo != nil {
		action.Device = models.DeviceInfo{
			OS:         r.DeviceInfo.OS,
			Browser:    r.DeviceInfo.Browser,
			DeviceType: strings.ToLower(r.DeviceInfo.DeviceType),
			UserAgent:  r.DeviceInfo.UserAgent,
			Language:   r.DeviceInfo.Language,
			Screen:     r.DeviceInfo.Screen,
		}
	}
	if r.Location != nil {
		loc := r.Location.ToModel()
		action.Location = &loc
	}
	if r.Referrer != nil {
		action.Referrer = models.ReferrerInfo{
			Source:   r.Referrer.Source,
			Medium:   r.Referrer.Medium,
			Campaign: r.Referrer.Campaign,
			URL:      r.Referrer.URL,
		}
	}
	if r.CurrentPage != nil {
		action.CurrentPage = &models.CurrentPage{
			URL:      r.CurrentPage.URL,
			Title:    r.CurrentPage.Title,
			Referrer: r.CurrentPage.Referrer,
			Duration: r.CurrentPage.Duration,
		}
	}
	for _, e := range r.Events {
		ts := now
		if e.Timestamp != nil && !e.Timestamp.IsZero() {
			ts = *e.Timestamp
		}
		action.Events = append(action.Events, models.Event{
			EventID:   e.EventID,
			UserID:    r.UserID,
			EventType: e.EventType,
			EventName: e.EventName,
			Timestamp: ts,
			Duration:  e.Duration,
			Metadata:  e.Metadata,
			Source:    models.IngestSourceClaim,
		})
	}
	return action
}

func (r *LocationRequest) ToModel() models.Location {
	return models.Location{
		Country:   r.Country,
		City:      r.City,
		Region:    r.Region,
		Timezone:  r.Timezone,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Source:    models.LocationSourceClient,
	}
}
