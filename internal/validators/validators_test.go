package validators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"visitrack/internal/models"
)

func TestValidateEvent(t *testing.T) {
	tests := []struct {
		name     string
		req      EventRequest
		expected []string
	}{
		{
			name: "Valid",
			req:  EventRequest{UserID: " u1 ", SessionID: "s1", EventType: "video_play", EventName: "intro"},
		},
		{
			name:     "Missing fields",
			req:      EventRequest{},
			expected: []string{"user_id", "session_id", "event_type", "event_name"},
		},
		{
			name:     "Event type must be an identifier",
			req:      EventRequest{UserID: "u1", SessionID: "s1", EventType: "Page View", EventName: "x"},
			expected: []string{"event_type"},
		},
		{
			name:     "Negative duration",
			req:      EventRequest{UserID: "u1", SessionID: "s1", EventType: "page_leave", EventName: "x", Duration: -1},
			expected: []string{"duration"},
		},
		{
			name: "Client location out of range",
			req: EventRequest{UserID: "u1", SessionID: "s1", EventType: "click", EventName: "x",
				Location: &LocationRequest{Latitude: 91}},
			expected: []string{"location.latitude"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateEvent(&tt.req).ToMap()
			assert.Len(t, errs, len(tt.expected))
			for _, field := range tt.expected {
				assert.Contains(t, errs, field)
			}
		})
	}
}

func TestValidateClaim(t *testing.T) {
	tests := []struct {
		name     string
		req      ClaimRequest
		expected []string
	}{
		{name: "Minimal", req: ClaimRequest{UserID: "u1"}},
		{name: "Blank user", req: ClaimRequest{UserID: "  "}, expected: []string{"user_id"}},
		{name: "Unknown action", req: ClaimRequest{UserID: "u1", ActionType: "jump"}, expected: []string{"action_type"}},
		{
			name:     "Buffered event without type",
			req:      ClaimRequest{UserID: "u1", Events: []ClaimEventRequest{{EventName: "x"}}},
			expected: []string{"events[0].event_type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateClaim(&tt.req).ToMap()
			assert.Len(t, errs, len(tt.expected))
			for _, field := range tt.expected {
				assert.Contains(t, errs, field)
			}
		})
	}
}

func TestClaimRequestToAction(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Minute)
	req := ClaimRequest{
		UserID:     "u1",
		DeviceInfo: &DeviceInfoRequest{DeviceType: "Mobile"},
		Location:   &LocationRequest{Country: "Japan"},
		Events: []ClaimEventRequest{
			{EventType: "click", EventName: "cta"},
			{EventType: "scroll", EventName: "page", Timestamp: &earlier},
		},
	}

	action := req.ToAction(now)

	assert.Equal(t, models.ActionTypePageView, action.ActionType)
	assert.Equal(t, "mobile", action.Device.DeviceType)
	assert.Equal(t, models.LocationSourceClient, action.Location.Source)
	assert.Len(t, action.Events, 2)
	assert.Equal(t, now, action.Events[0].Timestamp)
	assert.Equal(t, earlier, action.Events[1].Timestamp)
	assert.Equal(t, "u1", action.Events[1].UserID)
	assert.Equal(t, models.IngestSourceClaim, action.Events[1].Source)
}

func TestValidateSegment(t *testing.T) {
	req := SegmentRequest{
		Name: "power users",
		Rules: []SegmentRuleRequest{
			{Field: "total_sessions", Operator: "gt"},
			{Field: "email", Operator: "exists"},
			{Field: "country", Operator: "like", Value: "x"},
		},
	}

	errs := ValidateSegment(&req).ToMap()

	assert.Len(t, errs, 2)
	assert.Contains(t, errs, "rules[0].value")
	assert.Contains(t, errs, "rules[2].operator")
}
