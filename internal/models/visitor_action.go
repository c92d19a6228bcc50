package models

import "time"

type ActionType string

const (
	ActionTypePageView  ActionType = "page_view"
	ActionTypeHeartbeat ActionType = "heartbeat"
	ActionTypePageLeave ActionType = "page_leave"
)

type CurrentPage struct {
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Referrer string  `json:"referrer"`
	Duration float64 `json:"duration"`
}

// LocaleHints are request headers used when no IP based location is available.
type LocaleHints struct {
	AcceptLanguage string
	Timezone       string
}

// VisitorAction is one client ping handed to the session state machine.
type VisitorAction struct {
	UserID           string
	AnonymousID      string
	ActionType       ActionType
	Reset            bool
	Device           DeviceInfo
	Location         *Location
	Referrer         ReferrerInfo
	CurrentPage      *CurrentPage
	PageStayDuration float64
	Events           []Event
	ClientIP         string
	Hints            LocaleHints
	Timestamp        time.Time
}

type ClaimResult struct {
	UserID       string        `json:"user_id"`
	SessionID    string        `json:"session_id"`
	Transition   string        `json:"transition"`
	Status       VisitorStatus `json:"status"`
	IsNewVisitor bool          `json:"is_new_visitor"`
	IsNewSession bool          `json:"is_new_session"`
	IsOnline     bool          `json:"is_online"`
	EventsStored int           `json:"events_stored"`
}

type BatchItemError struct {
	Index   int    `json:"index"`
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error"`
}

type BatchResult struct {
	Received int              `json:"received"`
	Inserted int              `json:"inserted"`
	Failed   int              `json:"failed"`
	EventIDs []string         `json:"event_ids"`
	Errors   []BatchItemError `json:"errors,omitempty"`
}

type RetryResult struct {
	Attempted int              `json:"attempted"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Errors    []BatchItemError `json:"errors,omitempty"`
}
