package models

import "time"

type SessionEngagement struct {
	SessionID      string  `json:"session_id"`
	Score          float64 `json:"score"`
	PageViews      int     `json:"page_views"`
	Interactions   int     `json:"interactions"`
	VideoEvents    int     `json:"video_events"`
	MaxScrollDepth float64 `json:"max_scroll_depth"`
	TotalEvents    int     `json:"total_events"`
}

type EngagementSubScores struct {
	Frequency    float64 `json:"frequency"`
	Duration     float64 `json:"duration"`
	PageViews    float64 `json:"page_views"`
	Interactions float64 `json:"interactions"`
}

type EngagementTrend struct {
	CurrentSessions  int64   `json:"current_sessions"`
	PreviousSessions int64   `json:"previous_sessions"`
	ChangePercent    float64 `json:"change_percent"`
	Direction        string  `json:"direction"`
}

type UserEngagement struct {
	UserID                 string              `json:"user_id"`
	Window                 string              `json:"window"`
	Score                  float64             `json:"score"`
	Tier                   string              `json:"tier"`
	SessionCount           int64               `json:"session_count"`
	AverageSessionDuration float64             `json:"average_session_duration"`
	AveragePagesPerSession float64             `json:"average_pages_per_session"`
	Interactions           int64               `json:"interactions"`
	SubScores              EngagementSubScores `json:"sub_scores"`
	Trend                  EngagementTrend     `json:"trend"`
}

type CohortRetention struct {
	Offset int     `json:"offset"`
	Users  float64 `json:"users"`
	Rate   float64 `json:"rate"`
}

type Cohort struct {
	Period    string            `json:"period"`
	Start     time.Time         `json:"start"`
	Size      int64             `json:"size"`
	Retention []CohortRetention `json:"retention"`
}

type CohortAnalysis struct {
	Granularity string    `json:"granularity"`
	Model       string    `json:"model"`
	Periods     int       `json:"periods"`
	Cohorts     []Cohort  `json:"cohorts"`
	GeneratedAt time.Time `json:"generated_at"`
}

type PathStat struct {
	Pages      []string `json:"pages"`
	Count      int64    `json:"count"`
	Percentage float64  `json:"percentage"`
}

type PageDropOff struct {
	URL         string  `json:"url"`
	Views       int64   `json:"views"`
	Exits       int64   `json:"exits"`
	DropOffRate float64 `json:"drop_off_rate"`
	Suggestion  string  `json:"suggestion"`
}

type PathAnalysis struct {
	SessionsAnalyzed int64         `json:"sessions_analyzed"`
	TopPaths         []PathStat    `json:"top_paths"`
	ConvertingPaths  []PathStat    `json:"converting_paths"`
	PageDropOffs     []PageDropOff `json:"page_drop_offs"`
}

type RealtimeUsers struct {
	Window      string           `json:"window"`
	ActiveUsers int64            `json:"active_users"`
	ByDevice    map[string]int64 `json:"by_device"`
	ByCountry   map[string]int64 `json:"by_country"`
	GeneratedAt time.Time        `json:"generated_at"`
}

type SystemMetrics struct {
	EventsLastHour      int64     `json:"events_last_hour"`
	EventsLastDay       int64     `json:"events_last_day"`
	EventsPerSecond     float64   `json:"events_per_second"`
	ActiveSessions      int64     `json:"active_sessions"`
	NewSessionsLastHour int64     `json:"new_sessions_last_hour"`
	NewUsersLastDay     int64     `json:"new_users_last_day"`
	ConversionRate      float64   `json:"conversion_rate"`
	GeneratedAt         time.Time `json:"generated_at"`
}

type TopPage struct {
	URL             string  `json:"url"`
	Views           int64   `json:"views"`
	AverageDuration float64 `json:"average_duration"`
}

type PurgeResult struct {
	Criteria        string `json:"criteria"`
	SessionsDeleted int64  `json:"sessions_deleted"`
}

type ExportResult struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	Events      int       `json:"events"`
	GeneratedAt time.Time `json:"generated_at"`
}
