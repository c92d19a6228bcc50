package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PageVisit struct {
	URL       string    `json:"url" bson:"url"`
	Title     string    `json:"title" bson:"title"`
	Duration  float64   `json:"duration" bson:"duration"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Referrer  string    `json:"referrer,omitempty" bson:"referrer,omitempty"`
}

type SessionClassification struct {
	Class        string  `json:"class" bson:"class"`
	Score        float64 `json:"score" bson:"score"`
	ModelVersion string  `json:"model_version" bson:"model_version"`
}

type Session struct {
	ID             primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	SessionID      string                 `json:"session_id" bson:"session_id"`
	UserID         string                 `json:"user_id" bson:"user_id"`
	StartTime      time.Time              `json:"start_time" bson:"start_time"`
	EndTime        *time.Time             `json:"end_time,omitempty" bson:"end_time,omitempty"`
	Duration       float64                `json:"duration" bson:"duration"`
	LastActivity   time.Time              `json:"last_activity" bson:"last_activity"`
	IsActive       bool                   `json:"is_active" bson:"is_active"`
	PageSequence   []PageVisit            `json:"page_sequence" bson:"page_sequence"`
	Device         DeviceInfo             `json:"device" bson:"device"`
	Location       Location               `json:"location" bson:"location"`
	Referrer       ReferrerInfo           `json:"referrer" bson:"referrer"`
	Classification *SessionClassification `json:"classification,omitempty" bson:"classification,omitempty"`
	CreatedAt      time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at" bson:"updated_at"`
}

// RecomputeDuration sets Duration to (EndTime or now) minus StartTime, in seconds.
func (s *Session) RecomputeDuration(now time.Time) {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	d := end.Sub(s.StartTime).Seconds()
	if d < 0 {
		d = 0
	}
	s.Duration = d
}

func (s *Session) Close(now time.Time) {
	s.IsActive = false
	s.EndTime = &now
	s.RecomputeDuration(now)
	s.UpdatedAt = now
}

func (s *Session) LastPage() *PageVisit {
	if len(s.PageSequence) == 0 {
		return nil
	}
	return &s.PageSequence[len(s.PageSequence)-1]
}

// AppendPage adds a page visit, nudging its timestamp forward if needed so
// the sequence stays strictly ordered.
func (s *Session) AppendPage(p PageVisit) {
	if last := s.LastPage(); last != nil && !p.Timestamp.After(last.Timestamp) {
		p.Timestamp = last.Timestamp.Add(time.Millisecond)
	}
	s.PageSequence = append(s.PageSequence, p)
}

// FinalizePage records seconds on the most recent visit to url. Without a
// matching url it falls back to the last page, but only while that page has
// no duration yet. Returns false when nothing changed.
func (s *Session) FinalizePage(url string, seconds float64) bool {
	if url != "" {
		for i := len(s.PageSequence) - 1; i >= 0; i-- {
			if s.PageSequence[i].URL == url {
				s.PageSequence[i].Duration = seconds
				return true
			}
		}
	}
	last := s.LastPage()
	if last == nil || last.Duration > 0 {
		return false
	}
	last.Duration = seconds
	return true
}

func (s *Session) PageURLs() []string {
	urls := make([]string, 0, len(s.PageSequence))
	for _, p := range s.PageSequence {
		urls = append(urls, p.URL)
	}
	return urls
}
