package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitrack/internal/models"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
)

type visitorHarness struct {
	svc      VisitorService
	visitors *fakeVisitorRepo
	sessions *fakeSessionRepo
	events   *fakeEventRepo
	presence *fakePresenceRepo
	pages    *fakePageMetricsRepo
	geo      *fakeGeo
	feed     *fakeFeed
	clock    time.Time
}

func newVisitorHarness() *visitorHarness {
	h := &visitorHarness{
		visitors: newFakeVisitorRepo(),
		sessions: newFakeSessionRepo(),
		events:   newFakeEventRepo(),
		presence: newFakePresenceRepo(),
		pages:    newFakePageMetricsRepo(),
		geo:      &fakeGeo{loc: models.Location{Country: "Germany", City: "Berlin", Source: models.LocationSourceLookup}},
		feed:     &fakeFeed{},
		clock:    time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
	log := logger.NewNop()
	h.svc = NewVisitorService(
		h.visitors, h.sessions, h.events, h.presence, h.pages,
		h.geo,
		NewUserLocker(nil, 0, log),
		nil,
		h.feed,
		TransitionPolicy{SessionTimeout: 30 * time.Minute, OfflineThreshold: 2 * time.Minute},
		"evt",
		log,
	)
	h.svc.(*visitorService).now = func() time.Time { return h.clock }
	return h
}

func (h *visitorHarness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func (h *visitorHarness) claim(t *testing.T, action *models.VisitorAction) *models.ClaimResult {
	t.Helper()
	result, err := h.svc.RecordVisitorAction(context.Background(), action)
	require.NoError(t, err)
	return result
}

func pageView(userID, url string) *models.VisitorAction {
	return &models.VisitorAction{
		UserID:      userID,
		ActionType:  models.ActionTypePageView,
		CurrentPage: &models.CurrentPage{URL: url, Title: url},
	}
}

func TestRecordVisitorActionFirstVisit(t *testing.T) {
	h := newVisitorHarness()

	result := h.claim(t, pageView("u1", "/home"))

	assert.Equal(t, TransitionNewVisitor, result.Transition)
	assert.True(t, result.IsNewVisitor)
	assert.True(t, result.IsNewSession)
	assert.True(t, result.IsOnline)
	assert.Equal(t, models.VisitorStatusNew, result.Status)
	assert.NotEmpty(t, result.SessionID)

	active := h.sessions.activeFor("u1")
	require.Len(t, active, 1)
	assert.Equal(t, result.SessionID, active[0].SessionID)
	assert.Equal(t, []string{"/home"}, active[0].PageURLs())
	assert.Equal(t, "Germany", active[0].Location.Country)

	visitor, err := h.visitors.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), visitor.Engagement.TotalSessions)
	assert.Equal(t, "Berlin", visitor.Location.City)

	assert.Equal(t, int64(1), h.pages.viewCount("/home"))
	assert.Len(t, h.feed.ofType("session_started"), 1)
	assert.Len(t, h.feed.ofType("visitor_action"), 1)
	assert.Equal(t, 1, h.geo.lookups())
}

func TestRecordVisitorActionContinuation(t *testing.T) {
	h := newVisitorHarness()
	first := h.claim(t, pageView("u1", "/home"))

	h.advance(5 * time.Minute)
	second := h.claim(t, pageView("u1", "/pricing"))

	assert.Equal(t, TransitionPageViewContinuation, second.Transition)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.False(t, second.IsNewSession)
	assert.False(t, second.IsNewVisitor)

	session := h.sessions.get(first.SessionID)
	require.NotNil(t, session)
	require.Len(t, session.PageSequence, 2)
	assert.Equal(t, 300.0, session.PageSequence[0].Duration)
	assert.Equal(t, 0.0, session.PageSequence[1].Duration)
	assert.Equal(t, h.clock, session.LastActivity)
	assert.Equal(t, int64(1), h.pages.viewCount("/pricing"))
	assert.Len(t, h.feed.ofType("session_started"), 1)
}

func TestRecordVisitorActionSessionTimeout(t *testing.T) {
	h := newVisitorHarness()
	first := h.claim(t, pageView("u1", "/home"))

	h.advance(31 * time.Minute)
	second := h.claim(t, pageView("u1", "/blog"))

	assert.Equal(t, TransitionPageViewNewSession, second.Transition)
	assert.True(t, second.IsNewSession)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, models.VisitorStatusReturning, second.Status)

	prior := h.sessions.get(first.SessionID)
	require.NotNil(t, prior)
	assert.False(t, prior.IsActive)
	assert.NotNil(t, prior.EndTime)

	active := h.sessions.activeFor("u1")
	require.Len(t, active, 1)
	assert.Equal(t, second.SessionID, active[0].SessionID)

	ended := h.feed.ofType("session_ended")
	require.Len(t, ended, 1)
	assert.Equal(t, first.SessionID, ended[0].data["session_id"])
}

func TestRecordVisitorActionReactivation(t *testing.T) {
	h := newVisitorHarness()
	first := h.claim(t, pageView("u1", "/home"))

	h.advance(10 * time.Minute)
	h.visitors.mu.Lock()
	h.visitors.visitors["u1"].IsOnline = false
	h.visitors.mu.Unlock()

	result := h.claim(t, &models.VisitorAction{
		UserID:      "u1",
		ActionType:  models.ActionTypeHeartbeat,
		CurrentPage: &models.CurrentPage{URL: "/pricing", Title: "Pricing"},
	})

	assert.Equal(t, TransitionReturningReactivation, result.Transition)
	assert.True(t, result.IsNewSession)
	assert.NotEqual(t, first.SessionID, result.SessionID)
	assert.Equal(t, models.VisitorStatusReturning, result.Status)
	assert.True(t, result.IsOnline)
	assert.False(t, h.sessions.get(first.SessionID).IsActive)

	reopened := h.sessions.get(result.SessionID)
	require.NotNil(t, reopened)
	assert.Empty(t, reopened.PageSequence)
	assert.Equal(t, int64(0), h.pages.viewCount("/pricing"))
}

func TestRecordVisitorActionHeartbeat(t *testing.T) {
	h := newVisitorHarness()
	first := h.claim(t, pageView("u1", "/home"))

	h.advance(time.Minute)
	result := h.claim(t, &models.VisitorAction{UserID: "u1", ActionType: models.ActionTypeHeartbeat})

	assert.Equal(t, TransitionHeartbeat, result.Transition)
	assert.Equal(t, first.SessionID, result.SessionID)
	assert.False(t, result.IsNewSession)
	assert.Equal(t, h.clock, h.sessions.get(first.SessionID).LastActivity)
	assert.Equal(t, int64(1), h.pages.viewCount("/home"))

	h.presence.mu.Lock()
	presence := h.presence.presence["u1"]
	h.presence.mu.Unlock()
	require.NotNil(t, presence)
	assert.Equal(t, "/home", presence.PageURL)
	assert.Equal(t, h.clock, presence.LastPing)
}

func TestRecordVisitorActionPageLeave(t *testing.T) {
	h := newVisitorHarness()
	first := h.claim(t, pageView("u1", "/home"))

	tests := []struct {
		name      string
		action    *models.VisitorAction
		durations []float64
	}{
		{
			name: "Milliseconds are converted",
			action: &models.VisitorAction{
				UserID:      "u1",
				ActionType:  models.ActionTypePageLeave,
				CurrentPage: &models.CurrentPage{URL: "/home", Duration: 45000},
			},
			durations: []float64{45},
		},
		{
			name: "Over an hour is discarded",
			action: &models.VisitorAction{
				UserID:           "u1",
				ActionType:       models.ActionTypePageLeave,
				PageStayDuration: 5000000,
			},
			durations: []float64{45},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.advance(time.Minute)
			result := h.claim(t, tt.action)

			assert.Equal(t, TransitionPageLeave, result.Transition)
			assert.Equal(t, first.SessionID, result.SessionID)
			assert.Equal(t, tt.durations, h.pages.durationsFor("/home"))
		})
	}

	session := h.sessions.get(first.SessionID)
	assert.Equal(t, 45.0, session.PageSequence[0].Duration)
	assert.True(t, session.IsActive)
}

func TestRecordVisitorActionStoresEvents(t *testing.T) {
	h := newVisitorHarness()
	action := pageView("u1", "/home")
	action.Events = []models.Event{
		{EventType: "click", EventName: "cta"},
		{EventType: "scroll", Timestamp: h.clock.Add(-time.Second)},
	}

	result := h.claim(t, action)

	assert.Equal(t, 2, result.EventsStored)
	stored := h.events.all()
	require.Len(t, stored, 2)
	for _, e := range stored {
		assert.Equal(t, "u1", e.UserID)
		assert.Equal(t, result.SessionID, e.SessionID)
		assert.Equal(t, models.IngestSourceClaim, e.Source)
		assert.NotEmpty(t, e.EventID)
		require.NotNil(t, e.Location)
		assert.Equal(t, "Germany", e.Location.Country)
	}
	assert.Equal(t, h.clock, stored[0].Timestamp)
	assert.Equal(t, h.clock.Add(-time.Second), stored[1].Timestamp)
}

func TestRecordVisitorActionReset(t *testing.T) {
	h := newVisitorHarness()
	action := pageView("u1", "/home")
	action.Events = []models.Event{{EventType: "click"}}
	first := h.claim(t, action)

	h.advance(time.Minute)
	reset := pageView("u1", "/welcome")
	reset.Reset = true
	result := h.claim(t, reset)

	assert.Equal(t, TransitionNewVisitor, result.Transition)
	assert.True(t, result.IsNewVisitor)
	assert.Equal(t, models.VisitorStatusNew, result.Status)
	assert.NotEqual(t, first.SessionID, result.SessionID)
	assert.Nil(t, h.sessions.get(first.SessionID))
	assert.Empty(t, h.events.all())

	visitor, err := h.visitors.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, h.clock, visitor.FirstSeenAt)
	assert.Equal(t, int64(1), visitor.Engagement.TotalSessions)
}

func TestRecordVisitorActionClientLocationWins(t *testing.T) {
	h := newVisitorHarness()
	action := pageView("u1", "/home")
	action.Location = &models.Location{Country: "Japan", City: "Osaka", Source: models.LocationSourceClient}

	h.claim(t, action)

	visitor, err := h.visitors.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Osaka", visitor.Location.City)
}

func TestRecordVisitorActionValidation(t *testing.T) {
	tests := []struct {
		name   string
		action *models.VisitorAction
		field  string
	}{
		{name: "Nil action", action: nil, field: "user_id"},
		{name: "Missing user", action: &models.VisitorAction{ActionType: models.ActionTypePageView}, field: "user_id"},
		{name: "Unknown action type", action: &models.VisitorAction{UserID: "u1", ActionType: "jump"}, field: "action_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newVisitorHarness()
			_, err := h.svc.RecordVisitorAction(context.Background(), tt.action)
			require.Error(t, err)
			assert.True(t, errors.Is(err, utils.ErrValidation))
			assert.Contains(t, utils.ErrorDetails(err), tt.field)
			assert.Equal(t, 0, h.geo.lookups())
		})
	}
}

func TestRecordVisitorActionDefaultsToPageView(t *testing.T) {
	h := newVisitorHarness()
	action := &models.VisitorAction{UserID: "u1", CurrentPage: &models.CurrentPage{URL: "/"}}

	result := h.claim(t, action)

	assert.Equal(t, models.ActionTypePageView, action.ActionType)
	assert.Equal(t, TransitionNewVisitor, result.Transition)
}

func TestRecordVisitorActionPersistenceFailure(t *testing.T) {
	h := newVisitorHarness()
	first := h.claim(t, pageView("u1", "/home"))

	h.sessions.mu.Lock()
	h.sessions.saveErr = errFakeStore
	h.sessions.mu.Unlock()

	h.advance(time.Minute)
	_, err := h.svc.RecordVisitorAction(context.Background(), pageView("u1", "/pricing"))

	assert.ErrorIs(t, err, errFakeStore)
	assert.Len(t, h.sessions.get(first.SessionID).PageSequence, 1)
}

func TestGetVisitor(t *testing.T) {
	h := newVisitorHarness()
	h.claim(t, pageView("u1", "/home"))
	h.advance(time.Hour)
	h.claim(t, pageView("u1", "/home"))

	detail, err := h.svc.GetVisitor(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", detail.Visitor.UserID)
	assert.Len(t, detail.Sessions, 2)

	_, err = h.svc.GetVisitor(context.Background(), "missing")
	assert.True(t, errors.Is(err, utils.ErrNotFound))
}
