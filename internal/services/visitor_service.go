package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
	"visitrack/pkg/metrics"
	"visitrack/pkg/websocket"

	"golang.org/x/sync/errgroup"
)

// LiveFeed receives dashboard notifications. Publish must not block.
type LiveFeed interface {
	Publish(roomID, msgType string, data map[string]interface{}) bool
}

type VisitorService interface {
	RecordVisitorAction(ctx context.Context, action *models.VisitorAction) (*models.ClaimResult, error)
	GetVisitor(ctx context.Context, userID string) (*VisitorDetail, error)
	ListVisitors(ctx context.Context, params *utils.PaginationParams) ([]*models.Visitor, int64, error)
}

type VisitorDetail struct {
	Visitor  *models.Visitor   `json:"visitor"`
	Sessions []*models.Session `json:"sessions"`
}

const visitorDetailSessions = 50

type visitorService struct {
	visitorRepo     interfaces.VisitorRepository
	sessionRepo     interfaces.SessionRepository
	eventRepo       interfaces.EventRepository
	presenceRepo    interfaces.PresenceRepository
	pageMetricsRepo interfaces.PageMetricsRepository
	geo             GeolocationService
	locker          *UserLocker
	labeler         *SessionLabeler
	feed            LiveFeed
	engagement      *engagementAggregator
	policy          TransitionPolicy
	eventIDPrefix   string
	logger          *logger.Logger
	now             func() time.Time
}

func NewVisitorService(
	visitorRepo interfaces.VisitorRepository,
	sessionRepo interfaces.SessionRepository,
	eventRepo interfaces.EventRepository,
	presenceRepo interfaces.PresenceRepository,
	pageMetricsRepo interfaces.PageMetricsRepository,
	geo GeolocationService,
	locker *UserLocker,
	labeler *SessionLabeler,
	feed LiveFeed,
	policy TransitionPolicy,
	eventIDPrefix string,
	logger *logger.Logger,
) VisitorService {
	return &visitorService{
		visitorRepo:     visitorRepo,
		sessionRepo:     sessionRepo,
		eventRepo:       eventRepo,
		presenceRepo:    presenceRepo,
		pageMetricsRepo: pageMetricsRepo,
		geo:             geo,
		locker:          locker,
		labeler:         labeler,
		feed:            feed,
		engagement: &engagementAggregator{
			visitorRepo: visitorRepo,
			sessionRepo: sessionRepo,
			eventRepo:   eventRepo,
		},
		policy:        policy,
		eventIDPrefix: utils.CoalesceString(eventIDPrefix, "evt"),
		logger:        logger,
		now:           time.Now,
	}
}

// actionContext carries one action through decision, handling and persistence.
type actionContext struct {
	action   *models.VisitorAction
	now      time.Time
	location models.Location
	visitor  *models.Visitor
}

// actionPlan is what a transition handler wants written.
type actionPlan struct {
	visitor       *models.Visitor
	createVisitor bool
	reset         bool

	closePrior  *models.Session
	openSession *models.Session
	saveSession *models.Session

	viewedURL    string
	leftURL      string
	leftDuration float64
}

func (p *actionPlan) session() *models.Session {
	if p.openSession != nil {
		return p.openSession
	}
	return p.saveSession
}

func (s *visitorService) RecordVisitorAction(ctx context.Context, action *models.VisitorAction) (*models.ClaimResult, error) {
	if err := validateAction(action); err != nil {
		return nil, err
	}

	// Resolve location before taking the lock; lookups can be slow.
	location := s.geo.ParseLocation(ctx, action.Location, action.ClientIP, action.Hints)

	unlock, err := s.locker.Lock(ctx, action.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock visitor: %w", err)
	}
	defer unlock()

	ac := &actionContext{action: action, now: s.now(), location: location}

	visitor, err := s.visitorRepo.GetByUserID(ctx, action.UserID)
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		return nil, err
	}
	ac.visitor = visitor

	var active *models.Session
	if visitor != nil {
		active, err = s.sessionRepo.GetActiveByUserID(ctx, action.UserID)
		if err != nil && !errors.Is(err, utils.ErrNotFound) {
			return nil, err
		}
	}

	transition := decideTransition(TransitionInput{
		Now:           ac.now,
		ActionType:    action.ActionType,
		Reset:         action.Reset,
		Visitor:       visitor,
		ActiveSession: active,
	}, s.policy)

	var plan *actionPlan
	switch t := transition.(type) {
	case NewVisitor:
		plan = s.handleNewVisitor(ac, t)
	case ReturningReactivation:
		plan = s.handleReactivation(ac, t)
	case Heartbeat:
		plan = s.handleHeartbeat(ac, t)
	case PageLeave:
		plan = s.handlePageLeave(ac, t)
	case PageViewContinuation:
		plan = s.handlePageViewContinuation(ac, t)
	case PageViewNewSession:
		plan = s.handlePageViewNewSession(ac, t)
	default:
		return nil, fmt.Errorf("unhandled transition %T", transition)
	}

	result, err := s.apply(ctx, ac, transition, plan)
	if err != nil {
		return nil, err
	}

	metrics.SessionTransitions.WithLabelValues(transition.Name()).Inc()
	s.logger.LogVisitorAction(result.UserID, result.SessionID, transition.Name(), map[string]interface{}{
		"action_type":    string(action.ActionType),
		"is_new_session": result.IsNewSession,
		"events_stored":  result.EventsStored,
		"country":        plan.visitor.Location.Country,
	})
	s.publish(result, plan)

	return result, nil
}

func validateAction(action *models.VisitorAction) error {
	if action == nil || action.UserID == "" {
		return utils.NewValidationError("user_id is required", map[string]string{"user_id": "user_id is required"})
	}
	switch action.ActionType {
	case "":
		action.ActionType = models.ActionTypePageView
	case models.ActionTypePageView, models.ActionTypeHeartbeat, models.ActionTypePageLeave:
	default:
		return utils.NewValidationError("unsupported action_type", map[string]string{
			"action_type": "action_type must be one of page_view heartbeat page_leave",
		})
	}
	return nil
}

func (s *visitorService) handleNewVisitor(ac *actionContext, t NewVisitor) *actionPlan {
	a := ac.action
	visitor := &models.Visitor{
		UserID:       a.UserID,
		AnonymousID:  a.AnonymousID,
		FirstSeenAt:  ac.now,
		LastSeenAt:   ac.now,
		LastActiveAt: ac.now,
		IsOnline:     true,
		Status:       models.VisitorStatusNew,
		Device:       a.Device.Normalize(),
		Location:     ac.location,
		Referrer:     a.Referrer.Normalize(),
		CreatedAt:    ac.now,
	}

	session := s.newSession(ac, visitor)
	return &actionPlan{
		visitor:       visitor,
		createVisitor: true,
		reset:         t.Reset,
		openSession:   session,
		viewedURL:     seededURL(session),
	}
}

func (s *visitorService) handleReactivation(ac *actionContext, t ReturningReactivation) *actionPlan {
	visitor := ac.visitor
	s.touchVisitor(ac, visitor)
	visitor.Status = models.VisitorStatusReturning

	plan := &actionPlan{visitor: visitor}
	if t.Prior != nil {
		t.Prior.Close(ac.now)
		plan.closePrior = t.Prior
	}
	plan.openSession = s.newSession(ac, visitor)
	plan.viewedURL = seededURL(plan.openSession)
	return plan
}

func (s *visitorService) handleHeartbeat(ac *actionContext, t Heartbeat) *actionPlan {
	s.touchVisitor(ac, ac.visitor)

	plan := &actionPlan{visitor: ac.visitor}
	if t.Session != nil {
		t.Session.LastActivity = ac.now
		plan.saveSession = t.Session
	}
	return plan
}

func (s *visitorService) handlePageLeave(ac *actionContext, t PageLeave) *actionPlan {
	s.touchVisitor(ac, ac.visitor)

	plan := &actionPlan{visitor: ac.visitor}
	if t.Session == nil {
		return plan
	}

	t.Session.LastActivity = ac.now
	plan.saveSession = t.Session

	url, raw := pageLeaveInput(ac.action)
	if seconds, ok := utils.NormalizePageDuration(raw); ok {
		if t.Session.FinalizePage(url, seconds) {
			plan.leftURL = utils.CoalesceString(url, t.Session.LastPage().URL)
			plan.leftDuration = seconds
		}
	}
	return plan
}

func (s *visitorService) handlePageViewContinuation(ac *actionContext, t PageViewContinuation) *actionPlan {
	s.touchVisitor(ac, ac.visitor)
	session := t.Session

	if isBetterLocation(ac.location, session.Location) {
		session.Location = ac.location
	}

	if last := session.LastPage(); last != nil && last.Duration == 0 {
		if seconds, ok := utils.ElapsedPageDuration(last.Timestamp, ac.now); ok {
			last.Duration = seconds
		}
	}

	plan := &actionPlan{visitor: ac.visitor, saveSession: session}
	if page := currentPageVisit(ac); page != nil {
		session.AppendPage(*page)
		plan.viewedURL = page.URL
	}
	session.LastActivity = ac.now
	return plan
}

func (s *visitorService) handlePageViewNewSession(ac *actionContext, t PageViewNewSession) *actionPlan {
	visitor := ac.visitor
	s.touchVisitor(ac, visitor)

	// The first new session for a visitor who already had one marks them returning.
	if visitor.Status == models.VisitorStatusNew && (visitor.Engagement.TotalSessions >= 1 || t.Prior != nil) {
		visitor.Status = models.VisitorStatusReturning
	}

	plan := &actionPlan{visitor: visitor}
	if t.Prior != nil {
		t.Prior.Close(ac.now)
		plan.closePrior = t.Prior
	}
	plan.openSession = s.newSession(ac, visitor)
	plan.viewedURL = seededURL(plan.openSession)
	return plan
}

func (s *visitorService) newSession(ac *actionContext, visitor *models.Visitor) *models.Session {
	a := ac.action
	device := visitor.Device
	if hasDevice(a.Device) {
		device = a.Device.Normalize()
	}

	session := &models.Session{
		SessionID:    utils.GenerateSessionID(),
		UserID:       a.UserID,
		StartTime:    ac.now,
		LastActivity: ac.now,
		IsActive:     true,
		PageSequence: []models.PageVisit{},
		Device:       device,
		Location:     ac.location,
		Referrer:     a.Referrer.Normalize(),
		CreatedAt:    ac.now,
	}
	// Only page views extend the sequence; heartbeats and leaves open it empty.
	if a.ActionType == models.ActionTypePageView {
		if page := currentPageVisit(ac); page != nil {
			session.AppendPage(*page)
		}
	}
	return session
}

func (s *visitorService) touchVisitor(ac *actionContext, visitor *models.Visitor) {
	visitor.LastSeenAt = ac.now
	visitor.LastActiveAt = ac.now
	visitor.IsOnline = true
	if hasDevice(ac.action.Device) {
		visitor.Device = ac.action.Device.Normalize()
	}
	if isBetterLocation(ac.location, visitor.Location) {
		visitor.Location = ac.location
	}
}

// apply persists a plan. Closing the prior session and inserting a new one
// run first because the active-session index admits one at a time; the
// remaining writes run concurrently and must all succeed.
func (s *visitorService) apply(ctx context.Context, ac *actionContext, transition Transition, plan *actionPlan) (*models.ClaimResult, error) {
	userID := ac.action.UserID

	if plan.reset {
		if err := s.discardVisitor(ctx, userID); err != nil {
			return nil, err
		}
	}

	if plan.closePrior != nil {
		s.labeler.Label(ctx, plan.closePrior, plan.visitor.Status == models.VisitorStatusReturning)
		if err := s.sessionRepo.Save(ctx, plan.closePrior); err != nil {
			return nil, fmt.Errorf("failed to close prior session: %w", err)
		}
	}

	isNewSession := false
	if plan.openSession != nil {
		err := s.sessionRepo.Create(ctx, plan.openSession)
		switch {
		case err == nil:
			isNewSession = true
		case errors.Is(err, utils.ErrConflict):
			adopted, adoptErr := s.adoptActiveSession(ctx, ac, plan.openSession)
			if adoptErr != nil {
				return nil, adoptErr
			}
			plan.openSession = nil
			plan.saveSession = adopted
		default:
			return nil, fmt.Errorf("failed to open session: %w", err)
		}
	}

	session := plan.session()
	events := s.prepareEvents(ac, session)

	g, gctx := errgroup.WithContext(ctx)
	if plan.saveSession != nil {
		g.Go(func() error {
			return s.sessionRepo.Save(gctx, plan.saveSession)
		})
	}
	g.Go(func() error {
		if plan.createVisitor {
			return s.visitorRepo.Create(gctx, plan.visitor)
		}
		return s.visitorRepo.Save(gctx, plan.visitor)
	})
	if len(events) > 0 {
		g.Go(func() error {
			failures, err := s.eventRepo.InsertMany(gctx, events)
			if err != nil {
				return err
			}
			if len(failures) > 0 {
				return fmt.Errorf("failed to store %d of %d events: %w", len(failures), len(events), failures[0].Err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return s.presenceRepo.Upsert(gctx, s.presenceFor(ac, plan, session))
	})
	if plan.viewedURL != "" {
		g.Go(func() error {
			return s.pageMetricsRepo.RecordView(gctx, plan.viewedURL, ac.now)
		})
	}
	if plan.leftURL != "" {
		g.Go(func() error {
			return s.pageMetricsRepo.RecordDuration(gctx, plan.leftURL, plan.leftDuration)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	agg, err := s.engagement.Recompute(ctx, userID, ac.now)
	if err != nil {
		return nil, err
	}
	plan.visitor.Engagement = agg

	result := &models.ClaimResult{
		UserID:       userID,
		Transition:   transition.Name(),
		Status:       plan.visitor.Status,
		IsNewVisitor: plan.createVisitor,
		IsNewSession: isNewSession,
		IsOnline:     plan.visitor.IsOnline,
		EventsStored: len(events),
	}
	if session != nil {
		result.SessionID = session.SessionID
	}
	return result, nil
}

// adoptActiveSession handles losing the race to open a session: another
// writer's active session is used instead.
func (s *visitorService) adoptActiveSession(ctx context.Context, ac *actionContext, wanted *models.Session) (*models.Session, error) {
	existing, err := s.sessionRepo.GetActiveByUserID(ctx, ac.action.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to adopt active session: %w", err)
	}

	for _, p := range wanted.PageSequence {
		existing.AppendPage(p)
	}
	if ac.now.After(existing.LastActivity) {
		existing.LastActivity = ac.now
	}

	s.logger.WithUserID(ac.action.UserID).WithSessionID(existing.SessionID).
		Info("Adopted concurrently opened session")
	return existing, nil
}

func (s *visitorService) discardVisitor(ctx context.Context, userID string) error {
	if _, err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset sessions: %w", err)
	}
	if _, err := s.eventRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset events: %w", err)
	}
	if err := s.presenceRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}
	if err := s.visitorRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset visitor: %w", err)
	}
	return nil
}

func (s *visitorService) prepareEvents(ac *actionContext, session *models.Session) []*models.Event {
	if len(ac.action.Events) == 0 {
		return nil
	}

	events := make([]*models.Event, 0, len(ac.action.Events))
	for i := range ac.action.Events {
		e := ac.action.Events[i]
		e.UserID = ac.action.UserID
		if session != nil {
			e.SessionID = session.SessionID
		}
		if e.EventID == "" {
			e.EventID = utils.GenerateEventID(s.eventIDPrefix, ac.now)
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = ac.now
		}
		if e.Location == nil {
			loc := ac.location
			e.Location = &loc
		}
		e.Source = models.IngestSourceClaim
		e.CreatedAt = ac.now
		events = append(events, &e)
	}
	return events
}

func (s *visitorService) presenceFor(ac *actionContext, plan *actionPlan, session *models.Session) *models.Presence {
	presence := &models.Presence{
		UserID:     ac.action.UserID,
		LastPing:   ac.now,
		IsActive:   true,
		DeviceType: plan.visitor.Device.DeviceType,
		Country:    plan.visitor.Location.Country,
		City:       plan.visitor.Location.City,
	}
	if ac.action.CurrentPage != nil {
		presence.PageURL = ac.action.CurrentPage.URL
	} else if session != nil {
		if last := session.LastPage(); last != nil {
			presence.PageURL = last.URL
		}
	}
	return presence
}

func (s *visitorService) publish(result *models.ClaimResult, plan *actionPlan) {
	if s.feed == nil {
		return
	}

	s.feed.Publish(websocket.RoomActions, "visitor_action", map[string]interface{}{
		"user_id":     result.UserID,
		"session_id":  result.SessionID,
		"transition":  result.Transition,
		"status":      string(result.Status),
		"page_url":    plan.viewedURL,
		"country":     plan.visitor.Location.Country,
		"device_type": plan.visitor.Device.DeviceType,
	})
	if plan.closePrior != nil {
		s.feed.Publish(websocket.RoomSessions, "session_ended", map[string]interface{}{
			"user_id":    result.UserID,
			"session_id": plan.closePrior.SessionID,
			"duration":   plan.closePrior.Duration,
		})
	}
	if result.IsNewSession {
		s.feed.Publish(websocket.RoomSessions, "session_started", map[string]interface{}{
			"user_id":    result.UserID,
			"session_id": result.SessionID,
		})
	}
}

func (s *visitorService) GetVisitor(ctx context.Context, userID string) (*VisitorDetail, error) {
	visitor, err := s.visitorRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sessions) > visitorDetailSessions {
		sessions = sessions[len(sessions)-visitorDetailSessions:]
	}

	return &VisitorDetail{Visitor: visitor, Sessions: sessions}, nil
}

func (s *visitorService) ListVisitors(ctx context.Context, params *utils.PaginationParams) ([]*models.Visitor, int64, error) {
	return s.visitorRepo.List(ctx, params)
}

func currentPageVisit(ac *actionContext) *models.PageVisit {
	page := ac.action.CurrentPage
	if page == nil || page.URL == "" {
		return nil
	}
	return &models.PageVisit{
		URL:       page.URL,
		Title:     page.Title,
		Timestamp: ac.now,
		Referrer:  page.Referrer,
	}
}

func pageLeaveInput(action *models.VisitorAction) (string, float64) {
	var url string
	raw := action.PageStayDuration
	if action.CurrentPage != nil {
		url = action.CurrentPage.URL
		if action.CurrentPage.Duration > 0 {
			raw = action.CurrentPage.Duration
		}
	}
	return url, raw
}

func seededURL(session *models.Session) string {
	if last := session.LastPage(); last != nil {
		return last.URL
	}
	return ""
}

func hasDevice(d models.DeviceInfo) bool {
	return d.UserAgent != "" || d.DeviceType != "" || d.OS != "" || d.Browser != ""
}

// isBetterLocation reports whether candidate should replace current.
func isBetterLocation(candidate, current models.Location) bool {
	if candidate.Source == models.LocationSourceFallback {
		return current.Country == ""
	}
	if current.Country == "" || current.Source == models.LocationSourceFallback || current.Source == models.LocationSourceLocale {
		return true
	}
	return candidate.Source == models.LocationSourceClient || candidate.Source == models.LocationSourceReverse
}
