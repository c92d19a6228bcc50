package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
)

// In-memory repositories shared by the service tests. They copy on the way
// in and out so services cannot mutate stored state without calling Save.

type fakeVisitorRepo struct {
	mu       sync.Mutex
	visitors map[string]*models.Visitor
	matching []string
	filters  []map[string]interface{}
}

func newFakeVisitorRepo() *fakeVisitorRepo {
	return &fakeVisitorRepo{visitors: make(map[string]*models.Visitor)}
}

func (r *fakeVisitorRepo) Create(ctx context.Context, v *models.Visitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.visitors[v.UserID]; ok {
		return utils.ErrConflict
	}
	cp := *v
	r.visitors[v.UserID] = &cp
	return nil
}

func (r *fakeVisitorRepo) GetByUserID(ctx context.Context, userID string) (*models.Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visitors[userID]
	if !ok {
		return nil, utils.NewNotFoundError("visitor")
	}
	cp := *v
	return &cp, nil
}

func (r *fakeVisitorRepo) Save(ctx context.Context, v *models.Visitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.visitors[v.UserID] = &cp
	return nil
}

func (r *fakeVisitorRepo) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.visitors, userID)
	return nil
}

func (r *fakeVisitorRepo) UpdateEngagement(ctx context.Context, userID string, agg models.EngagementAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.visitors[userID]; ok {
		v.Engagement = agg
	}
	return nil
}

func (r *fakeVisitorRepo) MarkOffline(ctx context.Context, userIDs []string, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range userIDs {
		if v, ok := r.visitors[id]; ok && v.IsOnline && v.LastActiveAt.Before(cutoff) {
			v.IsOnline = false
			n++
		}
	}
	return n, nil
}

func (r *fakeVisitorRepo) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Visitor, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Visitor, 0, len(r.visitors))
	for _, v := range r.visitors {
		cp := *v
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (r *fakeVisitorRepo) CountFirstSeenSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, v := range r.visitors {
		if !v.FirstSeenAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeVisitorRepo) ListFirstSeenBetween(ctx context.Context, from, to time.Time) ([]*interfaces.VisitorFirstSeen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*interfaces.VisitorFirstSeen
	for _, v := range r.visitors {
		if !v.FirstSeenAt.Before(from) && v.FirstSeenAt.Before(to) {
			out = append(out, &interfaces.VisitorFirstSeen{UserID: v.UserID, FirstSeenAt: v.FirstSeenAt})
		}
	}
	return out, nil
}

func (r *fakeVisitorRepo) FindMatching(ctx context.Context, filter map[string]interface{}, limit int) ([]string, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = append(r.filters, filter)
	members := r.matching
	if len(members) > limit {
		members = members[:limit]
	}
	return members, int64(len(r.matching)), nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	touched  []string
	saveErr  error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*models.Session)}
}

func copySession(s *models.Session) *models.Session {
	cp := *s
	cp.PageSequence = append([]models.PageVisit(nil), s.PageSequence...)
	return &cp
}

func (r *fakeSessionRepo) put(s *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionID] = copySession(s)
}

func (r *fakeSessionRepo) get(sessionID string) *models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return copySession(s)
	}
	return nil
}

func (r *fakeSessionRepo) activeFor(userID string) []*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			out = append(out, copySession(s))
		}
	}
	return out
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.UserID == s.UserID && existing.IsActive && s.IsActive {
			return utils.ErrConflict
		}
	}
	r.sessions[s.SessionID] = copySession(s)
	return nil
}

func (r *fakeSessionRepo) Save(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.sessions[s.SessionID] = copySession(s)
	return nil
}

func (r *fakeSessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	if s := r.get(sessionID); s != nil {
		return s, nil
	}
	return nil, utils.NewNotFoundError("session")
}

func (r *fakeSessionRepo) GetActiveByUserID(ctx context.Context, userID string) (*models.Session, error) {
	active := r.activeFor(userID)
	if len(active) == 0 {
		return nil, utils.NewNotFoundError("session")
	}
	return active[0], nil
}

func (r *fakeSessionRepo) ListByUserID(ctx context.Context, userID string) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *fakeSessionRepo) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.Session, error) {
	all, _ := r.ListByUserID(ctx, userID)
	var out []*models.Session
	for _, s := range all {
		if !s.StartTime.Before(from) && s.StartTime.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) Touch(ctx context.Context, sessionIDs []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, sessionIDs...)
	for _, id := range sessionIDs {
		if s, ok := r.sessions[id]; ok && s.IsActive {
			s.LastActivity = at
		}
	}
	return nil
}

func (r *fakeSessionRepo) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Session
	for _, s := range r.sessions {
		if s.IsActive && s.LastActivity.Before(cutoff) {
			out = append(out, copySession(s))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) CloseIfStale(ctx context.Context, s *models.Session, cutoff, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[s.SessionID]
	if !ok || !stored.IsActive || !stored.LastActivity.Before(cutoff) {
		return false, nil
	}
	r.sessions[s.SessionID] = copySession(s)
	return true, nil
}

func (r *fakeSessionRepo) CountActive(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.IsActive {
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) CountStartedSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if !s.StartTime.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) ActiveBreakdown(ctx context.Context, since time.Time) (*interfaces.ActiveBreakdown, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &interfaces.ActiveBreakdown{ByDevice: map[string]int64{}, ByCountry: map[string]int64{}}
	users := map[string]bool{}
	for _, s := range r.sessions {
		if !s.IsActive || s.StartTime.Before(since) || users[s.UserID] {
			continue
		}
		users[s.UserID] = true
		b.ByDevice[s.Device.DeviceType]++
		b.ByCountry[s.Location.Country]++
	}
	b.ActiveUsers = int64(len(users))
	return b, nil
}

func (r *fakeSessionRepo) ActiveUsersBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := map[string]bool{}
	for _, s := range r.sessions {
		if !s.StartTime.Before(from) && s.StartTime.Before(to) {
			users[s.UserID] = true
		}
	}
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeSessionRepo) deleteWhere(match func(*models.Session) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if match(s) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *fakeSessionRepo) DeleteByDeviceType(ctx context.Context, deviceType string) (int64, error) {
	return r.deleteWhere(func(s *models.Session) bool { return s.Device.DeviceType == deviceType }), nil
}

func (r *fakeSessionRepo) DeleteByCountry(ctx context.Context, country string) (int64, error) {
	return r.deleteWhere(func(s *models.Session) bool { return s.Location.Country == country }), nil
}

func (r *fakeSessionRepo) DeleteByStartBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return r.deleteWhere(func(s *models.Session) bool {
		return !s.StartTime.Before(from) && !s.StartTime.After(to)
	}), nil
}

func (r *fakeSessionRepo) DeleteByDuration(ctx context.Context, minSeconds, maxSeconds *float64) (int64, error) {
	return r.deleteWhere(func(s *models.Session) bool {
		if minSeconds != nil && s.Duration < *minSeconds {
			return false
		}
		if maxSeconds != nil && s.Duration > *maxSeconds {
			return false
		}
		return true
	}), nil
}

func (r *fakeSessionRepo) DeleteDuplicates(ctx context.Context) (int64, error) {
	return 0, nil
}

type fakeEventRepo struct {
	mu          sync.Mutex
	events      []*models.Event
	failIDs     map[string]error
	statuses    map[string][]models.ProcessingStatus
	retries     map[string]int
	stepUsers   []map[string]interfaces.StepTiming
	paths       []*interfaces.SessionPath
	converted   []string
	insertCalls int
	insertErr   error
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		failIDs:  make(map[string]error),
		statuses: make(map[string][]models.ProcessingStatus),
		retries:  make(map[string]int),
	}
}

func (r *fakeEventRepo) all() []*models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Event(nil), r.events...)
}

func (r *fakeEventRepo) statusHistory(eventID string) []models.ProcessingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ProcessingStatus(nil), r.statuses[eventID]...)
}

func (r *fakeEventRepo) Insert(ctx context.Context, e *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *fakeEventRepo) InsertMany(ctx context.Context, events []*models.Event) ([]interfaces.BulkInsertFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.insertErr != nil {
		return nil, r.insertErr
	}
	var failures []interfaces.BulkInsertFailure
	for i, e := range events {
		if err, ok := r.failIDs[e.EventID]; ok {
			failures = append(failures, interfaces.BulkInsertFailure{Index: i, Err: err})
			continue
		}
		cp := *e
		r.events = append(r.events, &cp)
	}
	return failures, nil
}

func (r *fakeEventRepo) GetByEventID(ctx context.Context, eventID string) (*models.Event, error) {
	for _, e := range r.all() {
		if e.EventID == eventID {
			return e, nil
		}
	}
	return nil, utils.NewNotFoundError("event")
}

func (r *fakeEventRepo) ListBySession(ctx context.Context, sessionID string) ([]*models.Event, error) {
	var out []*models.Event
	for _, e := range r.all() {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) ListForExport(ctx context.Context, filter *interfaces.EventFilter, limit int) ([]*models.Event, error) {
	var out []*models.Event
	for _, e := range r.all() {
		if filter != nil && filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeEventRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var n int64
	for _, e := range r.events {
		if e.UserID == userID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return n, nil
}

func (r *fakeEventRepo) UpdateProcessingStatus(ctx context.Context, eventID string, status models.ProcessingStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[eventID] = append(r.statuses[eventID], status)
	for _, e := range r.events {
		if e.EventID == eventID {
			e.ProcessingStatus = status
			e.ErrorMessage = errMsg
		}
	}
	return nil
}

func (r *fakeEventRepo) IncrementRetry(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[eventID]++
	return nil
}

func (r *fakeEventRepo) ListFailed(ctx context.Context, source models.IngestSource, limit int) ([]*models.Event, error) {
	var out []*models.Event
	for _, e := range r.all() {
		if e.Source == source && e.ProcessingStatus == models.ProcessingStatusFailed {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	for _, e := range r.all() {
		if !e.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeEventRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	for _, e := range r.all() {
		if e.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *fakeEventRepo) CountByUserTypes(ctx context.Context, userID string, eventTypes []string, from, to time.Time) (int64, error) {
	var n int64
	for _, e := range r.all() {
		if e.UserID == userID && utils.Contains(eventTypes, e.EventType) &&
			!e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *fakeEventRepo) CountSessionsWithTypes(ctx context.Context, eventTypes []string, since time.Time) (int64, error) {
	sessions := map[string]bool{}
	for _, e := range r.all() {
		if utils.Contains(eventTypes, e.EventType) && !e.Timestamp.Before(since) {
			sessions[e.SessionID] = true
		}
	}
	return int64(len(sessions)), nil
}

func (r *fakeEventRepo) SessionsWithTypes(ctx context.Context, eventTypes []string, from, to time.Time) ([]string, error) {
	return r.converted, nil
}

func (r *fakeEventRepo) StepUsers(ctx context.Context, step models.FunnelStep, filter *interfaces.EventFilter) (map[string]interfaces.StepTiming, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, users := range r.stepUsers {
		if stepKey(i) == step.Name {
			return users, nil
		}
	}
	return map[string]interfaces.StepTiming{}, nil
}

func (r *fakeEventRepo) PageViewPaths(ctx context.Context, from, to time.Time, limit int) ([]*interfaces.SessionPath, error) {
	return r.paths, nil
}

// stepKey names the i-th fake funnel step.
func stepKey(i int) string {
	return "step-" + string(rune('a'+i))
}

type fakePresenceRepo struct {
	mu       sync.Mutex
	presence map[string]*models.Presence
	expired  int64
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{presence: make(map[string]*models.Presence)}
}

func (r *fakePresenceRepo) Upsert(ctx context.Context, p *models.Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.presence[p.UserID] = &cp
	return nil
}

func (r *fakePresenceRepo) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.presence {
		if p.IsActive && p.LastPing.Before(cutoff) {
			p.IsActive = false
			n++
		}
	}
	r.expired += n
	return n, nil
}

func (r *fakePresenceRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.presence, userID)
	return nil
}

type fakePageMetricsRepo struct {
	mu        sync.Mutex
	views     map[string]int64
	durations map[string][]float64
}

func newFakePageMetricsRepo() *fakePageMetricsRepo {
	return &fakePageMetricsRepo{views: map[string]int64{}, durations: map[string][]float64{}}
}

func (r *fakePageMetricsRepo) viewCount(url string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[url]
}

func (r *fakePageMetricsRepo) durationsFor(url string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.durations[url]...)
}

func (r *fakePageMetricsRepo) RecordView(ctx context.Context, url string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[url]++
	return nil
}

func (r *fakePageMetricsRepo) RecordDuration(ctx context.Context, url string, seconds float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[url] = append(r.durations[url], seconds)
	return nil
}

func (r *fakePageMetricsRepo) Top(ctx context.Context, limit int) ([]*models.PageMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PageMetrics
	for url, views := range r.views {
		out = append(out, &models.PageMetrics{URL: url, Views: views})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Views > out[j].Views })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeFunnelRepo struct {
	mu      sync.Mutex
	funnels map[primitive.ObjectID]*models.Funnel
	saved   *models.FunnelAnalytics
	saveErr error
}

func newFakeFunnelRepo() *fakeFunnelRepo {
	return &fakeFunnelRepo{funnels: make(map[primitive.ObjectID]*models.Funnel)}
}

func (r *fakeFunnelRepo) Create(ctx context.Context, f *models.Funnel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	cp := *f
	r.funnels[f.ID] = &cp
	return nil
}

func (r *fakeFunnelRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Funnel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.funnels[id]
	if !ok {
		return nil, utils.NewNotFoundError("funnel")
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFunnelRepo) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Funnel, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Funnel
	for _, f := range r.funnels {
		cp := *f
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (r *fakeFunnelRepo) Update(ctx context.Context, f *models.Funnel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funnels[f.ID]; !ok {
		return utils.NewNotFoundError("funnel")
	}
	cp := *f
	r.funnels[f.ID] = &cp
	return nil
}

func (r *fakeFunnelRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funnels[id]; !ok {
		return utils.NewNotFoundError("funnel")
	}
	delete(r.funnels, id)
	return nil
}

func (r *fakeFunnelRepo) SaveMetrics(ctx context.Context, id primitive.ObjectID, m *models.FunnelAnalytics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = m
	return r.saveErr
}

type fakeSegmentRepo struct {
	mu         sync.Mutex
	segments   map[primitive.ObjectID]*models.Segment
	evaluated  int64
	evaluateAt time.Time
}

func newFakeSegmentRepo() *fakeSegmentRepo {
	return &fakeSegmentRepo{segments: make(map[primitive.ObjectID]*models.Segment)}
}

func (r *fakeSegmentRepo) Create(ctx context.Context, s *models.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	cp := *s
	r.segments[s.ID] = &cp
	return nil
}

func (r *fakeSegmentRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[id]
	if !ok {
		return nil, utils.NewNotFoundError("segment")
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSegmentRepo) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Segment, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Segment
	for _, s := range r.segments {
		cp := *s
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (r *fakeSegmentRepo) Update(ctx context.Context, s *models.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.segments[s.ID] = &cp
	return nil
}

func (r *fakeSegmentRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.segments, id)
	return nil
}

func (r *fakeSegmentRepo) SaveEvaluation(ctx context.Context, id primitive.ObjectID, memberCount int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluated = memberCount
	r.evaluateAt = at
	return nil
}

type fakeGoalRepo struct {
	mu    sync.Mutex
	goals []*models.Goal
}

func (r *fakeGoalRepo) Create(ctx context.Context, g *models.Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *g
	r.goals = append(r.goals, &cp)
	return nil
}

func (r *fakeGoalRepo) List(ctx context.Context, filter *interfaces.GoalFilter, params *utils.PaginationParams) ([]*models.Goal, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Goal
	for _, g := range r.goals {
		if filter != nil && filter.UserID != "" && g.UserID != filter.UserID {
			continue
		}
		out = append(out, g)
	}
	return out, int64(len(out)), nil
}

func (r *fakeGoalRepo) Stats(ctx context.Context, from, to *time.Time) ([]*models.GoalStats, error) {
	return nil, nil
}

// fakeGeo resolves every request to the same place and counts lookups.
type fakeGeo struct {
	mu    sync.Mutex
	loc   models.Location
	calls int
}

func (g *fakeGeo) lookups() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGeo) Resolve(ctx context.Context, ip string) models.Location {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.loc
}

func (g *fakeGeo) ParseLocation(ctx context.Context, supplied *models.Location, ip string, hints models.LocaleHints) models.Location {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if supplied != nil && supplied.Country != "" {
		return *supplied
	}
	return g.loc
}

type feedMessage struct {
	room    string
	msgType string
	data    map[string]interface{}
}

type fakeFeed struct {
	mu       sync.Mutex
	messages []feedMessage
}

func (f *fakeFeed) Publish(roomID, msgType string, data map[string]interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, feedMessage{room: roomID, msgType: msgType, data: data})
	return true
}

func (f *fakeFeed) ofType(msgType string) []feedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []feedMessage
	for _, m := range f.messages {
		if m.msgType == msgType {
			out = append(out, m)
		}
	}
	return out
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

var errFakeStore = errors.New("store unavailable")
