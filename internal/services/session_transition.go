package services

import (
	"time"

	"visitrack/internal/models"
)

// Transition is the decision taken for one visitor action. Exactly one of
// the variant types below implements it.
type Transition interface {
	Name() string
}

// NewVisitor creates the visitor and its first session. Reset means prior
// data for the user is discarded first.
type NewVisitor struct {
	Reset bool
}

// ReturningReactivation reopens an offline visitor after a long gap. A new
// session is always opened, whatever the action type.
type ReturningReactivation struct {
	Gap   time.Duration
	Prior *models.Session
}

type Heartbeat struct {
	Session *models.Session
}

type PageLeave struct {
	Session *models.Session
}

type PageViewContinuation struct {
	Session *models.Session
}

// PageViewNewSession opens a session because none is active or the active
// one timed out. Prior is nil in the first case.
type PageViewNewSession struct {
	Prior  *models.Session
	Reason string
}

const (
	TransitionNewVisitor            = "new_visitor"
	TransitionReturningReactivation = "returning_reactivation"
	TransitionHeartbeat             = "heartbeat"
	TransitionPageLeave             = "page_leave"
	TransitionPageViewContinuation  = "page_view_continuation"
	TransitionPageViewNewSession    = "page_view_new_session"

	newSessionReasonNone    = "no_active_session"
	newSessionReasonTimeout = "session_timeout"
)

func (NewVisitor) Name() string            { return TransitionNewVisitor }
func (ReturningReactivation) Name() string { return TransitionReturningReactivation }
func (Heartbeat) Name() string             { return TransitionHeartbeat }
func (PageLeave) Name() string             { return TransitionPageLeave }
func (PageViewContinuation) Name() string  { return TransitionPageViewContinuation }
func (PageViewNewSession) Name() string    { return TransitionPageViewNewSession }

type TransitionPolicy struct {
	SessionTimeout   time.Duration
	OfflineThreshold time.Duration
}

type TransitionInput struct {
	Now           time.Time
	ActionType    models.ActionType
	Reset         bool
	Visitor       *models.Visitor
	ActiveSession *models.Session
}

// decideTransition has no side effects. Order: reset, unknown visitor,
// reactivation, then dispatch on the action type.
func decideTransition(in TransitionInput, policy TransitionPolicy) Transition {
	if in.Reset {
		return NewVisitor{Reset: true}
	}
	if in.Visitor == nil {
		return NewVisitor{}
	}

	gap := in.Now.Sub(in.Visitor.LastActiveAt)
	if !in.Visitor.IsOnline && gap > policy.OfflineThreshold {
		return ReturningReactivation{Gap: gap, Prior: in.ActiveSession}
	}

	switch in.ActionType {
	case models.ActionTypeHeartbeat:
		return Heartbeat{Session: in.ActiveSession}
	case models.ActionTypePageLeave:
		return PageLeave{Session: in.ActiveSession}
	}

	if in.ActiveSession == nil {
		return PageViewNewSession{Reason: newSessionReasonNone}
	}
	if in.Now.Sub(in.ActiveSession.LastActivity) > policy.SessionTimeout {
		return PageViewNewSession{Prior: in.ActiveSession, Reason: newSessionReasonTimeout}
	}
	return PageViewContinuation{Session: in.ActiveSession}
}
