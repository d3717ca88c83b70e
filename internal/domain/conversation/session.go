// internal/domain/conversation/session.go
package conversation

import (
	"context"
	"time"

	"astrobot-service/internal/domain/astro"
)

// FlowKind identifies an independent session slot per user.
type FlowKind string

const (
	FlowOnboarding    FlowKind = "onboarding"
	FlowProfile       FlowKind = "profile"
	FlowCompatibility FlowKind = "compatibility"
	FlowFeedback      FlowKind = "feedback"
	FlowPayment       FlowKind = "payment"
	FlowQuestion      FlowKind = "question"
)

// Precedence is the order in which active sessions claim an inbound message.
var Precedence = []FlowKind{
	FlowFeedback,
	FlowPayment,
	FlowCompatibility,
	FlowProfile,
	FlowOnboarding,
	FlowQuestion,
}

// Stage is a step inside a flow.
type Stage string

const (
	StageChooseLanguage Stage = "choose_language"
	StageShowPrivacy    Stage = "show_privacy"
	StageName           Stage = "name"
	StageBirthDate      Stage = "birth_date"
	StageBirthTime      Stage = "birth_time"
	StageBirthCity      Stage = "birth_city"

	StagePartnerName Stage = "waiting_partner_name"
	StagePartnerDOB  Stage = "waiting_partner_dob"
	StagePartnerTime Stage = "waiting_partner_time"
	StagePartnerCity Stage = "waiting_partner_city"

	StageAwaitingRating  Stage = "awaiting_rating"
	StageAwaitingComment Stage = "awaiting_comment"

	StageChoosePlan      Stage = "choose_plan"
	StageAwaitingPayment Stage = "awaiting_payment"

	StageAwaitingQuestion Stage = "awaiting_question"

	StageComplete Stage = "complete"
)

// FlowData is the bag of fields collected so far. Each flow uses a subset.
type FlowData struct {
	Language    string          `json:"language,omitempty"`
	Name        string          `json:"name,omitempty"`
	BirthDate   *time.Time      `json:"birth_date,omitempty"`
	Hour        int             `json:"hour,omitempty"`
	Minute      int             `json:"minute,omitempty"`
	Location    *astro.Location `json:"location,omitempty"`
	Rating      string          `json:"rating,omitempty"`
	Comment     string          `json:"comment,omitempty"`
	Question    string          `json:"question,omitempty"`
	MessageID   string          `json:"message_id,omitempty"`
	PlanID      string          `json:"plan_id,omitempty"`
	ReferenceID string          `json:"reference_id,omitempty"`
}

// Birth assembles birth details once date, time and place are collected.
func (d FlowData) Birth() astro.BirthDetails {
	b := astro.BirthDetails{Hour: d.Hour, Minute: d.Minute}
	if d.BirthDate != nil {
		b.Date = *d.BirthDate
	}
	if d.Location != nil {
		b.Location = *d.Location
	}
	return b
}

// Session is one user's progress through one flow.
type Session struct {
	UserID    string    `json:"user_id"`
	Kind      FlowKind  `json:"kind"`
	Stage     Stage     `json:"stage"`
	Data      FlowData  `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session outlived its TTL.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionStore keeps flow sessions keyed by user id and flow kind.
// Get returns xerrors.ErrNotFound when no live session exists.
type SessionStore interface {
	Get(ctx context.Context, userID string, kind FlowKind) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID string, kind FlowKind) error
	DeleteAll(ctx context.Context, userID string) error
}
