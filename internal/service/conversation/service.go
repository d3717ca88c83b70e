// internal/service/conversation/service.go
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"astrobot-service/internal/domain/astro"
	"astrobot-service/internal/domain/billing"
	"astrobot-service/internal/domain/conversation"
	"astrobot-service/internal/domain/user"
	wa "astrobot-service/internal/domain/whatsapp"
	"astrobot-service/internal/pkg/dedup"
	xerrors "astrobot-service/internal/pkg/errors"
	"astrobot-service/internal/pkg/metrics"
	"astrobot-service/internal/service/quota"
	"astrobot-service/internal/service/subscription"
)

// QuotaGate decides heavy requests.
type QuotaGate interface {
	CheckAndConsume(ctx context.Context, userID string) (*quota.Decision, error)
	Remaining(ctx context.Context, userID string) (*quota.Status, error)
	EnsureFreeTier(ctx context.Context, userID string) (bool, error)
}

// Terminator ends subscriptions.
type Terminator interface {
	Terminate(ctx context.Context, userID, reason string) error
}

// Payments creates and settles payment intents.
type Payments interface {
	CreateIntent(ctx context.Context, userID, planID string) (*billing.Payment, error)
	Confirm(ctx context.Context, userID, referenceID string) (*subscription.Activation, error)
	HandleStatus(ctx context.Context, ev wa.PaymentEvent) error
}

// Dependencies are the collaborators of the conversation service.
type Dependencies struct {
	Sessions      conversation.SessionStore
	Dedup         dedup.Filter
	Users         user.Repository
	Readings      astro.Repository
	Quota         QuotaGate
	Subscriptions Terminator
	Payments      Payments
	Messenger     wa.Messenger
	Charts        astro.ChartCalculator
	Oracle        astro.Oracle
	Advisor       astro.Advisor
	Passages      astro.PassageRetriever
	Compatibility astro.CompatibilityAnalyzer
	Catalog       *billing.Catalog
	Logger        *zap.Logger
}

// Service routes inbound chat messages through flows, intents and the quota gate.
type Service struct {
	Dependencies
	flows map[conversation.FlowKind]*flow
	now   func() time.Time
}

func NewService(deps Dependencies) *Service {
	s := &Service{Dependencies: deps, now: time.Now}
	s.flows = map[conversation.FlowKind]*flow{
		conversation.FlowOnboarding:    s.onboardingFlow(),
		conversation.FlowProfile:       s.profileFlow(),
		conversation.FlowCompatibility: s.compatibilityFlow(),
		conversation.FlowFeedback:      s.feedbackFlow(),
		conversation.FlowPayment:       s.paymentFlow(),
		conversation.FlowQuestion:      s.questionFlow(),
	}
	return s
}

// Accept runs the duplicate filter. It must be called once per delivery
// before Process. A filter failure lets the message through.
func (s *Service) Accept(ctx context.Context, messageID string) bool {
	dup, err := s.Dedup.IsDuplicate(ctx, messageID)
	if err != nil {
		s.Logger.Warn("duplicate filter unavailable", zap.String("message_id", messageID), zap.Error(err))
		return true
	}
	if dup {
		metrics.RecordDuplicate()
		s.Logger.Info("duplicate message ignored", zap.String("message_id", messageID))
		return false
	}
	return true
}

// Handle is Accept followed by Process.
func (s *Service) Handle(ctx context.Context, in wa.Inbound) {
	if !s.Accept(ctx, in.MessageID) {
		return
	}
	s.Process(ctx, in)
}

// HandlePaymentEvent applies a payment status once per reference and status.
func (s *Service) HandlePaymentEvent(ctx context.Context, ev wa.PaymentEvent) error {
	if !s.Accept(ctx, ev.DedupKey()) {
		return nil
	}
	return s.Payments.HandleStatus(ctx, ev)
}

// Process handles one accepted message. It never panics out and always
// answers the user.
func (s *Service) Process(ctx context.Context, in wa.Inbound) {
	in.From = user.NormalizeID(in.From)
	in.Text = strings.TrimSpace(in.Text)
	log := s.Logger.With(zap.String("user_id", in.From), zap.String("message_id", in.MessageID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing message", zap.Any("panic", r), zap.Stack("stack"))
			s.sendText(ctx, in.From, msgGenericError)
		}
	}()

	if err := s.dispatch(ctx, in); err != nil {
		log.Error("failed to process message", zap.Error(err))
		s.sendText(ctx, in.From, msgGenericError)
	}
}

func (s *Service) dispatch(ctx context.Context, in wa.Inbound) error {
	lower := strings.ToLower(in.Text)

	if isEscape(in) {
		return s.escape(ctx, in.From)
	}

	if word, ok := restartWord(in); ok {
		handled, err := s.restart(ctx, in.From, onboardingRestarts[word])
		if handled || err != nil {
			return err
		}
	}

	if planID, ok := planButton(in.ButtonID); ok {
		return s.selectPlan(ctx, in.From, planID)
	}

	if lower == "paid" || strings.HasPrefix(lower, "paid ") {
		ref := strings.TrimSpace(in.Text[len("paid"):])
		if _, err := s.Payments.Confirm(ctx, in.From, ref); err != nil {
			s.Logger.Info("payment confirmation rejected", zap.String("user_id", in.From), zap.Error(err))
		}
		return nil
	}

	for _, kind := range conversation.Precedence {
		sess, err := s.Sessions.Get(ctx, in.From, kind)
		if errors.Is(err, xerrors.ErrNotFound) {
			continue
		}
		if err != nil {
			s.Logger.Warn("failed to load session", zap.String("user_id", in.From), zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		return s.advance(ctx, sess, in)
	}

	u, err := s.Users.GetUser(ctx, in.From)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return err
	}
	if it := detectIntent(in); it.name != intentNone {
		return s.runIntent(ctx, in, u, it)
	}

	if u == nil {
		return s.startFlow(ctx, in.From, conversation.FlowOnboarding, conversation.FlowData{})
	}
	return s.freeChat(ctx, u, in.Text)
}

// escape abandons the highest-precedence active session.
func (s *Service) escape(ctx context.Context, userID string) error {
	for _, kind := range conversation.Precedence {
		if _, err := s.Sessions.Get(ctx, userID, kind); err != nil {
			continue
		}
		if err := s.Sessions.Delete(ctx, userID, kind); err != nil {
			return err
		}
		metrics.RecordFlowOutcome(string(kind), "escaped")
		s.Logger.Info("flow abandoned", zap.String("user_id", userID), zap.String("kind", string(kind)))
		s.send(ctx, userID, Prompt{Body: msgEscaped, Buttons: menuButtons})
		return nil
	}
	s.send(ctx, userID, Prompt{Body: msgMenu, Buttons: menuButtons})
	return nil
}

// restart handles a restart word before any stage sees it. Onboarding starts
// over at the language choice. Other active flows are dropped and the message
// falls through to the restart intent. Greetings only restart onboarding.
func (s *Service) restart(ctx context.Context, userID string, greeting bool) (bool, error) {
	if _, err := s.Sessions.Get(ctx, userID, conversation.FlowOnboarding); err == nil {
		metrics.RecordFlowOutcome(string(conversation.FlowOnboarding), "restarted")
		return true, s.startFlow(ctx, userID, conversation.FlowOnboarding, conversation.FlowData{})
	}
	if greeting {
		return false, nil
	}

	for _, kind := range conversation.Precedence {
		if _, err := s.Sessions.Get(ctx, userID, kind); err != nil {
			continue
		}
		metrics.RecordFlowOutcome(string(kind), "restarted")
	}
	if err := s.Sessions.DeleteAll(ctx, userID); err != nil {
		return false, fmt.Errorf("failed to clear sessions: %w", err)
	}
	return false, nil
}

func (s *Service) send(ctx context.Context, to string, p Prompt) {
	var err error
	if len(p.Buttons) > 0 {
		err = s.Messenger.SendInteractive(ctx, to, p.Body, p.Buttons)
	} else {
		err = s.Messenger.SendText(ctx, to, p.Body)
	}
	if err != nil {
		s.Logger.Warn("failed to send message", zap.String("to", to), zap.Error(err))
	}
}

func (s *Service) sendText(ctx context.Context, to, body string) {
	for _, chunk := range splitMessage(body, maxChunk) {
		s.send(ctx, to, Prompt{Body: chunk})
	}
}
