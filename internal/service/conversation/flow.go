package conversation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"astrobot-service/internal/domain/conversation"
	wa "astrobot-service/internal/domain/whatsapp"
	"astrobot-service/internal/pkg/metrics"
)

// Prompt is one outbound message, optionally with reply buttons.
type Prompt struct {
	Body    string
	Buttons []wa.Button
}

// stageCancelled ends a flow without running its side effect.
const stageCancelled conversation.Stage = "cancelled"

// errRetry rejects a reply without a more specific reason.
var errRetry = errors.New("reply not accepted")

// step is one stage of a flow. accept stores what it parsed into the
// session and may return a stage to jump to; the empty stage means next.
type step struct {
	prompt func(sess *conversation.Session) Prompt
	accept func(ctx context.Context, in wa.Inbound, sess *conversation.Session) (conversation.Stage, error)
	next   conversation.Stage
	retry  string
}

type flow struct {
	kind   conversation.FlowKind
	start  conversation.Stage
	intro  string
	steps  map[conversation.Stage]step
	finish func(ctx context.Context, sess *conversation.Session) error
}

func staticPrompt(body string, buttons ...wa.Button) func(*conversation.Session) Prompt {
	return func(*conversation.Session) Prompt {
		return Prompt{Body: body, Buttons: buttons}
	}
}

// startFlow creates or resets the session of one kind and asks the first question.
func (s *Service) startFlow(ctx context.Context, userID string, kind conversation.FlowKind, data conversation.FlowData) error {
	return s.startFlowAt(ctx, userID, kind, "", data)
}

func (s *Service) startFlowAt(ctx context.Context, userID string, kind conversation.FlowKind, stage conversation.Stage, data conversation.FlowData) error {
	f, ok := s.flows[kind]
	if !ok {
		return fmt.Errorf("no flow registered for %q", kind)
	}
	if stage == "" {
		stage = f.start
	}
	st, ok := f.steps[stage]
	if !ok {
		return fmt.Errorf("flow %q has no stage %q", kind, stage)
	}

	now := s.now().UTC()
	sess := &conversation.Session{
		UserID:    userID,
		Kind:      kind,
		Stage:     stage,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("failed to start %s flow: %w", kind, err)
	}
	metrics.RecordFlowOutcome(string(kind), "started")
	s.Logger.Info("flow started", zap.String("user_id", userID), zap.String("kind", string(kind)), zap.String("stage", string(stage)))

	if f.intro != "" && stage == f.start {
		s.send(ctx, userID, Prompt{Body: f.intro})
	}
	s.send(ctx, userID, st.prompt(sess))
	return nil
}

// advance feeds one message into an active session.
func (s *Service) advance(ctx context.Context, sess *conversation.Session, in wa.Inbound) error {
	log := s.Logger.With(zap.String("user_id", sess.UserID), zap.String("kind", string(sess.Kind)), zap.String("stage", string(sess.Stage)))

	f, ok := s.flows[sess.Kind]
	var st step
	if ok {
		st, ok = f.steps[sess.Stage]
	}
	if !ok {
		log.Warn("session in unknown stage, dropping it")
		metrics.RecordFlowOutcome(string(sess.Kind), "invalid")
		if err := s.Sessions.Delete(ctx, sess.UserID, sess.Kind); err != nil {
			log.Warn("failed to delete session", zap.Error(err))
		}
		s.send(ctx, sess.UserID, Prompt{Body: msgGenericError, Buttons: menuButtons})
		return nil
	}

	jump, err := st.accept(ctx, in, sess)
	if err != nil {
		log.Debug("reply rejected", zap.Error(err))
		p := st.prompt(sess)
		if st.retry != "" {
			p.Body = st.retry
		}
		s.send(ctx, sess.UserID, p)
		return nil
	}

	next := st.next
	if jump != "" {
		next = jump
	}
	if next == stageCancelled {
		metrics.RecordFlowOutcome(string(sess.Kind), "cancelled")
		if err := s.Sessions.Delete(ctx, sess.UserID, sess.Kind); err != nil {
			return fmt.Errorf("failed to cancel session: %w", err)
		}
		s.send(ctx, sess.UserID, Prompt{Body: msgEscaped, Buttons: menuButtons})
		return nil
	}
	if next == conversation.StageComplete {
		return s.complete(ctx, f, sess)
	}

	nextStep, ok := f.steps[next]
	if !ok {
		return fmt.Errorf("flow %q has no stage %q", sess.Kind, next)
	}
	sess.Stage = next
	sess.UpdatedAt = s.now().UTC()
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.send(ctx, sess.UserID, nextStep.prompt(sess))
	return nil
}

// complete runs the flow's side effect once and always removes the session.
// finish functions tell the user about their own failures.
func (s *Service) complete(ctx context.Context, f *flow, sess *conversation.Session) error {
	sess.Stage = conversation.StageComplete
	if err := s.Sessions.Delete(ctx, sess.UserID, sess.Kind); err != nil {
		s.Logger.Warn("failed to delete completed session", zap.String("user_id", sess.UserID), zap.String("kind", string(sess.Kind)), zap.Error(err))
	}

	if f.finish == nil {
		metrics.RecordFlowOutcome(string(f.kind), "completed")
		return nil
	}
	if err := f.finish(ctx, sess); err != nil {
		metrics.RecordFlowOutcome(string(f.kind), "failed")
		s.Logger.Error("flow side effect failed", zap.String("user_id", sess.UserID), zap.String("kind", string(f.kind)), zap.Error(err))
		return nil
	}
	metrics.RecordFlowOutcome(string(f.kind), "completed")
	s.Logger.Info("flow completed", zap.String("user_id", sess.UserID), zap.String("kind", string(f.kind)))
	return nil
}
