package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"astrobot-service/internal/domain/astro"
	"astrobot-service/internal/domain/conversation"
	"astrobot-service/internal/domain/user"
	wa "astrobot-service/internal/domain/whatsapp"
	"astrobot-service/internal/pkg/parse"
)

const (
	privacyNotice = "🔒 Your birth details are used only to prepare your readings. " +
		"You can delete everything at any time by sending *delete my data*."

	retryName    = "Please send a name of up to 50 characters."
	retryDate    = "Please send the date as DD/MM/YYYY (e.g. 15/08/1990)."
	retryTime    = "Please send the time as HH:MM with AM/PM (e.g. 2:30 PM), or *unknown*."
	retryCity    = "Please send the city name (at least 2 letters), or share a location pin."
	retryPlan    = "Please reply *9* or *49*, or tap a plan below."
	fallbackCity = "delhi"
)

var errNameInvalid = errors.New("name must be 1 to 50 characters")

func acceptLanguage(_ context.Context, in wa.Inbound, sess *conversation.Session) (conversation.Stage, error) {
	lang, ok := languageChoice(in)
	if !ok {
		return "", errRetry
	}
	sess.Data.Language = lang
	return "", nil
}

func languageChoice(in wa.Inbound) (string, bool) {
	if strings.HasPrefix(in.ButtonID, "lang_") {
		return strings.TrimPrefix(in.ButtonID, "lang_"), true
	}
	switch strings.ToLower(strings.TrimSpace(in.Text)) {
	case "english", "en", "1":
		return "en", true
	case "hindi", "हिंदी", "2":
		return "hi", true
	case "hinglish", "hi-en", "3":
		return "hi-en", true
	}
	return "", false
}

func acceptPrivacy(_ context.Context, in wa.Inbound, _ *conversation.Session) (conversation.Stage, error) {
	if in.ButtonID == "privacy_continue" {
		return "", nil
	}
	switch strings.ToLower(strings.TrimSpace(in.Text)) {
	case "continue", "agree", "i agree", "ok", "okay", "yes", "accept":
		return "", nil
	}
	return "", errRetry
}

func acceptName(_ context.Context, in wa.Inbound, sess *conversation.Session) (conversation.Stage, error) {
	name := strings.TrimSpace(in.Text)
	if name == "" || utf8.RuneCountInString(name) > 50 {
		return "", errNameInvalid
	}
	sess.Data.Name = name
	return "", nil
}

// acceptDate parses a birth date. When unknownAs is set, "unknown" replies
// store it instead of being rejected.
func (s *Service) acceptDate(unknownAs *time.Time) func(context.Context, wa.Inbound, *conversation.Session) (conversation.Stage, error) {
	return func(_ context.Context, in wa.Inbound, sess *conversation.Session) (conversation.Stage, error) {
		d, err := parse.Date(in.Text, s.now())
		if errors.Is(err, parse.ErrUnknown) && unknownAs != nil {
			d, err = *unknownAs, nil
		}
		if err != nil {
			return "", err
		}
		sess.Data.BirthDate = &d
		return "", nil
	}
}

func acceptTime(_ context.Context, in wa.Inbound, sess *conversation.Session) (conversation.Stage, error) {
	c, err := parse.TimeOfDay(in.Text)
	if err != nil {
		return "", err
	}
	sess.Data.Hour, sess.Data.Minute = c.Hour, c.Minute
	return "", nil
}

func acceptCity(_ context.Context, in wa.Inbound, sess *conversation.Session) (conversation.Stage, error) {
	if l := in.Location; l != nil {
		loc := parse.Coordinates(l.Latitude, l.Longitude, l.Name)
		sess.Data.Location = &loc
		return "", nil
	}
	loc, err := parse.City(in.Text, fallbackCity)
	if err != nil {
		return "", err
	}
	sess.Data.Location = &loc
	return "", nil
}

func (s *Service) birthSteps(nameStage, dateStage, timeStage, cityStage conversation.Stage, who string, unknownDate *time.Time) map[conversation.Stage]step {
	return map[conversation.Stage]step{
		nameStage: {
			prompt: staticPrompt(fmt.Sprintf("✍️ What is %s name?", who)),
			accept: acceptName,
			next:   dateStage,
			retry:  retryName,
		},
		dateStage: {
			prompt: func(sess *conversation.Session) Prompt {
				return Prompt{Body: fmt.Sprintf("📅 Thanks, %s. What is the date of birth? (DD/MM/YYYY)", sess.Data.Name)}
			},
			accept: s.acceptDate(unknownDate),
			next:   timeStage,
			retry:  retryDate,
		},
		timeStage: {
			prompt: staticPrompt("⏰ What is the time of birth? (e.g. 2:30 PM). Reply *unknown* if not sure."),
			accept: acceptTime,
			next:   cityStage,
			retry:  retryTime,
		},
		cityStage: {
			prompt: staticPrompt("📍 Which city was the birth in? You can also share a location pin."),
			accept: acceptCity,
			next:   conversation.StageComplete,
			retry:  retryCity,
		},
	}
}

func (s *Service) onboardingFlow() *flow {
	steps := s.birthSteps(conversation.StageName, conversation.StageBirthDate, conversation.StageBirthTime, conversation.StageBirthCity, "your", nil)
	steps[conversation.StageChooseLanguage] = step{
		prompt: staticPrompt("🌐 Please choose your language.", languageButtons...),
		accept: acceptLanguage,
		next:   conversation.StageShowPrivacy,
	}
	steps[conversation.StageShowPrivacy] = step{
		prompt: staticPrompt(privacyNotice, wa.Button{ID: "privacy_continue", Title: "Continue"}),
		accept: acceptPrivacy,
		next:   conversation.StageName,
	}
	return &flow{
		kind:   conversation.FlowOnboarding,
		start:  conversation.StageChooseLanguage,
		intro:  "🙏 Namaste! I'm your personal astrologer. Let's set up your birth chart.",
		steps:  steps,
		finish: s.finishOnboarding,
	}
}

func (s *Service) finishOnboarding(ctx context.Context, sess *conversation.Session) error {
	birth := sess.Data.Birth()
	chart, err := s.Charts.NatalChart(ctx, sess.Data.Name, birth)
	if err != nil {
		s.send(ctx, sess.UserID, Prompt{Body: msgChartFailed + " Say *hi* to try again."})
		return fmt.Errorf("failed to compute natal chart: %w", err)
	}

	now := s.now().UTC()
	u := &user.User{
		ID:        sess.UserID,
		Name:      sess.Data.Name,
		Language:  sess.Data.Language,
		Birth:     birth,
		Chart:     chart,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Users.SaveUser(ctx, u); err != nil {
		s.send(ctx, sess.UserID, Prompt{Body: msgGenericError})
		return fmt.Errorf("failed to save user: %w", err)
	}
	if _, err := s.Quota.EnsureFreeTier(ctx, sess.UserID); err != nil {
		s.Logger.Warn("failed to provision free tier", zap.String("user_id", sess.UserID), zap.Error(err))
	}

	s.send(ctx, sess.UserID, Prompt{
		Body: fmt.Sprintf("✨ All set, %s!\n%s\nYour chart is ready.\n\n%s",
			u.Name, birthSummary(birth), msgMenu),
		Buttons: menuButtons,
	})
	return nil
}

func (s *Service) profileFlow() *flow {
	return &flow{
		kind:   conversation.FlowProfile,
		start:  conversation.StageName,
		intro:  "👨‍👩‍👧 Let's add a new profile.",
		steps:  s.birthSteps(conversation.StageName, conversation.StageBirthDate, conversation.StageBirthTime, conversation.StageBirthCity, "their", nil),
		finish: s.finishProfile,
	}
}

func (s *Service) finishProfile(ctx context.Context, sess *conversation.Session) error {
	birth := sess.Data.Birth()
	chart, err := s.Charts.NatalChart(ctx, sess.Data.Name, birth)
	if err != nil {
		s.send(ctx, sess.UserID, Prompt{Body: msgChartFailed})
		return fmt.Errorf("failed to compute natal chart: %w", err)
	}

	p := &user.Profile{
		ID:          uuid.NewString(),
		OwnerUserID: sess.UserID,
		Name:        sess.Data.Name,
		Birth:       birth,
		Chart:       chart,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.Users.CreateProfile(ctx, p); err != nil {
		s.send(ctx, sess.UserID, Prompt{Body: msgGenericError})
		return fmt.Errorf("failed to create profile: %w", err)
	}
	if err := s.Users.ActivateProfile(ctx, sess.UserID, p.ID); err != nil {
		s.Logger.Warn("failed to activate new profile", zap.String("user_id", sess.UserID), zap.String("profile_id", p.ID), zap.Error(err))
	}

	s.send(ctx, sess.UserID, Prompt{
		Body:    fmt.Sprintf("✅ Profile for %s created and active.\n%s", p.Name, birthSummary(birth)),
		Buttons: menuButtons,
	})
	return nil
}

var unknownPartnerDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

func (s *Service) compatibilityFlow() *flow {
	steps := s.birthSteps(conversation.StagePartnerName, conversation.StagePartnerDOB, conversation.StagePartnerTime, conversation.StagePartnerCity, "your partner's", &unknownPartnerDate)
	dob := steps[conversation.StagePartnerDOB]
	dob.retry = retryDate + " Reply *unknown* if not sure."
	steps[conversation.StagePartnerDOB] = dob
	return &flow{
		kind:   conversation.FlowCompatibility,
		start:  conversation.StagePartnerName,
		intro:  "💞 Let's check your compatibility.",
		steps:  steps,
		finish: s.finishCompatibility,
	}
}

func (s *Service) finishCompatibility(ctx context.Context, sess *conversation.Session) error {
	subj, err := s.subject(ctx, sess.UserID)
	if err != nil {
		return err
	}

	partner := sess.Data.Birth()
	partnerChart, err := s.Charts.NatalChart(ctx, sess.Data.Name, partner)
	if err != nil {
		s.send(ctx, sess.UserID, Prompt{Body: msgChartFailed})
		return fmt.Errorf("failed to compute partner chart: %w", err)
	}

	passages := s.passages(ctx, fmt.Sprintf("synastry compatibility %s %s", subj.Name, sess.Data.Name))
	report, err := s.Compatibility.Compatibility(ctx, astro.CompatibilityRequest{
		UserName:     subj.Name,
		UserChart:    subj.Chart,
		PartnerName:  sess.Data.Name,
		PartnerChart: partnerChart,
		Passages:     passages,
		Language:     subj.Language,
	})
	if err != nil {
		s.send(ctx, sess.UserID, Prompt{Body: msgAIFailed})
		return fmt.Errorf("failed to analyse compatibility: %w", err)
	}

	res := &astro.CompatibilityResult{
		ID:          uuid.NewString(),
		UserID:      sess.UserID,
		PartnerName: sess.Data.Name,
		Partner:     partner,
		Report:      report,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.Readings.SaveCompatibility(ctx, res); err != nil {
		s.Logger.Warn("failed to store compatibility result", zap.String("user_id", sess.UserID), zap.Error(err))
	}

	s.sendText(ctx, sess.UserID, report)
	s.askFeedback(ctx, sess.UserID)
	return nil
}

func (s *Service) feedbackFlow() *flow {
	return &flow{
		kind:  conversation.FlowFeedback,
		start: conversation.StageAwaitingRating,
		steps: map[conversation.Stage]step{
			conversation.StageAwaitingRating: {
				prompt: staticPrompt("⭐ How was my last reply?", feedbackButtons...),
				accept: func(_ context.Context, in wa.Inbound, sess *conversation.Session) (conversation.Stage, error) {
					if in.ButtonID == "feedback_cancel" {
						return stageCancelled, nil
					}
					rating, ok := ratingChoice(in)
					if !ok {
						return "", errRetry
					}
					sess.Data.Rating = rating
					return "", nil
				},
				next: conversation.StageAwaitingComment,
			},
			conversation.StageAwaitingComment: {
				prompt: staticPrompt("💬 Anything you'd like to add? Type a comment or tap Skip.",
					wa.Button{ID: "feedback_skip", Title: "Skip"},
					wa.Button{ID: "feedback_cancel", Title: "Cancel"}),
				accept: func(_ context.Context, in wa.Inbound, sess *conversation.Session) (conversation.Stage, error) {
					switch in.ButtonID {
					case "feedback_cancel":
						return stageCancelled, nil
					case "feedback_skip":
						return "", nil
					}
					comment := strings.TrimSpace(in.Text)
					if comment == "" {
						return "", errRetry
					}
					sess.Data.Comment = comment
					return "", nil
				},
				next: conversation.StageComplete,
			},
		},
		finish: s.finishFeedback,
	}
}

func ratingChoice(in wa.Inbound) (string, bool) {
	switch in.ButtonID {
	case "feedback_up":
		return astro.RatingUp, true
	case "feedback_down":
		return astro.RatingDown, true
	}
	t := strings.ToLower(strings.TrimSpace(in.Text))
	switch {
	case strings.HasPrefix(t, "👍"), t == "up", t == "good", t == "yes":
		return astro.RatingUp, true
	case strings.HasPrefix(t, "👎"), t == "down", t == "bad", t == "no":
		return astro.RatingDown, true
	}
	return "", false
}

func (s *Service) finishFeedback(ctx context.Context, sess *conversation.Session) error {
	fb := &astro.Feedback{
		ID:        uuid.NewString(),
		UserID:    sess.UserID,
		MessageID: sess.Data.MessageID,
		Rating:    sess.Data.Rating,
		Comments:  sess.Data.Comment,
		CreatedAt: s.now().UTC(),
	}
	if err := s.Readings.SaveFeedback(ctx, fb); err != nil {
		s.send(ctx, sess.UserID, Prompt{Body: msgGenericError})
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	s.send(ctx, sess.UserID, Prompt{Body: msgFeedbackThanks})
	return nil
}

func (s *Service) paymentFlow() *flow {
	choose := func(ctx context.Context, in wa.Inbound, sess *conversation.Session) (conversation.Stage, error) {
		planID, ok := planChoice(in)
		if !ok {
			return "", errRetry
		}
		p, err := s.Payments.CreateIntent(ctx, sess.UserID, planID)
		if err != nil {
			return "", err
		}
		sess.Data.PlanID, sess.Data.ReferenceID = planID, p.ReferenceID
		return conversation.StageAwaitingPayment, nil
	}

	return &flow{
		kind:  conversation.FlowPayment,
		start: conversation.StageChoosePlan,
		steps: map[conversation.Stage]step{
			conversation.StageChoosePlan: {
				prompt: func(*conversation.Session) Prompt { return upgradePrompt(s.Catalog, nil) },
				accept: choose,
				next:   conversation.StageAwaitingPayment,
				retry:  retryPlan,
			},
			conversation.StageAwaitingPayment: {
				prompt: func(sess *conversation.Session) Prompt {
					return Prompt{Body: fmt.Sprintf("%s\nReference: %s", msgPaymentReminder, sess.Data.ReferenceID)}
				},
				accept: choose,
				next:   conversation.StageAwaitingPayment,
				retry:  msgPaymentReminder,
			},
		},
	}
}

// planChoice reads a plan from "9", "49", their menu positions or a plan button.
func planChoice(in wa.Inbound) (string, bool) {
	if id, ok := planButton(in.ButtonID); ok {
		return id, true
	}
	t := strings.ToLower(strings.TrimSpace(in.Text))
	t = strings.TrimPrefix(t, "₹")
	t = strings.TrimPrefix(t, "rs")
	switch strings.TrimSpace(t) {
	case "9", "1":
		return "9", true
	case "49", "2":
		return "49", true
	}
	return "", false
}

func (s *Service) questionFlow() *flow {
	return &flow{
		kind:  conversation.FlowQuestion,
		start: conversation.StageAwaitingQuestion,
		steps: map[conversation.Stage]step{
			conversation.StageAwaitingQuestion: {
				prompt: staticPrompt(msgAskQuestion, skipButton...),
				accept: func(_ context.Context, in wa.Inbound, sess *conversation.Session) (conversation.Stage, error) {
					q := strings.TrimSpace(in.Text)
					if q == "" || in.ButtonID != "" {
						return "", errRetry
					}
					sess.Data.Question = q
					sess.Data.MessageID = in.MessageID
					return "", nil
				},
				next: conversation.StageComplete,
			},
		},
		finish: func(ctx context.Context, sess *conversation.Session) error {
			return s.heavy(ctx, sess.UserID, func(ctx context.Context, subj *subject) error {
				return s.answerQuestion(ctx, subj, sess.Data.Question)
			})
		},
	}
}

func birthSummary(b astro.BirthDetails) string {
	return fmt.Sprintf("📅 %s  ⏰ %02d:%02d  📍 %s",
		b.Date.Format("02 Jan 2006"), b.Hour, b.Minute, b.Location.Name)
}
