package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"astrobot-service/internal/domain/conversation"
	"astrobot-service/internal/domain/user"
	wa "astrobot-service/internal/domain/whatsapp"
	xerrors "astrobot-service/internal/pkg/errors"
	"astrobot-service/internal/service/subscription"
)

const (
	intentNone             = ""
	intentCreateProfile    = "create_profile"
	intentChangeLanguage   = "change_language"
	intentHello            = "casual_hello"
	intentInitiatePayment  = "initiate_payment"
	intentSelectPlan       = "select_payment_plan"
	intentViewChart        = "view_chart"
	intentLuckyNumber      = "lucky_number"
	intentDailyHoroscope   = "daily_horoscope"
	intentAskQuestion      = "ask_question"
	intentCosmicGuidance   = "cosmic_guidance"
	intentDeleteData       = "delete_data"
	intentRestart          = "restart"
	intentFeedback         = "give_feedback"
	intentCompatibility    = "start_compatibility"
	intentUsage            = "usage"
	intentManageProfiles   = "manage_profiles"
	intentSelectProfile    = "select_profile"
	intentMenu             = "menu"
	intentOnboardingPrompt = "onboarding"
)

type intent struct {
	name string
	arg  string
}

var escapeWords = map[string]bool{
	"skip": true, "exit": true, "cancel": true, "stop": true,
	"back": true, "menu": true, "main menu": true,
}

// isEscape matches the skip button and the escape words. Button titles that
// happen to read "Cancel" are left to the flow that sent them.
func isEscape(in wa.Inbound) bool {
	if in.ButtonID == "skip_current_flow" {
		return true
	}
	if in.ButtonID != "" || in.ListID != "" {
		return false
	}
	return escapeWords[strings.ToLower(strings.TrimSpace(in.Text))]
}

var restartWords = map[string]bool{
	"start": true, "restart": true, "reset": true, "start over": true, "begin again": true,
}

// onboardingRestarts reset onboarding only; elsewhere they are greetings.
var onboardingRestarts = map[string]bool{"hi": true, "hello": true}

// restartWord returns the lowered text when it asks for a fresh start.
func restartWord(in wa.Inbound) (string, bool) {
	if in.ButtonID != "" || in.ListID != "" {
		return "", false
	}
	t := strings.ToLower(strings.TrimSpace(in.Text))
	return t, restartWords[t] || onboardingRestarts[t]
}

// isRepeatedRune matches "hiiiii"-style noise: five or more of one rune.
func isRepeatedRune(t string) bool {
	r := []rune(t)
	if len(r) < 5 {
		return false
	}
	for _, c := range r[1:] {
		if c != r[0] {
			return false
		}
	}
	return true
}

func planButton(id string) (string, bool) {
	switch id {
	case "plan_9":
		return "9", true
	case "plan_49":
		return "49", true
	}
	return "", false
}

var (
	profileRe  = regexp.MustCompile(`\b(new|create|add|make|setup|set up|start|register)( a| another)? (new )?(profile|account|user)\b`)
	languageRe = regexp.MustCompile(`\b(change|switch|set)( my)? language\b|\b(switch|change) to (english|hindi|hinglish)\b|^language$`)
	greetingRe = regexp.MustCompile(`^(hi+|hello|hey+|heya|yo|sup|wassup|what'?s up|whatsup|namaste|good (morning|afternoon|evening|night)|gm|gn)[!. ]*$`)
	paymentRe  = regexp.MustCompile(`\b(pay|payment|upgrade|subscribe|buy|purchase|unlock|premium|plans?)\b`)
	usageRe    = regexp.MustCompile(`\b(usage|quota|balance|questions left|my plan|remaining)\b`)
	chartRe    = regexp.MustCompile(`\b(view|see|show|open|display|check|get|give|send)( me)?( my)? (chart|kundli|kundali|birth chart)\b|\bbirth chart\b|\bkundli\b|\bkundali\b`)
	luckyRe    = regexp.MustCompile(`\blucky (number|digit)s?\b`)
	horoRe     = regexp.MustCompile(`\b(daily horoscope|horoscope|today'?s reading|my day)\b`)
	askRe      = regexp.MustCompile(`^(ask|ask a question|ask question)$`)
	profilesRe = regexp.MustCompile(`\b(my profiles|switch profile|manage profiles|list profiles|profiles)\b`)
	compatRe   = regexp.MustCompile(`compatibility|match ?making|kundali milan|compare kundli|with my (wife|husband|partner)`)
)

var buttonIntents = map[string]string{
	"daily_horoscope":     intentDailyHoroscope,
	"ask_question":        intentAskQuestion,
	"start_compatibility": intentCompatibility,
	"view_chart":          intentViewChart,
	"lucky_number":        intentLuckyNumber,
	"give_feedback":       intentFeedback,
	"delete_data":         intentDeleteData,
	"manage_profiles":     intentManageProfiles,
	"create_profile":      intentCreateProfile,
	"usage":               intentUsage,
	"initiate_payment":    intentInitiatePayment,
	"privacy_continue":    intentOnboardingPrompt,
}

// detectIntent maps a message outside any flow to an intent. The order of
// the text checks decides overlaps.
func detectIntent(in wa.Inbound) intent {
	id := in.ButtonID
	if id == "" {
		id = in.ListID
	}
	switch {
	case id == "":
	case strings.HasPrefix(id, "lang_"):
		return intent{name: intentChangeLanguage, arg: strings.TrimPrefix(id, "lang_")}
	case strings.HasPrefix(id, "profile_"):
		return intent{name: intentSelectProfile, arg: strings.TrimPrefix(id, "profile_")}
	case id == "feedback_up" || id == "feedback_down":
		rating, _ := ratingChoice(in)
		return intent{name: intentFeedback, arg: rating}
	default:
		if name, ok := buttonIntents[id]; ok {
			return intent{name: name}
		}
	}

	t := strings.ToLower(strings.TrimSpace(in.Text))
	if t == "" {
		return intent{}
	}
	switch {
	case profileRe.MatchString(t):
		return intent{name: intentCreateProfile}
	case languageRe.MatchString(t):
		return intent{name: intentChangeLanguage}
	case greetingRe.MatchString(t), isRepeatedRune(t):
		return intent{name: intentHello}
	case restartWords[t]:
		return intent{name: intentRestart}
	case usageRe.MatchString(t):
		return intent{name: intentUsage}
	case t == "9" || t == "49":
		return intent{name: intentSelectPlan, arg: t}
	case paymentRe.MatchString(t):
		return intent{name: intentInitiatePayment}
	case compatRe.MatchString(t):
		return intent{name: intentCompatibility}
	case chartRe.MatchString(t):
		return intent{name: intentViewChart}
	case luckyRe.MatchString(t):
		return intent{name: intentLuckyNumber}
	case strings.Contains(t, "delete my data") || strings.Contains(t, "delete data") || strings.Contains(t, "clear data"):
		return intent{name: intentDeleteData}
	case strings.Contains(t, "feedback") || strings.Contains(t, "suggestion"):
		return intent{name: intentFeedback}
	case strings.HasPrefix(t, "👍") || strings.HasPrefix(t, "👎"):
		rating, _ := ratingChoice(in)
		return intent{name: intentFeedback, arg: rating}
	case horoRe.MatchString(t):
		return intent{name: intentDailyHoroscope}
	case askRe.MatchString(t):
		return intent{name: intentAskQuestion}
	case profilesRe.MatchString(t):
		return intent{name: intentManageProfiles}
	case strings.HasPrefix(t, "should i"):
		return intent{name: intentCosmicGuidance, arg: strings.TrimSpace(in.Text)}
	case t == "help" || t == "options":
		return intent{name: intentMenu}
	}
	return intent{}
}

// runIntent handles an intent. u is nil for users who have not onboarded.
func (s *Service) runIntent(ctx context.Context, in wa.Inbound, u *user.User, it intent) error {
	userID := in.From
	s.Logger.Debug("intent detected", zap.String("user_id", userID), zap.String("intent", it.name))

	// Everything below except these needs a registered user; the rest
	// start onboarding instead.
	switch it.name {
	case intentInitiatePayment, intentSelectPlan, intentUsage, intentDeleteData, intentFeedback, intentChangeLanguage:
	default:
		if u == nil {
			return s.startFlow(ctx, userID, conversation.FlowOnboarding, conversation.FlowData{})
		}
	}

	switch it.name {
	case intentHello:
		s.send(ctx, userID, Prompt{Body: fmt.Sprintf("🙏 Namaste %s! %s", u.Name, msgMenu), Buttons: menuButtons})
		return nil
	case intentMenu, intentOnboardingPrompt:
		s.send(ctx, userID, Prompt{Body: msgMenu, Buttons: menuButtons})
		return nil
	case intentRestart:
		if err := s.Sessions.DeleteAll(ctx, userID); err != nil {
			return fmt.Errorf("failed to clear sessions: %w", err)
		}
		s.send(ctx, userID, Prompt{Body: fmt.Sprintf("🔄 Fresh start, %s. %s", u.Name, msgMenu), Buttons: menuButtons})
		return nil
	case intentCreateProfile:
		return s.startFlow(ctx, userID, conversation.FlowProfile, conversation.FlowData{})
	case intentChangeLanguage:
		return s.changeLanguage(ctx, userID, u, it.arg)
	case intentInitiatePayment:
		return s.startFlow(ctx, userID, conversation.FlowPayment, conversation.FlowData{})
	case intentSelectPlan:
		return s.selectPlan(ctx, userID, it.arg)
	case intentUsage:
		st, err := s.Quota.Remaining(ctx, userID)
		if err != nil {
			s.send(ctx, userID, Prompt{Body: msgQuotaUnavailable})
			return nil
		}
		s.send(ctx, userID, Prompt{Body: usageMessage(st)})
		return nil
	case intentViewChart:
		return s.heavy(ctx, userID, s.viewChart)
	case intentLuckyNumber:
		return s.heavy(ctx, userID, s.luckyNumber)
	case intentDailyHoroscope:
		return s.heavy(ctx, userID, s.dailyHoroscope)
	case intentCosmicGuidance:
		return s.heavy(ctx, userID, func(ctx context.Context, subj *subject) error {
			return s.cosmicGuidance(ctx, subj, it.arg)
		})
	case intentAskQuestion:
		return s.startFlow(ctx, userID, conversation.FlowQuestion, conversation.FlowData{})
	case intentCompatibility:
		return s.gate(ctx, userID, func(ctx context.Context) error {
			return s.startFlow(ctx, userID, conversation.FlowCompatibility, conversation.FlowData{})
		})
	case intentFeedback:
		if it.arg != "" {
			return s.startFlowAt(ctx, userID, conversation.FlowFeedback, conversation.StageAwaitingComment,
				conversation.FlowData{Rating: it.arg, MessageID: in.MessageID})
		}
		return s.startFlow(ctx, userID, conversation.FlowFeedback, conversation.FlowData{MessageID: in.MessageID})
	case intentDeleteData:
		return s.deleteData(ctx, userID)
	case intentManageProfiles:
		return s.listProfiles(ctx, userID)
	case intentSelectProfile:
		return s.selectProfile(ctx, userID, it.arg)
	}
	return fmt.Errorf("unhandled intent %q", it.name)
}

// selectPlan creates a payment intent and waits for the payment.
func (s *Service) selectPlan(ctx context.Context, userID, planID string) error {
	p, err := s.Payments.CreateIntent(ctx, userID, planID)
	if errors.Is(err, xerrors.ErrUnknownPlan) {
		s.send(ctx, userID, upgradePrompt(s.Catalog, nil))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create payment intent: %w", err)
	}

	now := s.now().UTC()
	sess := &conversation.Session{
		UserID:    userID,
		Kind:      conversation.FlowPayment,
		Stage:     conversation.StageAwaitingPayment,
		Data:      conversation.FlowData{PlanID: planID, ReferenceID: p.ReferenceID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Sessions.Save(ctx, sess); err != nil {
		s.Logger.Warn("failed to save payment session", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

func (s *Service) changeLanguage(ctx context.Context, userID string, u *user.User, lang string) error {
	if lang == "" {
		s.send(ctx, userID, Prompt{Body: "🌐 Choose your language.", Buttons: languageButtons})
		return nil
	}
	if u == nil {
		return s.startFlow(ctx, userID, conversation.FlowOnboarding, conversation.FlowData{Language: lang})
	}
	if err := s.Users.UpdateLanguage(ctx, userID, lang); err != nil {
		return fmt.Errorf("failed to update language: %w", err)
	}
	s.send(ctx, userID, Prompt{Body: fmt.Sprintf("✅ Language set to %s.", languageName(lang)), Buttons: menuButtons})
	return nil
}

func (s *Service) deleteData(ctx context.Context, userID string) error {
	if err := s.Subscriptions.Terminate(ctx, userID, subscription.ReasonUserDelete); err != nil {
		s.Logger.Warn("failed to end subscription during data deletion", zap.String("user_id", userID), zap.Error(err))
	}
	if err := s.Users.DeleteUser(ctx, userID); err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := s.Sessions.DeleteAll(ctx, userID); err != nil {
		s.Logger.Warn("failed to clear sessions", zap.String("user_id", userID), zap.Error(err))
	}
	s.Logger.Info("user data deleted", zap.String("user_id", userID))
	s.send(ctx, userID, Prompt{Body: msgDeleted})
	return nil
}

func (s *Service) listProfiles(ctx context.Context, userID string) error {
	profiles, err := s.Users.ListProfiles(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}
	if len(profiles) == 0 {
		s.send(ctx, userID, Prompt{
			Body:    "You have no extra profiles yet.",
			Buttons: []wa.Button{{ID: "create_profile", Title: "Add Profile"}},
		})
		return nil
	}

	var b strings.Builder
	b.WriteString("👥 Your profiles:\n")
	var buttons []wa.Button
	for _, p := range profiles {
		mark := ""
		if p.IsActive {
			mark = " ✅"
		}
		fmt.Fprintf(&b, "• %s%s\n", p.Name, mark)
		if len(buttons) < 3 {
			buttons = append(buttons, wa.Button{ID: "profile_" + p.ID, Title: p.Name})
		}
	}
	b.WriteString("\nTap a profile to use it for readings.")
	s.send(ctx, userID, Prompt{Body: b.String(), Buttons: buttons})
	return nil
}

func (s *Service) selectProfile(ctx context.Context, userID, profileID string) error {
	err := s.Users.ActivateProfile(ctx, userID, profileID)
	if errors.Is(err, xerrors.ErrNotFound) {
		s.send(ctx, userID, Prompt{Body: "That profile no longer exists."})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to activate profile: %w", err)
	}
	s.send(ctx, userID, Prompt{Body: "✅ Profile selected. Readings will use it now.", Buttons: menuButtons})
	return nil
}
