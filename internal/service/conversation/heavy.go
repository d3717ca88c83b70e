package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"astrobot-service/internal/domain/astro"
	"astrobot-service/internal/domain/conversation"
	"astrobot-service/internal/domain/user"
	xerrors "astrobot-service/internal/pkg/errors"
)

const passageLimit = 3

// errNoSubject means the user has no birth details yet; they have been told.
var errNoSubject = errors.New("no birth details on file")

// subject is whose chart a reading is about: the active profile when one is
// selected, otherwise the user.
type subject struct {
	UserID   string
	Name     string
	Language string
	Chart    astro.Chart
	Birth    astro.BirthDetails
}

func (s *Service) subject(ctx context.Context, userID string) (*subject, error) {
	u, err := s.Users.GetUser(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		s.send(ctx, userID, Prompt{Body: msgNeedProfile})
		return nil, errNoSubject
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return s.subjectOf(ctx, u), nil
}

func (s *Service) subjectOf(ctx context.Context, u *user.User) *subject {
	subj := &subject{UserID: u.ID, Name: u.Name, Language: u.Language, Chart: u.Chart, Birth: u.Birth}
	p, err := s.Users.GetActiveProfile(ctx, u.ID)
	switch {
	case err == nil && p != nil && !p.Chart.Empty():
		subj.Name, subj.Chart, subj.Birth = p.Name, p.Chart, p.Birth
	case err != nil && !errors.Is(err, xerrors.ErrNotFound):
		s.Logger.Warn("failed to load active profile", zap.String("user_id", u.ID), zap.Error(err))
	}
	return subj
}

// heavy runs fn only when the quota engine allows it. A denial presents the
// plans and opens the plan picker; an engine failure runs nothing. fn
// reports its own failures to the user.
func (s *Service) heavy(ctx context.Context, userID string, fn func(ctx context.Context, subj *subject) error) error {
	subj, err := s.subject(ctx, userID)
	if errors.Is(err, errNoSubject) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.gate(ctx, userID, func(ctx context.Context) error { return fn(ctx, subj) })
}

func (s *Service) gate(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	d, err := s.Quota.CheckAndConsume(ctx, userID)
	if err != nil {
		s.Logger.Error("quota check failed", zap.String("user_id", userID), zap.Error(err))
		s.send(ctx, userID, Prompt{Body: msgQuotaUnavailable})
		return nil
	}
	if !d.Allowed {
		s.Logger.Info("heavy request denied",
			zap.String("user_id", userID),
			zap.String("plan_code", d.PlanCode),
			zap.String("reason", d.Reason),
		)
		s.send(ctx, userID, upgradePrompt(s.Catalog, d))
		now := s.now().UTC()
		sess := &conversation.Session{
			UserID:    userID,
			Kind:      conversation.FlowPayment,
			Stage:     conversation.StageChoosePlan,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.Sessions.Save(ctx, sess); err != nil {
			s.Logger.Warn("failed to open plan picker", zap.String("user_id", userID), zap.Error(err))
		}
		return nil
	}
	if err := fn(ctx); err != nil {
		s.Logger.Error("heavy request failed", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

func (s *Service) passages(ctx context.Context, query string) []string {
	if s.Passages == nil {
		return nil
	}
	out, err := s.Passages.RetrievePassages(ctx, query, passageLimit)
	if err != nil {
		s.Logger.Warn("passage retrieval failed", zap.Error(err))
		return nil
	}
	return out
}

func (s *Service) answerQuestion(ctx context.Context, subj *subject, question string) error {
	prompt := readingPrompt(subj, question, s.passages(ctx, question))
	answer, err := s.Oracle.Ask(ctx, prompt)
	if err != nil {
		s.send(ctx, subj.UserID, Prompt{Body: msgAIFailed})
		return fmt.Errorf("failed to answer question: %w", err)
	}
	s.sendText(ctx, subj.UserID, answer)
	s.askFeedback(ctx, subj.UserID)
	return nil
}

func (s *Service) luckyNumber(ctx context.Context, subj *subject) error {
	q := fmt.Sprintf("Give %s three lucky numbers for today with one line each on why, based on the chart. Keep it short.", subj.Name)
	answer, err := s.Oracle.Ask(ctx, readingPrompt(subj, q, nil))
	if err != nil {
		s.send(ctx, subj.UserID, Prompt{Body: msgAIFailed})
		return fmt.Errorf("failed to get lucky number: %w", err)
	}
	s.sendText(ctx, subj.UserID, "🍀 "+answer)
	return nil
}

func (s *Service) cosmicGuidance(ctx context.Context, subj *subject, question string) error {
	g, err := s.Advisor.CosmicGuidance(ctx, astro.ReadingRequest{
		Name:     subj.Name,
		Chart:    subj.Chart,
		Question: question,
		Passages: s.passages(ctx, question),
		Date:     s.now().UTC().Format("2006-01-02"),
		Language: subj.Language,
	})
	if err != nil {
		s.send(ctx, subj.UserID, Prompt{Body: msgAIFailed})
		return fmt.Errorf("failed to get cosmic guidance: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔮 *%s* (confidence %d%%)\n\n%s", g.Decision, g.Confidence, g.Reasoning)
	if g.BestTiming != "" {
		fmt.Fprintf(&b, "\n\n⏰ Best timing: %s", g.BestTiming)
	}
	if g.BonusTip != "" {
		fmt.Fprintf(&b, "\n\n💡 %s", g.BonusTip)
	}
	s.sendText(ctx, subj.UserID, b.String())
	s.askFeedback(ctx, subj.UserID)
	return nil
}

func (s *Service) dailyHoroscope(ctx context.Context, subj *subject) error {
	h, err := s.Advisor.DailyHoroscope(ctx, astro.ReadingRequest{
		Name:     subj.Name,
		Chart:    subj.Chart,
		Date:     s.now().UTC().Format("2006-01-02"),
		Language: subj.Language,
	})
	if err != nil {
		s.send(ctx, subj.UserID, Prompt{Body: msgAIFailed})
		return fmt.Errorf("failed to get daily horoscope: %w", err)
	}
	s.sendText(ctx, subj.UserID, formatHoroscope(subj.Name, h))
	return nil
}

func formatHoroscope(name string, h *astro.Horoscope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌞 Today for %s\n\n%s", name, h.Summary)
	for _, part := range []struct{ icon, text string }{
		{"❤️", h.Love}, {"💼", h.Career}, {"🌿", h.Health},
	} {
		if part.text != "" {
			fmt.Fprintf(&b, "\n\n%s %s", part.icon, part.text)
		}
	}
	if len(h.LuckyNumbers) > 0 {
		nums := make([]string, 0, 3)
		for i, n := range h.LuckyNumbers {
			if i == 3 {
				break
			}
			nums = append(nums, fmt.Sprint(n))
		}
		fmt.Fprintf(&b, "\n\n🍀 Lucky numbers: %s", strings.Join(nums, ", "))
	}
	if len(h.LuckyColors) > 0 {
		colors := h.LuckyColors
		if len(colors) > 2 {
			colors = colors[:2]
		}
		fmt.Fprintf(&b, "\n🎨 Lucky colours: %s", strings.Join(colors, ", "))
	}
	return b.String()
}

func (s *Service) viewChart(ctx context.Context, subj *subject) error {
	s.sendText(ctx, subj.UserID, fmt.Sprintf("🪐 Birth chart of %s\n%s\n\n%s",
		subj.Name, birthSummary(subj.Birth), summarizeChart(subj.Chart)))
	return nil
}

// summarizeChart lists "Body: Sign" lines for chart entries that carry a sign.
func summarizeChart(c astro.Chart) string {
	var bodies map[string]json.RawMessage
	if err := json.Unmarshal(c, &bodies); err != nil {
		return "Chart details are not available."
	}
	keys := make([]string, 0, len(bodies))
	for k := range bodies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		var pos struct {
			Sign  string `json:"sign"`
			House any    `json:"house"`
		}
		if err := json.Unmarshal(bodies[k], &pos); err != nil || pos.Sign == "" {
			continue
		}
		line := fmt.Sprintf("• %s: %s", k, pos.Sign)
		if pos.House != nil {
			line += fmt.Sprintf(" (house %v)", pos.House)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "Chart details are not available."
	}
	return strings.Join(lines, "\n")
}

func readingPrompt(subj *subject, question string, passages []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\nLanguage: %s\n", subj.Name, languageName(subj.Language))
	if !subj.Chart.Empty() {
		fmt.Fprintf(&b, "Natal chart: %s\n", string(subj.Chart))
	}
	if len(passages) > 0 {
		fmt.Fprintf(&b, "Reference passages:\n%s\n", strings.Join(passages, "\n---\n"))
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

func languageName(code string) string {
	switch code {
	case "hi":
		return "Hindi"
	case "hi-en":
		return "Hinglish"
	}
	return "English"
}

// askFeedback offers rating buttons after a reading; a tap opens the feedback flow.
func (s *Service) askFeedback(ctx context.Context, userID string) {
	s.send(ctx, userID, Prompt{Body: "Was this helpful?", Buttons: feedbackButtons[:2]})
}

// freeChat answers unmatched text from registered users as a question.
func (s *Service) freeChat(ctx context.Context, u *user.User, text string) error {
	if text == "" {
		s.send(ctx, u.ID, Prompt{Body: msgMenu, Buttons: menuButtons})
		return nil
	}
	subj := s.subjectOf(ctx, u)
	return s.gate(ctx, u.ID, func(ctx context.Context) error {
		return s.answerQuestion(ctx, subj, text)
	})
}
