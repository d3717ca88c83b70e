package conversation

import (
	"fmt"
	"strings"

	"astrobot-service/internal/domain/billing"
	wa "astrobot-service/internal/domain/whatsapp"
	"astrobot-service/internal/service/quota"
)

// maxChunk keeps replies under the WhatsApp text body limit.
const maxChunk = 3500

const (
	msgGenericError     = "⚠️ Something went wrong on our side. Please try again in a moment."
	msgQuotaUnavailable = "⚠️ We could not check your plan right now, so this request was not run. Please try again shortly."
	msgEscaped          = "👍 No problem, I've stopped that. What would you like to do next?"
	msgMenu             = "🌟 What would you like to explore?"
	msgFlowExpired      = "⌛ That conversation has expired. Let's start fresh."
	msgNeedProfile      = "I need your birth details first. Say *hi* to set up your profile."
	msgChartFailed      = "⚠️ I couldn't compute the chart right now. Please start again later."
	msgAIFailed         = "⚠️ The stars are a little cloudy right now. Please try again in a moment."
	msgDeleted          = "🗑️ Your data has been deleted and your plan has ended. Say *hi* any time to start again."
	msgFeedbackThanks   = "🙏 Thank you for your feedback!"
	msgPaymentReminder  = "⏳ Your payment is pending. Tap the order above to pay, or reply *paid <reference>* once you have paid. Reply *cancel* to stop."
	msgAskQuestion      = "🔮 What would you like to ask the stars? Type your question."
)

var menuButtons = []wa.Button{
	{ID: "daily_horoscope", Title: "Daily Horoscope"},
	{ID: "ask_question", Title: "Ask a Question"},
	{ID: "start_compatibility", Title: "Compatibility"},
}

var skipButton = []wa.Button{{ID: "skip_current_flow", Title: "Skip"}}

var languageButtons = []wa.Button{
	{ID: "lang_en", Title: "English"},
	{ID: "lang_hi", Title: "हिंदी"},
	{ID: "lang_hi-en", Title: "Hinglish"},
}

var feedbackButtons = []wa.Button{
	{ID: "feedback_up", Title: "👍"},
	{ID: "feedback_down", Title: "👎"},
	{ID: "feedback_cancel", Title: "Cancel"},
}

func planButtons(catalog *billing.Catalog) []wa.Button {
	var buttons []wa.Button
	for _, p := range catalog.PurchasablePlans() {
		buttons = append(buttons, wa.Button{ID: "plan_" + p.ID, Title: p.DisplayPrice + " Plan"})
	}
	return buttons
}

func upgradePrompt(catalog *billing.Catalog, d *quota.Decision) Prompt {
	var b strings.Builder
	if d != nil && d.Reason == quota.ReasonExhausted {
		fmt.Fprintf(&b, "🚫 You've used all %d questions in your current plan.\n\n", d.Quota)
	} else {
		b.WriteString("🚫 This needs an active plan.\n\n")
	}
	b.WriteString("Choose a plan to continue:\n")
	for _, p := range catalog.PurchasablePlans() {
		fmt.Fprintf(&b, "• %s\n", p)
	}
	return Prompt{Body: strings.TrimRight(b.String(), "\n"), Buttons: planButtons(catalog)}
}

func usageMessage(st *quota.Status) string {
	if st == nil {
		return msgGenericError
	}
	return fmt.Sprintf("📊 Plan: %s\nUsed: %d of %d\nRemaining: %d\nRenews: %s UTC",
		st.PlanCode, st.Used, st.Quota, st.Remaining, st.PeriodEnd.Format("02 Jan 2006 15:04"))
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// paragraph and line boundaries.
func splitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var chunks []string
	for len([]rune(text)) > limit {
		r := []rune(text)
		cut := limit
		head := string(r[:limit])
		if i := strings.LastIndex(head, "\n\n"); i > 0 {
			cut = len([]rune(head[:i]))
		} else if i := strings.LastIndex(head, "\n"); i > 0 {
			cut = len([]rune(head[:i]))
		}
		chunks = append(chunks, strings.TrimSpace(string(r[:cut])))
		text = strings.TrimSpace(string(r[cut:]))
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
