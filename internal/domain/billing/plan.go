package billing

import (
	"fmt"
	"sort"
	"time"
)

// PlanQuota is how many heavy requests a plan grants per window.
type PlanQuota struct {
	Questions int `json:"questions"`
	Days      int `json:"days"`
}

// PaymentPlan is a purchasable option shown to the user.
type PaymentPlan struct {
	ID           string `json:"id"`
	PlanCode     string `json:"plan_code"`
	AmountPaise  int64  `json:"amount_paise"`
	Questions    int    `json:"questions"`
	Description  string `json:"description"`
	DisplayPrice string `json:"display_price"`
	Interval     string `json:"interval"`
}

const (
	PlanIDDaily  = "9"
	PlanIDWeekly = "49"
	PlanIDCustom = "custom"
)

// Catalog holds plan quotas and the purchasable plans that map onto them.
type Catalog struct {
	quotas   map[string]PlanQuota
	payments map[string]PaymentPlan
}

// NewCatalog builds the catalog from the configured plan codes.
func NewCatalog(dailyCode, weeklyCode string, freeQuestions int) *Catalog {
	daily := PaymentPlan{
		ID:           PlanIDDaily,
		PlanCode:     dailyCode,
		AmountPaise:  900,
		Questions:    2,
		Description:  "2 more questions (valid 24 hrs)",
		DisplayPrice: "₹9",
		Interval:     "daily",
	}
	weekly := PaymentPlan{
		ID:           PlanIDWeekly,
		PlanCode:     weeklyCode,
		AmountPaise:  4900,
		Questions:    20,
		Description:  "20 questions for 7 days",
		DisplayPrice: "₹49",
		Interval:     "weekly",
	}
	custom := daily
	custom.ID = PlanIDCustom

	return &Catalog{
		quotas: map[string]PlanQuota{
			FreePlanCode: {Questions: freeQuestions, Days: 1},
			dailyCode:    {Questions: daily.Questions, Days: 1},
			weeklyCode:   {Questions: weekly.Questions, Days: 7},
		},
		payments: map[string]PaymentPlan{
			PlanIDDaily:  daily,
			PlanIDWeekly: weekly,
			PlanIDCustom: custom,
		},
	}
}

// Quota returns the quota entry of a plan code. Unknown codes report false.
func (c *Catalog) Quota(planCode string) (PlanQuota, bool) {
	q, ok := c.quotas[planCode]
	return q, ok
}

// PaymentPlan looks up a purchasable plan by id.
func (c *Catalog) PaymentPlan(planID string) (PaymentPlan, bool) {
	p, ok := c.payments[planID]
	return p, ok
}

// PlanForAmount maps a paid amount in paise to a plan id.
// Unrecognised amounts map to the custom plan and report false.
func (c *Catalog) PlanForAmount(amountPaise int64) (string, bool) {
	for _, id := range []string{PlanIDDaily, PlanIDWeekly} {
		if c.payments[id].AmountPaise == amountPaise {
			return id, true
		}
	}
	return PlanIDCustom, false
}

// PurchasablePlans lists the plans offered in the plan picker, cheapest first.
func (c *Catalog) PurchasablePlans() []PaymentPlan {
	plans := make([]PaymentPlan, 0, 2)
	for id, p := range c.payments {
		if id == PlanIDCustom {
			continue
		}
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].AmountPaise < plans[j].AmountPaise })
	return plans
}

// PeriodWindow truncates start to UTC midnight and adds days.
func PeriodWindow(start time.Time, days int) (time.Time, time.Time) {
	if days <= 0 {
		days = 1
	}
	s := start.UTC()
	ps := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	return ps, ps.AddDate(0, 0, days)
}

func (p PaymentPlan) String() string {
	return fmt.Sprintf("%s → %s", p.DisplayPrice, p.Description)
}
