// internal/domain/astro/entity.go
package astro

import (
	"context"
	"encoding/json"
	"time"
)

// Location is a resolved birth place.
type Location struct {
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Timezone string  `json:"tz"`
}

// BirthDetails is what the flows collect before a chart can be computed.
type BirthDetails struct {
	Date     time.Time `json:"birth_date"`
	Hour     int       `json:"hour"`
	Minute   int       `json:"minute"`
	Location Location  `json:"location"`
}

// Instant combines date and time of birth in the birth place's zone.
func (b BirthDetails) Instant() time.Time {
	loc, err := time.LoadLocation(b.Location.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), b.Hour, b.Minute, 0, 0, loc)
}

// Chart is an opaque natal chart document produced by the chart service.
type Chart json.RawMessage

func (c Chart) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return c, nil
}

func (c *Chart) UnmarshalJSON(data []byte) error {
	*c = append((*c)[:0], data...)
	return nil
}

// Empty reports whether no chart has been computed.
func (c Chart) Empty() bool {
	return len(c) == 0 || string(c) == "null"
}

// CompatibilityResult is a stored synastry reading.
type CompatibilityResult struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	PartnerName string       `json:"partner_name"`
	Partner     BirthDetails `json:"partner"`
	Report      string       `json:"report"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Feedback is a rating left on a bot reply.
type Feedback struct {
	ID        string    `json:"feedback_id"`
	UserID    string    `json:"user_id"`
	MessageID string    `json:"message_id"`
	Rating    string    `json:"rating"`
	Comments  string    `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RatingUp   = "up"
	RatingDown = "down"
)

// ChartCalculator computes natal charts.
type ChartCalculator interface {
	NatalChart(ctx context.Context, name string, birth BirthDetails) (Chart, error)
}

// Oracle answers astrology prompts.
type Oracle interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// PassageRetriever returns reference passages relevant to a query.
type PassageRetriever interface {
	RetrievePassages(ctx context.Context, query string, limit int) ([]string, error)
}

// CompatibilityAnalyzer turns two charts into a compatibility report.
type CompatibilityAnalyzer interface {
	Compatibility(ctx context.Context, req CompatibilityRequest) (string, error)
}

// CompatibilityRequest is the payload for a synastry reading.
type CompatibilityRequest struct {
	UserName     string   `json:"user_name"`
	UserChart    Chart    `json:"user_chart"`
	PartnerName  string   `json:"partner_name"`
	PartnerChart Chart    `json:"partner_chart"`
	Passages     []string `json:"passages"`
	Language     string   `json:"language"`
}

// Guidance is the worker's yes/no cosmic guidance reading.
type Guidance struct {
	Decision   string `json:"decision"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
	BestTiming string `json:"best_timing"`
	BonusTip   string `json:"bonus_tip"`
}

// Horoscope is a personalised daily reading.
type Horoscope struct {
	Summary      string   `json:"summary"`
	Love         string   `json:"love,omitempty"`
	Career       string   `json:"career,omitempty"`
	Health       string   `json:"health,omitempty"`
	LuckyNumbers []int    `json:"lucky_numbers,omitempty"`
	LuckyColors  []string `json:"lucky_colors,omitempty"`
}

// ReadingRequest carries what a personalised reading needs.
type ReadingRequest struct {
	Name     string   `json:"name"`
	Chart    Chart    `json:"natal_chart"`
	Question string   `json:"question,omitempty"`
	Passages []string `json:"passages,omitempty"`
	Date     string   `json:"date,omitempty"`
	Language string   `json:"language"`
}

// Advisor produces structured readings from a chart.
type Advisor interface {
	CosmicGuidance(ctx context.Context, req ReadingRequest) (*Guidance, error)
	DailyHoroscope(ctx context.Context, req ReadingRequest) (*Horoscope, error)
}

// Repository persists readings and feedback.
type Repository interface {
	SaveCompatibility(ctx context.Context, r *CompatibilityResult) error
	SaveFeedback(ctx context.Context, f *Feedback) error
}
