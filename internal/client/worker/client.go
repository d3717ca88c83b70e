// Package worker calls the AI worker that hosts chart, chat and reading endpoints.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"astrobot-service/internal/domain/astro"
	xerrors "astrobot-service/internal/pkg/errors"
	"astrobot-service/internal/pkg/metrics"
)

const systemPrompt = "You are an ancient Vedic astrologer. " +
	"Answer as an expert using classical wisdom and reference context if provided. " +
	"Be insightful, positive, and practical."

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements astro.ChartCalculator, astro.Oracle, astro.Advisor and
// astro.CompatibilityAnalyzer against the worker.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Ask sends a single question to the chat endpoint.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	req := map[string][]chatMessage{"messages": {
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}}
	var out struct {
		Response string `json:"response"`
	}
	if err := c.post(ctx, "/chat", req, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", fmt.Errorf("worker chat returned an empty response")
	}
	return out.Response, nil
}

type natalChartRequest struct {
	Name     string  `json:"name"`
	Year     int     `json:"year"`
	Month    int     `json:"month"`
	Day      int     `json:"day"`
	Hour     int     `json:"hour"`
	Minute   int     `json:"minute"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Timezone string  `json:"tz_str"`
}

// NatalChart asks the worker to compute a chart for the birth details.
func (c *Client) NatalChart(ctx context.Context, name string, birth astro.BirthDetails) (astro.Chart, error) {
	req := natalChartRequest{
		Name:     name,
		Year:     birth.Date.Year(),
		Month:    int(birth.Date.Month()),
		Day:      birth.Date.Day(),
		Hour:     birth.Hour,
		Minute:   birth.Minute,
		Lat:      birth.Location.Lat,
		Lng:      birth.Location.Lng,
		Timezone: birth.Location.Timezone,
	}
	var out struct {
		NatalChart astro.Chart `json:"natal_chart"`
	}
	if err := c.post(ctx, "/natal-chart", req, &out); err != nil {
		return nil, err
	}
	if out.NatalChart.Empty() {
		return nil, fmt.Errorf("worker returned an empty chart")
	}
	return out.NatalChart, nil
}

func (c *Client) CosmicGuidance(ctx context.Context, req astro.ReadingRequest) (*astro.Guidance, error) {
	var out astro.Guidance
	if err := c.post(ctx, "/cosmic-guidance", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DailyHoroscope(ctx context.Context, req astro.ReadingRequest) (*astro.Horoscope, error) {
	var out astro.Horoscope
	if err := c.post(ctx, "/personal", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type compatibilityRequest struct {
	UserChart    astro.Chart `json:"user_natal_chart"`
	PartnerChart astro.Chart `json:"partner_natal_chart"`
	Passages     string      `json:"passages"`
	Names        []string    `json:"names"`
	Language     string      `json:"language,omitempty"`
}

type compatibilityResponse struct {
	Score               int      `json:"compatibility_score"`
	Strengths           []string `json:"strengths"`
	Challenges          []string `json:"challenges"`
	EmotionalConnection string   `json:"emotional_connection"`
	CommunicationStyle  string   `json:"communication_style"`
	LongTermPotential   string   `json:"long_term_potential"`
	CosmicAdvice        string   `json:"cosmic_advice"`
}

// Compatibility returns a formatted synastry report.
func (c *Client) Compatibility(ctx context.Context, req astro.CompatibilityRequest) (string, error) {
	body := compatibilityRequest{
		UserChart:    req.UserChart,
		PartnerChart: req.PartnerChart,
		Passages:     strings.Join(req.Passages, "\n\n---\n\n"),
		Names:        []string{req.UserName, req.PartnerName},
		Language:     req.Language,
	}
	var out compatibilityResponse
	if err := c.post(ctx, "/compatibility", body, &out); err != nil {
		return "", err
	}
	return out.format(req.UserName, req.PartnerName), nil
}

func (r compatibilityResponse) format(user, partner string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💞 *%s & %s*\nCompatibility score: *%d/100*\n", user, partner, r.Score)
	if len(r.Strengths) > 0 {
		b.WriteString("\n*Strengths*\n")
		for _, s := range r.Strengths {
			fmt.Fprintf(&b, "• %s\n", s)
		}
	}
	if len(r.Challenges) > 0 {
		b.WriteString("\n*Challenges*\n")
		for _, s := range r.Challenges {
			fmt.Fprintf(&b, "• %s\n", s)
		}
	}
	for _, sec := range []struct{ title, text string }{
		{"Emotional connection", r.EmotionalConnection},
		{"Communication", r.CommunicationStyle},
		{"Long-term potential", r.LongTermPotential},
		{"Cosmic advice", r.CosmicAdvice},
	} {
		if sec.text != "" {
			fmt.Fprintf(&b, "\n*%s*\n%s\n", sec.title, sec.text)
		}
	}
	return strings.TrimSpace(b.String())
}

func (c *Client) post(ctx context.Context, path string, in, out any) (err error) {
	op := strings.TrimPrefix(path, "/")
	defer func(start time.Time) {
		metrics.ObserveExternalCall("worker", op, err, start)
	}(time.Now())

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call worker %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: worker %s returned %d: %s", xerrors.ErrInternal, op, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode worker %s response: %w", op, err)
	}
	return nil
}
