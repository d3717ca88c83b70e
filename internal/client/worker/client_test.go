package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"astrobot-service/internal/domain/astro"
)

func TestAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" || r.Header.Get("Authorization") != "Bearer cf" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		var body struct {
			Messages []chatMessage `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) != 2 || body.Messages[1].Content != "Will I travel?" {
			t.Errorf("unexpected messages: %+v", body.Messages)
		}
		w.Write([]byte(`{"response":"Yes, in spring."}`))
	}))
	defer srv.Close()

	got, err := NewClient(Config{BaseURL: srv.URL, Token: "cf"}).Ask(context.Background(), "Will I travel?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Yes, in spring." {
		t.Errorf("got %q", got)
	}
}

func TestAskEmptyResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"  "}`))
	}))
	defer srv.Close()

	if _, err := NewClient(Config{BaseURL: srv.URL}).Ask(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNatalChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req natalChartRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Year != 1990 || req.Month != 8 || req.Day != 15 || req.Hour != 14 || req.Minute != 30 || req.Timezone != "Asia/Kolkata" {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Write([]byte(`{"natal_chart":{"Sun":{"sign":"Leo"}}}`))
	}))
	defer srv.Close()

	birth := astro.BirthDetails{
		Date:     time.Date(1990, 8, 15, 0, 0, 0, 0, time.UTC),
		Hour:     14,
		Minute:   30,
		Location: astro.Location{Name: "Mumbai", Lat: 19.07, Lng: 72.87, Timezone: "Asia/Kolkata"},
	}
	chart, err := NewClient(Config{BaseURL: srv.URL}).NatalChart(context.Background(), "Asha", birth)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(chart), "Leo") {
		t.Errorf("chart = %s", chart)
	}
}

func TestCompatibilityFormatsReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req compatibilityRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Names) != 2 || req.Names[1] != "Ravi" {
			t.Errorf("names = %v", req.Names)
		}
		w.Write([]byte(`{"compatibility_score":82,"strengths":["Shared values"],"cosmic_advice":"Be patient."}`))
	}))
	defer srv.Close()

	report, err := NewClient(Config{BaseURL: srv.URL}).Compatibility(context.Background(), astro.CompatibilityRequest{
		UserName:    "Asha",
		PartnerName: "Ravi",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"82/100", "Shared values", "Be patient."} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestWorkerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).CosmicGuidance(context.Background(), astro.ReadingRequest{Name: "Asha"})
	if err == nil {
		t.Fatal("expected error")
	}
}
