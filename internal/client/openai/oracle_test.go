package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "gpt-4o-mini" {
			t.Errorf("model = %v", req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Mars favours action."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o := NewOracle(Config{APIKey: "k", BaseURL: srv.URL})
	got, err := o.Ask(context.Background(), "What about Mars?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Mars favours action." {
		t.Errorf("got %q", got)
	}
}

func TestAskNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	if _, err := NewOracle(Config{APIKey: "k", BaseURL: srv.URL}).Ask(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
}
