package chroma

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "astrobot-service/internal/pkg/errors"
)

func TestRetrievePassages(t *testing.T) {
	lookups := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/collections/vedic":
			lookups++
			w.Write([]byte(`{"id":"c-1","name":"vedic"}`))
		case "/api/v1/collections/c-1/query":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["n_results"].(float64) != 2 {
				t.Errorf("n_results = %v", body["n_results"])
			}
			w.Write([]byte(`{"documents":[["Sun in Leo shines.","Moon in Cancer nurtures."]]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Collection: "vedic"})
	for i := 0; i < 2; i++ {
		got, err := c.RetrievePassages(context.Background(), "leo", 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0] != "Sun in Leo shines." {
			t.Errorf("got %v", got)
		}
	}
	if lookups != 1 {
		t.Errorf("collection looked up %d times, want 1", lookups)
	}
}

func TestRetrievePassagesUnknownCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL, Collection: "missing"}).RetrievePassages(context.Background(), "q", 3)
	if !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClip(t *testing.T) {
	long := strings.Repeat("a", 1500)
	got := clip([]string{long, "", long}, MaxPassageChars)
	if len(got) != 2 {
		t.Fatalf("got %d passages, want 2", len(got))
	}
	if len(got[1]) != 500+len("...") {
		t.Errorf("second passage length = %d", len(got[1]))
	}
}
