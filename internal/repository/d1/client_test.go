package d1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "astrobot-service/internal/pkg/errors"
)

func TestClientExecute(t *testing.T) {
	var gotReq queryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct/d1/database/db1/query" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"success":true,"errors":[],"result":[{"success":true,"results":[{"user_id":"u1","used":3}]}]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, AccountID: "acct", DatabaseID: "db1", APIToken: "tok"})
	rows, err := c.Execute(context.Background(), "SELECT used FROM wa_usage_periods WHERE user_id = ?", "u1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if gotReq.SQL == "" || len(gotReq.Params) != 1 || gotReq.Params[0] != "u1" {
		t.Errorf("unexpected request body: %+v", gotReq)
	}
	if len(rows) != 1 || rows[0].Int("used") != 3 || rows[0].String("user_id") != "u1" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestClientExecuteFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api error", http.StatusOK, `{"success":false,"errors":[{"code":7500,"message":"no such table"}],"result":[]}`},
		{"server error", http.StatusInternalServerError, `upstream exploded`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{BaseURL: srv.URL, AccountID: "a", DatabaseID: "d"})
			if _, err := c.Execute(context.Background(), "SELECT 1"); !errors.Is(err, xerrors.ErrStoreUnavailable) {
				t.Errorf("expected ErrStoreUnavailable, got %v", err)
			}
		})
	}
}
