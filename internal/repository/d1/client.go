package d1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "astrobot-service/internal/pkg/errors"
	"astrobot-service/internal/pkg/metrics"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

type ClientConfig struct {
	BaseURL    string
	AccountID  string
	DatabaseID string
	APIToken   string
	Timeout    time.Duration
}

// Client executes statements through the D1 HTTP query endpoint.
type Client struct {
	url   string
	token string
	http  *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:   fmt.Sprintf("%s/accounts/%s/d1/database/%s/query", strings.TrimRight(base, "/"), cfg.AccountID, cfg.DatabaseID),
		token: cfg.APIToken,
		http:  &http.Client{Timeout: timeout},
	}
}

type queryRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

type queryResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result []struct {
		Results []Row `json:"results"`
		Success bool  `json:"success"`
	} `json:"result"`
}

func (c *Client) Execute(ctx context.Context, query string, params ...any) (rows []Row, err error) {
	defer func(start time.Time) {
		metrics.ObserveExternalCall("d1", "query", err, start)
	}(time.Now())

	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(queryRequest{SQL: query, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", xerrors.ErrStoreUnavailable, err)
	}

	var out queryResponse
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: status %d: %s", xerrors.ErrStoreUnavailable, resp.StatusCode, truncate(raw))
	}
	if resp.StatusCode >= 300 || !out.Success {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("%w: status %d: %s", xerrors.ErrStoreUnavailable, resp.StatusCode, strings.Join(msgs, "; "))
	}
	if len(out.Result) == 0 {
		return nil, nil
	}
	return out.Result[0].Results, nil
}

func truncate(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
