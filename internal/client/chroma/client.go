// Package chroma retrieves reference passages from a Chroma collection over its HTTP API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	xerrors "astrobot-service/internal/pkg/errors"
	"astrobot-service/internal/pkg/metrics"
)

// MaxPassageChars caps the combined passage text handed to prompts.
const MaxPassageChars = 2000

type Config struct {
	BaseURL    string
	Collection string
	APIKey     string
	Timeout    time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client

	mu           sync.Mutex
	collectionID string
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// RetrievePassages runs a similarity query and returns up to limit documents,
// trimmed so their combined length stays within MaxPassageChars.
func (c *Client) RetrievePassages(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 6
	}
	id, err := c.resolveCollection(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query_texts": []string{query},
		"n_results":   limit,
		"include":     []string{"documents"},
	}
	var out struct {
		Documents [][]string `json:"documents"`
	}
	path := "/api/v1/collections/" + url.PathEscape(id) + "/query"
	if err := c.do(ctx, "query", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if len(out.Documents) == 0 {
		return nil, nil
	}
	return clip(out.Documents[0], MaxPassageChars), nil
}

func (c *Client) resolveCollection(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "get_collection", http.MethodGet, "/api/v1/collections/"+url.PathEscape(c.cfg.Collection), nil, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("collection %q: %w", c.cfg.Collection, xerrors.ErrNotFound)
	}
	c.collectionID = out.ID
	return out.ID, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	defer func(start time.Time) {
		metrics.ObserveExternalCall("chroma", op, err, start)
	}(time.Now())

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Chroma-Token", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call chroma %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("chroma %s: %w", op, xerrors.ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chroma %s returned %d", op, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func clip(docs []string, max int) []string {
	out := make([]string, 0, len(docs))
	total := 0
	for _, d := range docs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if total+len(d) > max {
			if rest := max - total; rest > 0 {
				out = append(out, d[:rest]+"...")
			}
			break
		}
		out = append(out, d)
		total += len(d)
	}
	return out
}
