// Package notion upserts paper records into a Notion database. Before every
// create it queries for an existing page with the same Drive file id, which
// keeps writes idempotent even when the local ledger lost a mark to a crash.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/m-okabe/papersync/internal/common"
	"github.com/m-okabe/papersync/internal/gemini"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"
)

type Config struct {
	APIKey            string
	DatabaseID        string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond int
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 3
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:        logger,
	}
}

// Upsert writes the summary into the database. If a page for the same Drive
// file id already exists the write is skipped and the existing page id is
// returned; existed reports which path was taken.
func (c *Client) Upsert(ctx context.Context, s gemini.PaperSummary) (pageID string, existed bool, err error) {
	rid := uuid.New().String()

	existingID, err := c.findByDriveID(ctx, rid, s.DocumentID)
	if err != nil {
		return "", false, err
	}
	if existingID != "" {
		c.log.Warn("notion.upsert.duplicate",
			"req_id", rid, "document_id", s.DocumentID, "page_id", existingID)
		return existingID, true, nil
	}

	body := map[string]any{
		"parent":     map[string]any{"database_id": c.cfg.DatabaseID},
		"properties": buildProperties(s, time.Now().UTC()),
		"children":   buildChildren(s),
	}
	raw, err := c.do(ctx, rid, http.MethodPost, "/pages", body)
	if err != nil {
		return "", false, err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", false, common.NewContentError("decode notion create response", err)
	}
	c.log.Info("notion.upsert.created",
		"req_id", rid, "document_id", s.DocumentID, "page_id", created.ID, "title", s.Title)
	return created.ID, false, nil
}

// findByDriveID queries the database for a page whose correlation property
// equals documentID. Returns "" when none exists.
func (c *Client) findByDriveID(ctx context.Context, rid, documentID string) (string, error) {
	body := map[string]any{
		"filter": map[string]any{
			"property": driveIDProperty,
			"rich_text": map[string]any{
				"equals": documentID,
			},
		},
		"page_size": 1,
	}
	raw, err := c.do(ctx, rid, http.MethodPost, "/databases/"+c.cfg.DatabaseID+"/query", body)
	if err != nil {
		return "", err
	}

	var res struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", common.NewContentError("decode notion query response", err)
	}
	if len(res.Results) == 0 {
		return "", nil
	}
	return res.Results[0].ID, nil
}

// CheckSchema retrieves the database and verifies every property the writer
// populates exists with the expected type. A mismatch is a setup problem and
// must stop the pipeline before any document is processed.
func (c *Client) CheckSchema(ctx context.Context) error {
	rid := uuid.New().String()
	raw, err := c.do(ctx, rid, http.MethodGet, "/databases/"+c.cfg.DatabaseID, nil)
	if err != nil {
		return err
	}

	var db struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &db); err != nil {
		return common.NewConfigError("decode notion database response", err)
	}

	var missing []string
	for name, wantType := range requiredProperties {
		prop, ok := db.Properties[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if prop.Type != wantType {
			return common.NewConfigError(fmt.Sprintf(
				"notion property %q has type %q, want %q", name, prop.Type, wantType), nil)
		}
	}
	if len(missing) > 0 {
		return common.NewConfigError(
			"notion database is missing properties: "+strings.Join(missing, ", "), nil)
	}
	c.log.Info("notion.schema.ok", "database_id", c.cfg.DatabaseID, "properties", len(requiredProperties))
	return nil
}

// do performs one API call with rate limiting and bounded retries for
// transient failures.
func (c *Client) do(ctx context.Context, rid, method, path string, body map[string]any) ([]byte, error) {
	var lastErr error
	backoff := c.cfg.InitialBackoff
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		raw, err := c.once(ctx, method, path, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if !common.IsTransient(err) || attempt == c.cfg.MaxRetries {
			break
		}
		c.log.Warn("notion.request.retry",
			"req_id", rid, "path", path, "attempt", attempt+1, "backoff", backoff.String(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, path string, body map[string]any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Notion-Version", notionVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.NewTransient("notion http error", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("notion response body close error", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.NewTransient("read notion response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		// Wrong credentials, wrong database id, or a property mismatch the
		// schema check did not cover. Retrying will not help.
		return nil, common.NewConfigError(
			fmt.Sprintf("notion status %d: %s", resp.StatusCode, raw), nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, common.NewTransient(
			fmt.Sprintf("notion status %d: %s", resp.StatusCode, raw), nil)
	default:
		return nil, common.NewContentError(
			fmt.Sprintf("notion status %d: %s", resp.StatusCode, raw), nil)
	}
}
