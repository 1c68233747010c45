// Package gemini sends extracted paper text to the Gemini API and parses the
// structured summary out of the response. Calls are spaced by a rolling
// rate limiter and retried with exponential backoff; a response that is still
// malformed after retries is a content error, not a crash.
package gemini

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
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	Temperature       float32
	Timeout           time.Duration
	RequestsPerMinute int
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	schema     map[string]any
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 15
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
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
		schema:     BuildSummaryJSONSchema(),
		log:        logger,
	}
}

// Summarize sends text to the model and returns the parsed summary.
// Transient failures (quota, 5xx, network) are retried with backoff and
// reported as TRANSIENT after exhaustion; a persistently malformed response
// is reported as CONTENT_ERROR.
func (c *Client) Summarize(ctx context.Context, documentID, text string) (PaperSummary, error) {
	if strings.TrimSpace(text) == "" {
		return PaperSummary{}, common.NewContentError("empty text for "+documentID, nil)
	}

	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("gemini.summarize.start",
		"req_id", rid,
		"document_id", documentID,
		"model", c.cfg.Model,
		"text_len", len(text),
	)

	var lastErr error
	backoff := c.cfg.InitialBackoff
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		summary, err := c.attempt(ctx, rid, text)
		if err == nil {
			summary.DocumentID = documentID
			c.log.Info("gemini.summarize.ok",
				"req_id", rid,
				"document_id", documentID,
				"title", summary.Title,
				"year", summary.Year,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return summary, nil
		}
		lastErr = err

		if common.IsConfigError(err) || attempt == c.cfg.MaxRetries {
			break
		}
		c.log.Warn("gemini.summarize.retry",
			"req_id", rid, "attempt", attempt+1, "backoff", backoff.String(), "error", err,
		)
		select {
		case <-ctx.Done():
			return PaperSummary{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}

	c.log.Error("gemini.summarize.exhausted",
		"req_id", rid,
		"document_id", documentID,
		"error", lastErr,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return PaperSummary{}, lastErr
}

func (c *Client) attempt(ctx context.Context, rid, text string) (PaperSummary, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return PaperSummary{}, err
	}

	body := map[string]any{
		"systemInstruction": map[string]any{
			"parts": []map[string]any{{"text": SystemPrompt}},
		},
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": fmt.Sprintf(UserPromptTemplate, text)}}},
		},
		"generationConfig": map[string]any{
			"temperature":      c.cfg.Temperature,
			"responseMimeType": "application/json",
		},
	}

	raw, err := c.post(ctx, body)
	if err != nil {
		return PaperSummary{}, err
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return PaperSummary{}, common.NewContentError("decode gemini response", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return PaperSummary{}, common.NewContentError("no candidates in gemini response", nil)
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	content := []byte(stripFences(sb.String()))

	if err := ValidateJSONAgainstSchema(c.schema, content); err != nil {
		c.log.Warn("gemini.summarize.schema_validation_failed", "req_id", rid, "error", err)
		return PaperSummary{}, common.NewContentError("summary schema validation failed", err)
	}

	var out PaperSummary
	if err := json.Unmarshal(content, &out); err != nil {
		return PaperSummary{}, common.NewContentError("unmarshal summary", err)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.NewTransient("gemini http error", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("gemini response body close error", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.NewTransient("read gemini response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, common.NewConfigError(
			fmt.Sprintf("gemini auth rejected (status %d): %s", resp.StatusCode, raw), nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, common.NewTransient(
			fmt.Sprintf("gemini status %d: %s", resp.StatusCode, raw), nil)
	default:
		return nil, common.NewContentError(
			fmt.Sprintf("gemini status %d: %s", resp.StatusCode, raw), nil)
	}
}
