package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/m-okabe/papersync/internal/common"
)

func validSummaryJSON() string {
	return `{
		"title": "Attention Is All You Need",
		"authors": "Vaswani, Shazeer, Parmar",
		"journal": "NeurIPS",
		"year": 2017,
		"background": "Sequence transduction relied on recurrence.",
		"methods": "A transformer architecture based solely on attention.",
		"results": "State of the art BLEU on WMT 2014.",
		"discussion": "Attention enables more parallelism.",
		"limitations": "Quadratic memory in sequence length.",
		"conclusions": "Recurrence is unnecessary for translation.",
		"strengths": "Simple, parallel, strong empirical results."
	}`
}

func candidateResponse(text string) string {
	b, _ := json.Marshal(text)
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%s}]}}]}`, b)
}

func newTestClient(baseURL string) *Client {
	c := NewClient(Config{
		APIKey:            "test-key",
		Model:             "gemini-1.5-flash",
		BaseURL:           baseURL,
		Timeout:           2 * time.Second,
		RequestsPerMinute: 6000,
		MaxRetries:        2,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
	}, nil)
	return c
}

func TestSummarizeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(candidateResponse(validSummaryJSON())))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	summary, err := c.Summarize(context.Background(), "doc-1", "some paper text")
	require.NoError(t, err)
	require.Equal(t, "doc-1", summary.DocumentID)
	require.Equal(t, "Attention Is All You Need", summary.Title)
	require.Equal(t, 2017, summary.Year)
	require.Equal(t, "NeurIPS", summary.Journal)
}

func TestSummarizeStripsMarkdownFences(t *testing.T) {
	fenced := "```json\n" + validSummaryJSON() + "\n```"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(candidateResponse(fenced)))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	summary, err := c.Summarize(context.Background(), "doc-1", "text")
	require.NoError(t, err)
	require.Equal(t, "Attention Is All You Need", summary.Title)
}

func TestSummarizeToleratesUnknownFields(t *testing.T) {
	withExtra := `{"keywords": ["nlp"], "research_field": "ML", ` + validSummaryJSON()[1:]
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(candidateResponse(withExtra)))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	summary, err := c.Summarize(context.Background(), "doc-1", "text")
	require.NoError(t, err)
	require.Equal(t, 2017, summary.Year)
}

func TestSummarizeRetriesOnRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
			return
		}
		_, _ = w.Write([]byte(candidateResponse(validSummaryJSON())))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	summary, err := c.Summarize(context.Background(), "doc-1", "text")
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Equal(t, "Attention Is All You Need", summary.Title)
}

func TestSummarizeTransientExhaustion(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Summarize(context.Background(), "doc-1", "text")
	require.Error(t, err)
	require.True(t, common.IsTransient(err), "expected transient classification, got %v", err)
	// initial attempt + MaxRetries
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSummarizeMissingRequiredFieldIsContentError(t *testing.T) {
	var missingTitle map[string]any
	require.NoError(t, json.Unmarshal([]byte(validSummaryJSON()), &missingTitle))
	delete(missingTitle, "title")
	b, _ := json.Marshal(missingTitle)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(candidateResponse(string(b))))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Summarize(context.Background(), "doc-1", "text")
	require.Error(t, err)
	require.True(t, common.IsContentError(err), "expected content error, got %v", err)
	// Malformed responses are retried before being declared a content error.
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSummarizeAuthFailureIsConfigErrorWithoutRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Summarize(context.Background(), "doc-1", "text")
	require.Error(t, err)
	require.True(t, common.IsConfigError(err), "expected config error, got %v", err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSummarizeRejectsEmptyText(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	_, err := c.Summarize(context.Background(), "doc-1", "   ")
	require.Error(t, err)
	require.True(t, common.IsContentError(err))
}

func TestRateLimiterSpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(candidateResponse(validSummaryJSON())))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.limiter = rate.NewLimiter(rate.Every(50*time.Millisecond), 1)

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := c.Summarize(context.Background(), fmt.Sprintf("doc-%d", i), "text")
		require.NoError(t, err)
	}
	// Burst of 1 means calls 2..4 each wait out the limiter interval.
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
