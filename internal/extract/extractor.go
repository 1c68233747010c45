// Package extract turns a downloaded PDF into plain text for summarization.
// An image-only scan with no text layer is an expected outcome, reported via
// Content.ExtractionFailed rather than an error, so the orchestrator can skip
// the document without marking it processed.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/m-okabe/papersync/internal/drive"
)

// Content is the extraction result for one document. It lives only for the
// duration of that document's processing.
type Content struct {
	DocumentID       string
	Text             string
	PageCount        int
	ExtractionFailed bool
}

// Downloader fetches a document's bytes to a local file.
type Downloader interface {
	Download(ctx context.Context, ref drive.DocumentRef) (string, error)
}

type Config struct {
	Pdftotext  string // binary name or absolute path; if empty -> "pdftotext"
	MaxPages   int    // pages to read from the front of the document; 0 = no limit
	MaxChars   int    // cap on text handed to the summarizer, default 10000
	MinTextLen int    // below this the text layer is considered absent, default 100
}

type Extractor struct {
	cfg        Config
	downloader Downloader
	runner     Runner
	pageCount  func(path string) (int, error)
	logger     *slog.Logger
}

func NewExtractor(cfg Config, downloader Downloader, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 10000
	}
	if cfg.MinTextLen <= 0 {
		cfg.MinTextLen = 100
	}
	return &Extractor{
		cfg:        cfg,
		downloader: downloader,
		runner:     execRunner{},
		pageCount:  api.PageCountFile,
		logger:     logger,
	}
}

// Extract downloads the document and derives plain text. Download errors are
// returned as-is (they carry transient classification); a document whose text
// layer cannot be read yields ExtractionFailed = true and no error.
func (e *Extractor) Extract(ctx context.Context, ref drive.DocumentRef) (Content, error) {
	out := Content{DocumentID: ref.ID}

	path, err := e.downloader.Download(ctx, ref)
	if err != nil {
		return out, err
	}

	pages, err := e.pageCount(path)
	if err != nil {
		// Unreadable as a PDF at all: expected, non-fatal.
		e.logger.Warn("extract.page_count_failed", "file_id", ref.ID, "path", path, "error", err)
		out.ExtractionFailed = true
		return out, nil
	}
	out.PageCount = pages

	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		args = append(args, "-f", "1", "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, path, "-")

	stdout, stderr, err := e.runner.Run(ctx, e.cfg.Pdftotext, args...)
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("pdftotext: %w", ctx.Err())
		}
		e.logger.Warn("extract.pdftotext_failed", "file_id", ref.ID, "stderr", string(stderr))
		out.ExtractionFailed = true
		return out, nil
	}

	text := strings.TrimSpace(string(stdout))
	if len(text) < e.cfg.MinTextLen {
		e.logger.Warn("extract.text_too_short", "file_id", ref.ID, "chars", len(text))
		out.ExtractionFailed = true
		return out, nil
	}
	if len(text) > e.cfg.MaxChars {
		text = text[:e.cfg.MaxChars]
	}
	out.Text = text

	e.logger.Info("extract.ok", "file_id", ref.ID, "pages", pages, "chars", len(text))
	return out, nil
}
