// Package drive lists and downloads PDF documents from the watched Google
// Drive folder. It is a read-only boundary: no retry policy lives here, the
// orchestrator decides what to do with transient failures.
package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/m-okabe/papersync/internal/common"
)

const pdfMimeType = "application/pdf"

// DocumentRef identifies one candidate document in the watched folder.
// Identity is ID; Name and ModifiedTime are descriptive only.
type DocumentRef struct {
	ID           string
	Name         string
	MimeType     string
	ModifiedTime time.Time
}

// Client wraps the Drive API for a single watched folder.
type Client struct {
	svc          *drive.Service
	folderID     string
	downloadsDir string
	logger       *slog.Logger
}

func NewClient(ctx context.Context, credentialsPath, folderID, downloadsDir string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if folderID == "" {
		return nil, common.NewConfigError("drive folder id is required", nil)
	}
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, common.NewConfigError("create drive service", err)
	}
	return &Client{
		svc:          svc,
		folderID:     folderID,
		downloadsDir: downloadsDir,
		logger:       logger,
	}, nil
}

// List returns every non-trashed PDF in the watched folder. The call is
// side-effect-free; failures are reported as transient for the caller to
// retry on the next cycle.
func (c *Client) List(ctx context.Context) ([]DocumentRef, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed=false", c.folderID, pdfMimeType)

	var refs []DocumentRef
	pageToken := ""
	for {
		call := c.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, modifiedTime)").
			OrderBy("createdTime desc").
			PageSize(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, common.NewTransient("list drive folder", err)
		}
		for _, f := range res.Files {
			mod, _ := time.Parse(time.RFC3339, f.ModifiedTime)
			refs = append(refs, DocumentRef{
				ID:           f.Id,
				Name:         f.Name,
				MimeType:     f.MimeType,
				ModifiedTime: mod,
			})
		}
		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	c.logger.Debug("drive.list.ok", "folder_id", c.folderID, "count", len(refs))
	return refs, nil
}

// Download fetches the document bytes into the downloads directory and
// returns the local path.
func (c *Client) Download(ctx context.Context, ref DocumentRef) (string, error) {
	if err := os.MkdirAll(c.downloadsDir, 0o755); err != nil {
		return "", fmt.Errorf("create downloads dir: %w", err)
	}

	dest := filepath.Join(c.downloadsDir, sanitizeFilename(ref.Name))
	resp, err := c.svc.Files.Get(ref.ID).Context(ctx).Download()
	if err != nil {
		return "", common.NewTransient("download "+ref.ID, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("drive.download.close_body", "error", err)
		}
	}()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", common.NewTransient("write "+dest, err)
	}

	c.logger.Info("drive.download.ok", "file_id", ref.ID, "path", dest, "bytes", n)
	return dest, nil
}

// sanitizeFilename keeps alphanumerics and a small set of safe punctuation,
// mirroring how downloads were named before.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if s == "" {
		s = "document.pdf"
	}
	return s
}
