package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m-okabe/papersync/internal/common"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	require.NoError(t, l.Load(context.Background()))
	return l
}

func TestEmptyStoreMeansNothingProcessed(t *testing.T) {
	l := openTestLedger(t)
	require.False(t, l.Contains("doc-1"))

	stats, err := l.Stats(context.Background())
	require.NoError(t, err)
	require.Empty(t, stats)
}

func TestMarkIsDurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, l.Load(ctx))
	require.NoError(t, l.Mark(ctx, "doc-1", "paper.pdf", "page-1"))
	require.NoError(t, l.Close())

	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Load(ctx))
	require.True(t, reopened.Contains("doc-1"))
}

func TestMarkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	require.NoError(t, l.Mark(ctx, "doc-1", "paper.pdf", "page-1"))
	require.NoError(t, l.Mark(ctx, "doc-1", "paper.pdf", "page-1"))

	entries, err := l.History(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "doc-1", entries[0].FileID)
	require.Equal(t, StatusCompleted, entries[0].Status)
}

func TestMarkFailedKeepsDocumentEligible(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	require.NoError(t, l.MarkFailed(ctx, "doc-1", "paper.pdf", "no text extracted"))
	require.False(t, l.Contains("doc-1"))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats[StatusFailed])

	// A later success overwrites the failure.
	require.NoError(t, l.Mark(ctx, "doc-1", "paper.pdf", "page-1"))
	require.True(t, l.Contains("doc-1"))

	entries, err := l.History(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, StatusCompleted, entries[0].Status)
	require.Empty(t, entries[0].ErrorMessage)
}

func TestMarkFailedNeverDowngradesCompleted(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	require.NoError(t, l.Mark(ctx, "doc-1", "paper.pdf", "page-1"))
	require.NoError(t, l.MarkFailed(ctx, "doc-1", "paper.pdf", "late failure"))

	require.True(t, l.Contains("doc-1"))
	entries, err := l.History(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, StatusCompleted, entries[0].Status)
}

func TestCorruptedStoreRefusesToOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database at all"), 0o644))

	_, err := Open(context.Background(), path, nil)
	require.Error(t, err)
	require.True(t, common.IsConfigError(err), "corruption must be a configuration error, got %v", err)
}

func TestMigrateFromTextFile(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	legacy := filepath.Join(t.TempDir(), "processed_files.txt")
	require.NoError(t, os.WriteFile(legacy, []byte("doc-a\ndoc-b\n\ndoc-c\n"), 0o644))

	n, err := l.MigrateFromTextFile(ctx, legacy)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, l.Contains("doc-a"))
	require.True(t, l.Contains("doc-b"))
	require.True(t, l.Contains("doc-c"))
}

func TestMigrateFromMissingFileIsNoop(t *testing.T) {
	l := openTestLedger(t)
	n, err := l.MigrateFromTextFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	require.Zero(t, n)
}
