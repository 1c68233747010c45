package pipeline

import (
	"context"

	"github.com/m-okabe/papersync/internal/drive"
	"github.com/m-okabe/papersync/internal/extract"
	"github.com/m-okabe/papersync/internal/gemini"
)

// Lister queries the watched folder for candidate documents.
type Lister interface {
	List(ctx context.Context) ([]drive.DocumentRef, error)
}

// Extractor fetches a document and derives plain text.
type Extractor interface {
	Extract(ctx context.Context, ref drive.DocumentRef) (extract.Content, error)
}

// Summarizer turns extracted text into a structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, documentID, text string) (gemini.PaperSummary, error)
}

// RecordWriter persists a summary in the external database, idempotently.
type RecordWriter interface {
	Upsert(ctx context.Context, s gemini.PaperSummary) (pageID string, existed bool, err error)
}

// Ledger is the durable set of already-processed document ids.
type Ledger interface {
	Contains(fileID string) bool
	Mark(ctx context.Context, fileID, fileName, notionPageID string) error
	MarkFailed(ctx context.Context, fileID, fileName, errMsg string) error
}

// Outcome is the per-document result of one cycle.
type Outcome int

const (
	// OutcomeDone: summary written and ledger marked.
	OutcomeDone Outcome = iota
	// OutcomeSkipped: no text could be extracted; retried next cycle.
	OutcomeSkipped
	// OutcomeFailed: summarization or write failed; retried next cycle.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CycleStats summarizes one pass over the folder.
type CycleStats struct {
	Listed    uint32 // documents returned by the lister
	Filtered  uint32 // already in the ledger, not processed
	Processed uint32
	Skipped   uint32
	Failed    uint32
}
