// Package pipeline drives one full cycle over the watched folder:
// list → filter-by-ledger → per document: extract → summarize → write → mark.
// Documents are processed sequentially; each document's failure is an explicit
// outcome consumed here, never an abort of the whole cycle. Only a
// configuration error stops the pipeline.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-okabe/papersync/internal/common"
	"github.com/m-okabe/papersync/internal/drive"
)

type Orchestrator struct {
	lister     Lister
	extractor  Extractor
	summarizer Summarizer
	writer     RecordWriter
	ledger     Ledger
	logger     *slog.Logger
}

func NewOrchestrator(
	lister Lister,
	extractor Extractor,
	summarizer Summarizer,
	writer RecordWriter,
	ledger Ledger,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		lister:     lister,
		extractor:  extractor,
		summarizer: summarizer,
		writer:     writer,
		ledger:     ledger,
		logger:     logger,
	}
}

// RunOnce executes a single cycle and returns its stats. The returned error
// is non-nil only for failures that invalidate the whole cycle (listing
// failure) or must stop the pipeline (configuration error); per-document
// failures are reflected in the stats.
func (o *Orchestrator) RunOnce(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	start := time.Now()
	o.logger.Info("pipeline.cycle.start")

	refs, err := o.lister.List(ctx)
	if err != nil {
		o.logger.Error("pipeline.list.failed", "error", err)
		return stats, err
	}
	stats.Listed = uint32(len(refs))

	var fresh []drive.DocumentRef
	for _, ref := range refs {
		if o.ledger.Contains(ref.ID) {
			stats.Filtered++
			continue
		}
		fresh = append(fresh, ref)
	}

	if len(fresh) == 0 {
		o.logger.Info("pipeline.cycle.done",
			"listed", stats.Listed, "filtered", stats.Filtered,
			"processed", 0, "skipped", 0, "failed", 0,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return stats, nil
	}
	o.logger.Info("pipeline.cycle.found_new", "count", len(fresh))

	for _, ref := range fresh {
		outcome, err := o.processDocument(ctx, ref)
		if err != nil {
			if common.IsConfigError(err) {
				// Setup problem: surface it and stop, the remaining
				// documents would all hit the same wall.
				return stats, err
			}
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
		}
		switch outcome {
		case OutcomeDone:
			stats.Processed++
		case OutcomeSkipped:
			stats.Skipped++
		case OutcomeFailed:
			stats.Failed++
		}
	}

	o.logger.Info("pipeline.cycle.done",
		"listed", stats.Listed, "filtered", stats.Filtered,
		"processed", stats.Processed, "skipped", stats.Skipped, "failed", stats.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// processDocument moves one document through extract → summarize → write →
// mark. The ledger mark happens strictly after the external write succeeds;
// a crash in between causes a re-attempt next cycle, which the writer's
// correlation-key guard turns into a no-op.
func (o *Orchestrator) processDocument(ctx context.Context, ref drive.DocumentRef) (Outcome, error) {
	log := o.logger.With("file_id", ref.ID, "file_name", ref.Name)
	log.Info("pipeline.document.start")

	content, err := o.extractor.Extract(ctx, ref)
	if err != nil {
		log.Error("pipeline.extract.failed", "error", err)
		o.recordFailure(ctx, ref, err)
		return OutcomeFailed, err
	}
	if content.ExtractionFailed {
		// No text layer. Do not mark processed: the document stays eligible
		// for a retry once a better extractor or corrected file shows up.
		log.Warn("pipeline.extract.no_text", "pages", content.PageCount)
		o.recordFailure(ctx, ref, common.NewContentError("no text extracted", nil))
		return OutcomeSkipped, nil
	}

	summary, err := o.summarizer.Summarize(ctx, ref.ID, content.Text)
	if err != nil {
		log.Error("pipeline.summarize.failed", "error", err)
		o.recordFailure(ctx, ref, err)
		return OutcomeFailed, err
	}

	pageID, existed, err := o.writer.Upsert(ctx, summary)
	if err != nil {
		log.Error("pipeline.write.failed", "error", err)
		o.recordFailure(ctx, ref, err)
		return OutcomeFailed, err
	}
	if existed {
		log.Warn("pipeline.write.already_present", "page_id", pageID)
	}

	if err := o.ledger.Mark(ctx, ref.ID, ref.Name, pageID); err != nil {
		// The record exists externally; the correlation guard will absorb
		// the re-attempt next cycle.
		log.Error("pipeline.mark.failed", "page_id", pageID, "error", err)
		return OutcomeFailed, err
	}

	log.Info("pipeline.document.done", "page_id", pageID, "title", summary.Title)
	return OutcomeDone, nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, ref drive.DocumentRef, cause error) {
	if common.IsConfigError(cause) || ctx.Err() != nil {
		return
	}
	if err := o.ledger.MarkFailed(ctx, ref.ID, ref.Name, cause.Error()); err != nil {
		o.logger.Error("pipeline.mark_failed.error", "file_id", ref.ID, "error", err)
	}
}

// Run executes cycles continuously until ctx is cancelled. Cancellation is
// cooperative: it is checked at the top of each cycle and during the sleep,
// never by interrupting a document mid-write.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	o.logger.Info("pipeline.continuous.start", "interval", interval.String())
	for {
		if err := ctx.Err(); err != nil {
			o.logger.Info("pipeline.continuous.stopped")
			return nil
		}

		if _, err := o.RunOnce(ctx); err != nil {
			if common.IsConfigError(err) {
				return err
			}
			if ctx.Err() != nil {
				o.logger.Info("pipeline.continuous.stopped")
				return nil
			}
			// Transient cycle failure (e.g. listing): wait out the
			// interval and try again.
			o.logger.Error("pipeline.cycle.failed", "error", err)
		}

		select {
		case <-ctx.Done():
			o.logger.Info("pipeline.continuous.stopped")
			return nil
		case <-time.After(interval):
		}
	}
}
