package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/ibansync/internal/common"
	"github.com/joseph-ayodele/ibansync/internal/intake"
	"github.com/joseph-ayodele/ibansync/internal/notification"
	"github.com/joseph-ayodele/ibansync/internal/reconcile"
	"github.com/joseph-ayodele/ibansync/internal/remote"
)

// RemoteStore is the transfer endpoint the run drains.
type RemoteStore interface {
	ListPending(ctx context.Context) ([]remote.RemoteFile, error)
	Fetch(ctx context.Context, f remote.RemoteFile) (string, error)
	MarkFetched(ctx context.Context, f remote.RemoteFile) error
}

// DocumentParser turns an intake file into a validated document.
type DocumentParser interface {
	Parse(path string) (*notification.Document, error)
}

// Reconciler handles every entry of a validated document.
type Reconciler interface {
	Process(ctx context.Context, doc *notification.Document) reconcile.Result
}

// ReportWriter persists the entry outcomes of a run.
type ReportWriter interface {
	Save(dir, runID string, outcomes []reconcile.Outcome) (string, error)
}

type Config struct {
	IntakeDir    string
	ProcessedDir string
	ReportDir    string // empty disables the run report
}

// Summary is what one run did.
type Summary struct {
	Downloaded    int             `json:"downloaded"`
	FetchFailed   int             `json:"fetch_failed"`
	FilesSeen     int             `json:"files_seen"`
	Rejected      int             `json:"rejected"`
	Archived      int             `json:"archived"`
	ArchiveFailed int             `json:"archive_failed"`
	Interrupted   int             `json:"interrupted"`
	Entries       reconcile.Stats `json:"entries"`
	ReportPath    string          `json:"report_path,omitempty"`
}

// HasErrors reports whether any file or entry failed during the run.
func (s Summary) HasErrors() bool {
	return s.FetchFailed > 0 || s.Rejected > 0 || s.ArchiveFailed > 0 || s.Interrupted > 0 ||
		s.Entries.Failed > 0 || s.Entries.AuditFailed > 0
}

// Orchestrator runs one pass: retrieve, enumerate, then parse, reconcile and archive each file.
type Orchestrator struct {
	cfg        Config
	store      RemoteStore
	parser     DocumentParser
	reconciler Reconciler
	reports    ReportWriter
	logger     *slog.Logger
}

func NewOrchestrator(cfg Config, store RemoteStore, parser DocumentParser, reconciler Reconciler, reports ReportWriter, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		parser:     parser,
		reconciler: reconciler,
		reports:    reports,
		logger:     logger,
	}
}

// Run executes one pass. It returns an error when the run cannot proceed at all or was
// cancelled; per-file and per-entry failures are logged and counted in the Summary.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var sum Summary

	if err := o.retrieve(ctx, &sum); err != nil {
		return sum, err
	}

	files, err := intake.List(o.cfg.IntakeDir)
	if err != nil {
		o.logger.Error("pipeline.intake.list_failed", "dir", o.cfg.IntakeDir, "error", err)
		return sum, err
	}
	sum.FilesSeen = len(files)
	o.logger.Info("pipeline.intake.listed", "dir", o.cfg.IntakeDir, "files", len(files))

	var outcomes []reconcile.Outcome
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("pipeline.cancelled", "error", err)
			return sum, err
		}
		fileOutcomes, err := o.processFile(ctx, path, &sum)
		outcomes = append(outcomes, fileOutcomes...)
		if err != nil {
			o.logger.Warn("pipeline.cancelled", "file", path, "error", err)
			return sum, err
		}
	}

	if o.reports != nil && o.cfg.ReportDir != "" {
		p, err := o.reports.Save(o.cfg.ReportDir, common.RunIDFromContext(ctx), outcomes)
		if err != nil {
			o.logger.Error("pipeline.report.failed", "dir", o.cfg.ReportDir, "error", err)
		} else {
			sum.ReportPath = p
		}
	}

	o.logger.Info("pipeline.run.done",
		"downloaded", sum.Downloaded,
		"fetch_failed", sum.FetchFailed,
		"files_seen", sum.FilesSeen,
		"rejected", sum.Rejected,
		"archived", sum.Archived,
		"archive_failed", sum.ArchiveFailed,
		"interrupted", sum.Interrupted,
		"updated", sum.Entries.Updated,
		"skipped", sum.Entries.Skipped,
		"failed", sum.Entries.Failed,
		"audit_failed", sum.Entries.AuditFailed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}

// retrieve downloads every pending remote file and acknowledges it afterwards.
// A file is only acknowledged once its download is complete.
func (o *Orchestrator) retrieve(ctx context.Context, sum *Summary) error {
	pending, err := o.store.ListPending(ctx)
	if err != nil {
		o.logger.Error("pipeline.remote.list_failed", "error", err)
		return err
	}

	for _, f := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := o.store.Fetch(ctx, f); err != nil {
			o.logger.Error("pipeline.remote.fetch_failed", "file", f.Name, "error", err, "kind", common.KindOf(err))
			sum.FetchFailed++
			continue
		}
		if err := o.store.MarkFetched(ctx, f); err != nil {
			// The local copy stays; the next run downloads the file again.
			o.logger.Error("pipeline.remote.mark_failed", "file", f.Name, "error", err, "kind", common.KindOf(err))
			sum.FetchFailed++
			continue
		}
		sum.Downloaded++
	}
	return nil
}

// processFile returns an error only when reconciliation stopped before the last entry.
// Such a file is not archived, so the next run picks it up again.
func (o *Orchestrator) processFile(ctx context.Context, path string, sum *Summary) ([]reconcile.Outcome, error) {
	fctx := common.WithFile(ctx, path)

	doc, err := o.parser.Parse(path)
	if err != nil {
		// Rejected documents stay in intake for manual inspection.
		o.logger.Error("pipeline.file.rejected", "file", path, "error", err, "kind", common.KindOf(err))
		sum.Rejected++
		return nil, nil
	}
	o.logger.Info("pipeline.file.validated", "file", path, "entries", len(doc.Entries))

	res := o.reconciler.Process(fctx, doc)
	sum.Entries.Add(res.Stats)

	if !res.Complete {
		o.logger.Error("pipeline.file.incomplete", "file", path, "entries", len(doc.Entries), "handled", len(res.Outcomes))
		sum.Interrupted++
		if err := ctx.Err(); err != nil {
			return res.Outcomes, err
		}
		return res.Outcomes, context.Canceled
	}

	if _, err := intake.Archive(path, o.cfg.ProcessedDir, o.logger); err != nil {
		o.logger.Error("pipeline.file.archive_failed", "file", path, "error", err)
		sum.ArchiveFailed++
	} else {
		sum.Archived++
	}
	return res.Outcomes, nil
}
