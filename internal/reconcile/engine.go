package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/joseph-ayodele/ibansync/constants"
	"github.com/joseph-ayodele/ibansync/internal/common"
	"github.com/joseph-ayodele/ibansync/internal/entity"
	"github.com/joseph-ayodele/ibansync/internal/notification"
	"github.com/joseph-ayodele/ibansync/internal/rpc"
)

// Outcome is the result of one entry.
type Outcome struct {
	File       string
	Entry      entity.Entry
	CustomerID int64 // zero when no customer was resolved
	Result     constants.EntryOutcome
	Err        error
}

// Stats counts outcomes by kind.
type Stats struct {
	Updated     int `json:"updated"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	AuditFailed int `json:"audit_failed"`
}

// Add folds o into s.
func (s *Stats) Add(o Stats) {
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.AuditFailed += o.AuditFailed
}

func (s *Stats) count(r constants.EntryOutcome) {
	switch r {
	case constants.OutcomeUpdated:
		s.Updated++
	case constants.OutcomeSkipped:
		s.Skipped++
	case constants.OutcomeFailed:
		s.Failed++
	case constants.OutcomeAuditFailed:
		s.AuditFailed++
	}
}

// Result is everything the engine did for one document.
type Result struct {
	Outcomes []Outcome
	Stats    Stats
	// Complete is false when processing stopped before every entry was handled.
	Complete bool
}

// Engine resolves entries to customers, submits the account change and records the audit row.
type Engine struct {
	customers CustomerFinder
	updater   Updater
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(customers CustomerFinder, updater Updater, recorder Recorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		customers: customers,
		updater:   updater,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Process handles every entry of doc in document order. A failing entry never stops its siblings;
// only a cancelled ctx ends the loop early, leaving the rest unreported and Complete false.
func (e *Engine) Process(ctx context.Context, doc *notification.Document) Result {
	var res Result
	for i, entry := range doc.Entries {
		if ctx.Err() != nil {
			e.logger.Warn("reconcile.cancelled", "file", doc.Path, "handled", i, "entries", len(doc.Entries), "error", ctx.Err())
			return res
		}
		o := e.processEntry(ctx, doc.Path, entry)
		res.Outcomes = append(res.Outcomes, o)
		res.Stats.count(o.Result)
	}
	res.Complete = true

	e.logger.Info("reconcile.document.done",
		"file", doc.Path,
		"entries", len(doc.Entries),
		"updated", res.Stats.Updated,
		"skipped", res.Stats.Skipped,
		"failed", res.Stats.Failed,
		"audit_failed", res.Stats.AuditFailed,
	)
	return res
}

func (e *Engine) processEntry(ctx context.Context, file string, entry entity.Entry) Outcome {
	out := Outcome{File: file, Entry: entry}
	log := e.logger.With("file", file, "mndtid", entry.MandateID, "endtoendid", entry.EndToEndID)

	customer, err := e.customers.FindActive(ctx, entry.MandateID, entry.OldIBAN)
	if errors.Is(err, common.ErrNotFound) {
		log.Info("reconcile.entry.no_customer", "iban_old", entry.OldIBAN)
		out.Result = constants.OutcomeSkipped
		return out
	}
	if err != nil {
		log.Error("reconcile.entry.lookup_failed", "error", err, "kind", common.KindOf(err))
		out.Result = constants.OutcomeFailed
		out.Err = err
		return out
	}
	out.CustomerID = customer.CustomerID

	req := rpc.UpdateRequest{
		CustomerID: strconv.FormatInt(customer.CustomerID, 10),
		IBAN:       entry.NewIBAN,
		BIC:        entry.NewBIC,
		OwnerName:  customer.OwnerName,
	}
	if _, err := e.updater.Submit(ctx, req); err != nil {
		log.Error("reconcile.entry.update_failed", "customer_id", customer.CustomerID, "error", err, "kind", common.KindOf(err))
		out.Result = constants.OutcomeFailed
		out.Err = err
		return out
	}

	// The update is already applied remotely; a failed audit write is reported, not undone.
	msg := fmt.Sprintf(constants.HistoryMessageFormat, e.now().Format(constants.HistoryDateLayout), constants.HistoryActor)
	if _, err := e.recorder.Record(ctx, customer.CustomerID, constants.HistoryActor, string(constants.HistoryCategoryFinance), msg); err != nil {
		log.Error("reconcile.entry.audit_failed", "customer_id", customer.CustomerID, "error", err, "kind", common.KindOf(err))
		out.Result = constants.OutcomeAuditFailed
		out.Err = err
		return out
	}

	log.Info("reconcile.entry.updated", "customer_id", customer.CustomerID, "iban_new", entry.NewIBAN)
	out.Result = constants.OutcomeUpdated
	return out
}
