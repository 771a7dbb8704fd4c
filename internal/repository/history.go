package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/ibansync/internal/common"
	"github.com/joseph-ayodele/ibansync/internal/entity"
)

const historyTable = "history"

type HistoryRepository interface {
	// Record inserts one history row and commits it.
	Record(ctx context.Context, customerID int64, actor, category, message string) (*entity.HistoryRecord, error)
}

type historyRepository struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

func NewHistoryRepository(db *DB, logger *slog.Logger) HistoryRepository {
	return &historyRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (r *historyRepository) Record(ctx context.Context, customerID int64, actor, category, message string) (*entity.HistoryRecord, error) {
	rec := &entity.HistoryRecord{
		CustomerID: customerID,
		CreatedAt:  r.now(),
		CreatedBy:  actor,
		Type:       category,
		Message:    message,
	}

	ins := r.db.builder().Insert(historyTable)
	if r.db.Schema != "" {
		ins.Schema(r.db.Schema)
	}
	query, args := ins.
		Columns("customer_id", "created_at", "created_by", "type", "message").
		Values(rec.CustomerID, rec.CreatedAt, rec.CreatedBy, rec.Type, rec.Message).
		Query()

	tx, err := r.db.Driver.Tx(ctx)
	if err != nil {
		r.logger.Error("failed to begin history transaction", "customer_id", customerID, "error", err)
		return nil, common.NewPersistenceError("begin history transaction", err)
	}
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Warn("failed to roll back history transaction", "customer_id", customerID, "error", rbErr)
		}
		r.logger.Error("failed to insert history", "customer_id", customerID, "error", err)
		return nil, common.NewPersistenceError("insert history", err)
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("failed to commit history", "customer_id", customerID, "error", err)
		return nil, common.NewPersistenceError("commit history", err)
	}
	return rec, nil
}
