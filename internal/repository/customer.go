package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/ibansync/constants"
	"github.com/joseph-ayodele/ibansync/internal/common"
	"github.com/joseph-ayodele/ibansync/internal/entity"
)

const customerTable = "customer"

type CustomerRepository interface {
	// FindActive returns the newest active customer holding mandateRef on iban,
	// or common.ErrNotFound.
	FindActive(ctx context.Context, mandateRef, iban string) (*entity.Customer, error)
	CountActive(ctx context.Context) (int, error)
}

type customerRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewCustomerRepository(db *DB, logger *slog.Logger) CustomerRepository {
	return &customerRepository{
		db:     db,
		logger: logger,
	}
}

func (r *customerRepository) FindActive(ctx context.Context, mandateRef, iban string) (*entity.Customer, error) {
	sel := r.db.builder().Select().From(r.db.table(customerTable))
	sel.Select(
		sel.C("id"),
		sel.C("customer_id"),
		sel.C("owner_name"),
		sel.C("iban"),
		sel.C("mandate_reference"),
	).
		Where(entsql.And(
			entsql.EQ(sel.C("mandate_reference"), mandateRef),
			entsql.EQ(sel.C("iban"), iban),
			entsql.EQ(sel.C("status"), string(constants.CustomerStatusActive)),
			entsql.IsNull(sel.C("ended_at")),
		)).
		OrderBy(entsql.Desc(sel.C("id"))).
		Limit(1)
	query, args := sel.Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to query customer", "mandate_ref", mandateRef, "error", err)
		return nil, common.NewPersistenceError("query customer", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, common.NewPersistenceError("query customer", err)
		}
		return nil, common.ErrNotFound
	}

	var (
		c     entity.Customer
		owner sql.NullString
	)
	if err := rows.Scan(&c.ID, &c.CustomerID, &owner, &c.IBAN, &c.MandateReference); err != nil {
		r.logger.Error("failed to scan customer", "mandate_ref", mandateRef, "error", err)
		return nil, common.NewPersistenceError("scan customer", err)
	}
	c.OwnerName = owner.String
	return &c, nil
}

func (r *customerRepository) CountActive(ctx context.Context) (int, error) {
	sel := r.db.builder().Select().From(r.db.table(customerTable))
	sel.Select(entsql.Count("*")).
		Where(entsql.And(
			entsql.EQ(sel.C("status"), string(constants.CustomerStatusActive)),
			entsql.IsNull(sel.C("ended_at")),
		))
	query, args := sel.Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to count customers", "error", err)
		return 0, common.NewPersistenceError("count customers", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, common.NewPersistenceError("count customers", errors.Join(sql.ErrNoRows, rows.Err()))
	}
	var n int
	if err := rows.Scan(&n); err != nil {
		return 0, common.NewPersistenceError("count customers", err)
	}
	return n, nil
}
