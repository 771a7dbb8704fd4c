package repository

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ibansync/internal/common"
)

const testSchema = `
CREATE TABLE customer (
	id INTEGER PRIMARY KEY,
	customer_id INTEGER NOT NULL,
	owner_name TEXT,
	iban TEXT,
	mandate_reference TEXT,
	status TEXT,
	ended_at TIMESTAMP
);
CREATE TABLE history (
	customer_id INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	created_by TEXT NOT NULL,
	type TEXT NOT NULL,
	message TEXT NOT NULL
);`

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Driver: "sqlite", DSN: ":memory:"}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(slog.Default()) })

	_, err = db.Driver.DB().Exec(testSchema)
	require.NoError(t, err)
	return db
}

func insertCustomer(t *testing.T, db *DB, id, customerID int64, owner, iban, mandate, status string, endedAt *time.Time) {
	t.Helper()
	_, err := db.Driver.DB().Exec(
		`INSERT INTO customer (id, customer_id, owner_name, iban, mandate_reference, status, ended_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, customerID, owner, iban, mandate, status, endedAt,
	)
	require.NoError(t, err)
}

func TestCustomerRepository_FindActive(t *testing.T) {
	db := openTestDB(t)
	ended := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	insertCustomer(t, db, 1, 100, "J. Jansen", "NL01", "M1", "ACTIVE", nil)
	insertCustomer(t, db, 2, 200, "P. de Vries", "NL01", "M1", "ACTIVE", nil)
	insertCustomer(t, db, 3, 300, "Ended", "NL01", "M1", "ACTIVE", &ended)
	insertCustomer(t, db, 4, 400, "Inactive", "NL01", "M1", "CANCELLED", nil)
	insertCustomer(t, db, 5, 500, "Other IBAN", "NL02", "M2", "ACTIVE", nil)

	repo := NewCustomerRepository(db, slog.Default())
	ctx := context.Background()

	t.Run("highest id wins among active matches", func(t *testing.T) {
		c, err := repo.FindActive(ctx, "M1", "NL01")
		require.NoError(t, err)
		assert.Equal(t, int64(2), c.ID)
		assert.Equal(t, int64(200), c.CustomerID)
		assert.Equal(t, "P. de Vries", c.OwnerName)
	})

	t.Run("iban must match", func(t *testing.T) {
		_, err := repo.FindActive(ctx, "M2", "NL01")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("unknown mandate", func(t *testing.T) {
		_, err := repo.FindActive(ctx, "M9", "NL01")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("input is bound, not interpolated", func(t *testing.T) {
		_, err := repo.FindActive(ctx, "M1' OR '1'='1", "NL01")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("count active", func(t *testing.T) {
		n, err := repo.CountActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestCustomerRepository_FindActive_QueryError(t *testing.T) {
	db, err := Open(context.Background(), Config{Driver: "sqlite", DSN: ":memory:"}, slog.Default())
	require.NoError(t, err)
	defer db.Close(slog.Default())

	_, err = NewCustomerRepository(db, slog.Default()).FindActive(context.Background(), "M1", "NL01")
	assert.ErrorIs(t, err, common.ErrPersistence)
}

func TestHistoryRepository_Record(t *testing.T) {
	db := openTestDB(t)
	repo := NewHistoryRepository(db, slog.Default()).(*historyRepository)
	fixed := time.Date(2024, 3, 7, 10, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	rec, err := repo.Record(context.Background(), 200, "Operations", "Finance", "Rekeningnummer is op 07-03-2024 door Operations aangepast")
	require.NoError(t, err)
	assert.Equal(t, fixed, rec.CreatedAt)

	var (
		customerID          int64
		createdBy, typ, msg string
		count               int
	)
	require.NoError(t, db.Driver.DB().QueryRow(`SELECT COUNT(*) FROM history`).Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, db.Driver.DB().QueryRow(`SELECT customer_id, created_by, type, message FROM history`).
		Scan(&customerID, &createdBy, &typ, &msg))
	assert.Equal(t, int64(200), customerID)
	assert.Equal(t, "Operations", createdBy)
	assert.Equal(t, "Finance", typ)
	assert.Equal(t, "Rekeningnummer is op 07-03-2024 door Operations aangepast", msg)
}

func TestHistoryRepository_Record_Failure(t *testing.T) {
	db, err := Open(context.Background(), Config{Driver: "sqlite", DSN: ":memory:"}, slog.Default())
	require.NoError(t, err)
	defer db.Close(slog.Default())

	_, err = NewHistoryRepository(db, slog.Default()).Record(context.Background(), 1, "Operations", "Finance", "x")
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.Equal(t, common.CodePersistence, common.KindOf(err))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"}, slog.Default())
	assert.ErrorIs(t, err, common.ErrConnection)
}
