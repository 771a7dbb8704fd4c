package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/ibansync/internal/common"
)

type Config struct {
	Driver      string // "postgres" or "sqlite"
	DSN         string
	Schema      string // ignored for sqlite
	DialTimeout time.Duration
}

// DB is the single database session of a run.
type DB struct {
	Driver  *entsql.Driver
	Dialect string
	Schema  string

	pool *pgxpool.Pool
}

// Open connects to the database and verifies the session with a ping.
// The session holds exactly one connection; nothing in a run uses the database concurrently.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	logger.Info("connecting to database", "driver", cfg.Driver)
	var (
		out *DB
		err error
	)
	switch cfg.Driver {
	case "", dialect.Postgres:
		out, err = openPostgres(ctx, cfg)
	case "sqlite":
		out, err = openSQLite(ctx, cfg)
	default:
		err = fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		logger.Error("failed to connect to database", "driver", cfg.Driver, "error", err)
		return nil, common.NewConnectionError("open database", err)
	}

	logger.Info("successfully connected to database", "driver", cfg.Driver)
	return out, nil
}

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	pc.MaxConns = 1
	pc.MinConns = 0
	pc.ConnConfig.RuntimeParams["application_name"] = "ibansync"

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Wrap pool as *sql.DB for the ent SQL driver
	db := stdlib.OpenDBFromPool(pool)
	return &DB{
		Driver:  entsql.OpenDB(dialect.Postgres, db),
		Dialect: dialect.Postgres,
		Schema:  cfg.Schema,
		pool:    pool,
	}, nil
}

func openSQLite(ctx context.Context, cfg Config) (*DB, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{
		Driver:  entsql.OpenDB(dialect.SQLite, db),
		Dialect: dialect.SQLite,
	}, nil
}

// Close closes the database session gracefully
func (d *DB) Close(logger *slog.Logger) {
	if d == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connection")
	if err := d.Driver.Close(); err != nil {
		logger.Error("failed to close sql driver", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
	logger.Info("database connection closed")
}

// HealthCheck pings the session to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return d.Driver.DB().PingContext(ctx)
}

func (d *DB) builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.Dialect)
}

func (d *DB) table(name string) *entsql.SelectTable {
	t := d.builder().Table(name)
	if d.Schema != "" {
		t.Schema(d.Schema)
	}
	return t
}
