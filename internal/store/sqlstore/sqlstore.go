// Package sqlstore implements store.Repository over database/sql with sqlx.
// The same queries run on PostgreSQL (pgx driver) and SQLite (modernc
// driver); the dialect only changes id columns, row locking and the
// transaction options.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tiendapos/backend/internal/store"
)

type dialect struct {
	driver    string
	idColumn  string
	forUpdate string
	txOptions *sql.TxOptions
}

var (
	postgresDialect = dialect{
		driver:    "pgx",
		idColumn:  "BIGSERIAL PRIMARY KEY",
		forUpdate: " FOR UPDATE",
		// Row locks serialize stock writers; a waiting sale re-reads the
		// committed stock once its lock is granted.
		txOptions: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	}
	sqliteDialect = dialect{
		driver:   "sqlite",
		idColumn: "INTEGER PRIMARY KEY AUTOINCREMENT",
	}
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type Store struct {
	db      *sqlx.DB
	dialect dialect
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open(postgresDialect.driver, databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	return ready(ctx, db, postgresDialect)
}

// OpenSQLite opens a file database, or a private in-memory one for
// ":memory:". A single connection serializes every transaction.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s, err := ready(ctx, db, sqliteDialect)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func ready(ctx context.Context, db *sqlx.DB, d dialect) (*Store, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, dialect: d}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, s.dialect.txOptions)
	if err != nil {
		return nil, translateError(err)
	}
	return tx, nil
}

// in expands slice arguments of an `IN (?)` query and rebinds it for the
// dialect.
func (s *Store) in(query string, args ...any) (string, []any, error) {
	expanded, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return s.db.Rebind(expanded), inArgs, nil
}

// translateError maps driver errors onto the store taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if strings.Contains(pgErr.ConstraintName, "sale_number") {
				return store.ErrDuplicateSaleNumber
			}
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
		case "23503", "23514":
			return fmt.Errorf("%w: %s", store.ErrValidation, pgErr.Message)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		}
		return err
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			if strings.Contains(liteErr.Error(), "sale_number") {
				return store.ErrDuplicateSaleNumber
			}
			return fmt.Errorf("%w: %s", store.ErrDuplicate, liteErr.Error())
		case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%w: %s", store.ErrValidation, liteErr.Error())
		}
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %s", store.ErrConflict, liteErr.Error())
		}
	}
	return err
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: "+format, append([]any{store.ErrNotFound}, args...)...)
	}
	return translateError(err)
}

func nullIfZero(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
