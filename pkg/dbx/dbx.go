// Package dbx owns the Postgres connection, the embedded schema migrations
// and the small helpers shared by every *infra repository.
package dbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Abraxas-365/gatekeeper/pkg/config"
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var dbErrors = errx.NewRegistry("DB")

var (
	ErrConnect = dbErrors.Register("CONNECT", errx.TypeInternal, 500, "Database connection failed")
	ErrMigrate = dbErrors.Register("MIGRATE", errx.TypeInternal, 500, "Database migration failed")
	ErrQuery   = dbErrors.Register("QUERY", errx.TypeInternal, 500, "Database query failed")
)

// Open connects to Postgres with the pool settings of cfg and pings it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, dbErrors.NewWithCause(ErrConnect, err).WithDetail("host", cfg.Host)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// Migrate applies every pending embedded migration.
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return dbErrors.NewWithCause(ErrMigrate, err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return dbErrors.NewWithCause(ErrMigrate, err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return dbErrors.NewWithCause(ErrMigrate, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return dbErrors.NewWithCause(ErrMigrate, err)
	}
	if dirty {
		return dbErrors.NewWithMessage(ErrMigrate, fmt.Sprintf("database is dirty at version %d", version))
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logx.Infof("dbx: schema up to date (version %d)", version)
			return nil
		}
		return dbErrors.NewWithCause(ErrMigrate, err)
	}

	newVersion, _, _ := m.Version()
	logx.Infof("dbx: migrated schema from version %d to %d", version, newVersion)
	return nil
}

// WithTx runs fn inside a transaction, committing only when fn returns nil.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return Wrap(err, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return Wrap(err, "commit transaction")
	}
	return nil
}

// Wrap turns a driver error into an internal errx error tagged with op.
func Wrap(err error, op string) *errx.Error {
	return dbErrors.NewWithCause(ErrQuery, err).WithDetail("op", op)
}

// IsUniqueViolation reports whether err is a Postgres unique_violation (23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// IsNoRows reports whether err is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// JSON is a JSONB column holding raw JSON.
type JSON json.RawMessage

// MarshalJSONB encodes v for a JSONB column.
func MarshalJSONB(v any) (JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(b), nil
}

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(src any) error {
	switch src := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], src...)
	case string:
		*j = JSON(src)
	default:
		return fmt.Errorf("dbx: unsupported type for JSON: %T", src)
	}
	return nil
}
