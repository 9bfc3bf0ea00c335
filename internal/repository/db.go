package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// Open connects to the configured database and applies the pool settings.
// Supported drivers are "postgres" (lib/pq) and "sqlite3" (mattn/go-sqlite3).
func Open(cfg config.DBConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("repository.Open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if cfg.Driver == "sqlite3" {
		// One writer at a time; _txlock=immediate in the DSN does the rest.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate runs every embedded *.sql file for the connection's dialect, sorted
// by name. Files are idempotent (IF NOT EXISTS).
func Migrate(ctx context.Context, db *sqlx.DB) error {
	dir := path.Join("migrations", db.DriverName())
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("repository.Migrate: no migrations for driver %q: %w", db.DriverName(), err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		data, err := fs.ReadFile(migrationsFS, path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("repository.Migrate: read %q: %w", name, err)
		}
		if _, err = db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("repository.Migrate: exec %q: %w", name, err)
		}
		zap.L().Info("migration applied", zap.String("file", name), zap.String("driver", db.DriverName()))
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Shared helpers
// ──────────────────────────────────────────────────────────────────────────────

// stamp returns t in UTC at the precision both dialects store, so values read
// back compare equal and sort the same way.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// isUniqueViolation reports whether err is a unique-constraint failure in
// either dialect.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// bump runs an UPDATE that only increments a version column. Inside a
// transaction it takes the row's write lock, which is how both dialects
// serialize work on one profile, offer or escrow. Returns false when no row
// matched.
func bump(ctx context.Context, tx *sqlx.Tx, query string, args ...any) (bool, error) {
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
