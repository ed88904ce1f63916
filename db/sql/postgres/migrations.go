package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var ErrNilDB = errors.New("postgres: db is nil")

// ApplyMigrations executes the provided SQL statements in order inside a
// single transaction. Blank statements are skipped.
func ApplyMigrations(ctx context.Context, db *sql.DB, statements ...string) (err error) {
	if db == nil {
		return ErrNilDB
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: migrate: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: statement %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("postgres: migrate: commit: %w", err)
	}
	return nil
}

// Migrate installs DefaultSchema.
func Migrate(ctx context.Context, db *sql.DB) error {
	return ApplyMigrations(ctx, db, DefaultSchema...)
}
