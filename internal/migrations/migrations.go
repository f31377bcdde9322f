// Package migrations implements C10: a fixed-order, monotonic schema
// migrator with a self-healing IsNeeded probe per migration, grounded on
// ajbates93-uptime-monitor's MigrationService (internal/core/migrations.go)
// generalized from a single linear up/down pair into a checksum-recording
// ledger whose apply step can be skipped idempotently when a migration's
// target state already holds — the behavior original_source's
// universal_migration_manager.py relies on to self-heal a partially
// migrated database instead of failing closed.
package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/newsagg/internal/apperr"
)

// Migration is one forward-only schema step. IsNeeded lets a migration
// probe the live schema and report "already satisfied" even if
// schema_migrations was never updated to say so, e.g. after a restore
// from a pre-migration backup.
type Migration struct {
	Version int
	Name    string
	SQL     string
	IsNeeded func(ctx context.Context, db *sql.DB) (bool, error)
}

// Manager applies the fixed, ordered migration set and tracks version in
// schema_migrations.
type Manager struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations []Migration

	degraded    bool
	degradedErr error
}

// New builds a Manager over db with the package's built-in migration set.
func New(db *sql.DB, logger *slog.Logger) *Manager {
	return &Manager{db: db, logger: logger, migrations: allMigrations}
}

func checksum(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}

func (m *Manager) ensureLedger(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (m *Manager) isApplied(ctx context.Context, version int) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, version).Scan(&count)
	return count > 0, err
}

// Run applies every migration in order. A migration already recorded is
// skipped; one not recorded but whose IsNeeded probe says it is already
// satisfied is recorded without re-running its SQL. On failure, Run marks
// the Manager degraded and returns a *apperr.MigrationError; the caller
// (internal/monitor) is expected to expose that via /migrations/status
// rather than crash the process.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.ensureLedger(ctx); err != nil {
		return fmt.Errorf("migrations: ensuring ledger: %w", err)
	}

	for _, mig := range m.migrations {
		applied, err := m.isApplied(ctx, mig.Version)
		if err != nil {
			return m.fail(mig, fmt.Errorf("checking applied state: %w", err))
		}
		if applied {
			continue
		}

		if mig.IsNeeded != nil {
			needed, err := mig.IsNeeded(ctx, m.db)
			if err != nil {
				return m.fail(mig, fmt.Errorf("probing schema state: %w", err))
			}
			if !needed {
				if err := m.record(ctx, mig); err != nil {
					return m.fail(mig, err)
				}
				if m.logger != nil {
					m.logger.Info("migration already satisfied, recording without re-running", "version", mig.Version, "name", mig.Name)
				}
				continue
			}
		}

		if err := m.apply(ctx, mig); err != nil {
			return m.fail(mig, err)
		}
		if m.logger != nil {
			m.logger.Info("applied migration", "version", mig.Version, "name", mig.Name)
		}
	}

	m.degraded = false
	m.degradedErr = nil
	return nil
}

func (m *Manager) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("executing migration sql: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, checksum) VALUES ($1,$2,$3)`,
		mig.Version, mig.Name, checksum(mig.SQL)); err != nil {
		tx.Rollback()
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, mig Migration) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, checksum) VALUES ($1,$2,$3)
		ON CONFLICT (version) DO NOTHING`, mig.Version, mig.Name, checksum(mig.SQL))
	return err
}

func (m *Manager) fail(mig Migration, cause error) error {
	m.degraded = true
	wrapped := &apperr.MigrationError{Version: mig.Version, Name: mig.Name, Cause: cause}
	m.degradedErr = wrapped
	if m.logger != nil {
		m.logger.Error("migration failed, entering degraded mode", "version", mig.Version, "name", mig.Name, "error", cause)
	}
	return wrapped
}

// Status is the shape internal/httpapi's /migrations/status serializes.
type Status struct {
	Degraded     bool   `json:"degraded"`
	Error        string `json:"error,omitempty"`
	CurrentCount int    `json:"applied_count"`
	TotalCount   int    `json:"total_count"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Status reports the Manager's current health for the monitoring surface.
func (m *Manager) Status(ctx context.Context) Status {
	st := Status{Degraded: m.degraded, TotalCount: len(m.migrations), CheckedAt: time.Now()}
	if m.degradedErr != nil {
		st.Error = m.degradedErr.Error()
	}
	var count int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err == nil {
		st.CurrentCount = count
	}
	return st
}
