package state

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

// HistoryStore persists terminal defect records for audit across
// restarts. The in-memory State stays authoritative; implementations
// are written to on a best-effort basis.
type HistoryStore interface {
	Record(ctx context.Context, rec *models.DefectRecord) error
	List(ctx context.Context, limit int) ([]*models.DefectRecord, error)
}

// scannable is satisfied by both pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// PgStore implements HistoryStore using PostgreSQL via pgxpool.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL-backed history store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Migrate creates the defect_history table if it does not exist. An
// advisory lock prevents concurrent replicas from racing on DDL.
func (s *PgStore) Migrate(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: acquiring connection for migration: %w", err)
	}
	defer conn.Release()

	// Application-specific lock ID to avoid collisions with other apps
	// on the same PostgreSQL instance.
	const migrationLockID int64 = 0x4845_414C // "HEAL"
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("pgstore: acquiring migration lock: %w", err)
	}
	defer conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)

	schema := `
	CREATE TABLE IF NOT EXISTS defect_history (
		id              TEXT PRIMARY KEY,
		kind            TEXT NOT NULL,
		severity        TEXT NOT NULL,
		collection_name TEXT NOT NULL,
		subject         TEXT NOT NULL,
		description     TEXT NOT NULL,
		status          TEXT NOT NULL,
		failure_reason  TEXT NOT NULL DEFAULT '',
		document_ids    TEXT[] NOT NULL DEFAULT '{}',
		field_name      TEXT NOT NULL DEFAULT '',
		detected_at     TIMESTAMPTZ NOT NULL,
		fixed_at        TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_defect_history_detected_at
		ON defect_history (detected_at DESC);
	`
	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgstore: applying schema: %w", err)
	}
	return nil
}

const historyCols = `id, kind, severity, collection_name, subject, description,
	status, failure_reason, document_ids, field_name, detected_at, fixed_at`

// Record inserts or updates a terminal defect record.
func (s *PgStore) Record(ctx context.Context, rec *models.DefectRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO defect_history (`+historyCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			status=$7, failure_reason=$8, fixed_at=$12`,
		rec.ID, string(rec.Kind), string(rec.Severity), rec.Collection,
		rec.Subject, rec.Description, string(rec.Status), rec.FailureReason,
		rec.DocumentIDs, rec.Field, rec.DetectedAt, rec.FixedAt)
	if err != nil {
		return fmt.Errorf("pgstore: record defect: %w", err)
	}
	return nil
}

// List returns the most recently detected records, newest first.
func (s *PgStore) List(ctx context.Context, limit int) ([]*models.DefectRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+historyCols+` FROM defect_history ORDER BY detected_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list history: %w", err)
	}
	defer rows.Close()

	var records []*models.DefectRecord
	for rows.Next() {
		rec, scanErr := scanDefect(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanDefect(s scannable) (*models.DefectRecord, error) {
	var rec models.DefectRecord
	var kind, severity, status string
	err := s.Scan(
		&rec.ID, &kind, &severity, &rec.Collection, &rec.Subject,
		&rec.Description, &status, &rec.FailureReason, &rec.DocumentIDs,
		&rec.Field, &rec.DetectedAt, &rec.FixedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("pgstore: record not found")
		}
		return nil, fmt.Errorf("pgstore: scan defect: %w", err)
	}
	rec.Kind = models.DefectKind(kind)
	rec.Severity = models.Severity(severity)
	rec.Status = models.DefectStatus(status)
	return &rec, nil
}
