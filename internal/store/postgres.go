package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetConfig(ctx context.Context, sessionID string) (ConfigRecord, error) {
	const query = `
		SELECT session_id, document, revision, updated_at
		FROM dashboard_configs
		WHERE session_id = $1
	`
	var record ConfigRecord
	var document []byte
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&record.SessionID, &document, &record.Revision, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ConfigRecord{}, ErrNotFound
	}
	if err != nil {
		return ConfigRecord{}, fmt.Errorf("get config: %w", err)
	}
	record.Document = document
	return record, nil
}

// PutConfig upserts the record unless the stored revision is newer.
func (s *PostgresStore) PutConfig(ctx context.Context, record ConfigRecord) (ConfigRecord, error) {
	const query = `
		INSERT INTO dashboard_configs (session_id, document, revision, updated_at)
		VALUES ($1, $2::jsonb, $3, NOW())
		ON CONFLICT (session_id) DO UPDATE
			SET document = EXCLUDED.document,
				revision = EXCLUDED.revision,
				updated_at = NOW()
			WHERE dashboard_configs.revision <= EXCLUDED.revision
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query, record.SessionID, string(record.Document), record.Revision).Scan(&record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ConfigRecord{}, ErrStaleRevision
	}
	if err != nil {
		return ConfigRecord{}, fmt.Errorf("put config: %w", err)
	}
	return record, nil
}

// DeleteConfig removes the record. Deleting a missing session is not an error.
func (s *PostgresStore) DeleteConfig(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dashboard_configs WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	return nil
}
