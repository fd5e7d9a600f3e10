package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/somalab/autonomic-monitory/internal/record"
)

// PostgresRepository реализует Repository для PostgreSQL (Infrastructure Layer)
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository создает новый экземпляр PostgresRepository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// NewPostgresRepositoryFromDSN создает репозиторий из строки подключения
func NewPostgresRepositoryFromDSN(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Настройки пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// Close закрывает соединение с БД
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// ===== Управление сессиями =====

func (r *PostgresRepository) SaveSession(ctx context.Context, session *Session) error {
	metadataJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO sessions (id, status, started_at, stopped_at, total_duration_ms, total_samples, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			stopped_at = EXCLUDED.stopped_at,
			total_duration_ms = EXCLUDED.total_duration_ms,
			total_samples = EXCLUDED.total_samples,
			metadata = EXCLUDED.metadata
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.StartedAt,
		session.StoppedAt,
		session.TotalDurationMs,
		session.TotalSamples,
		metadataJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	query := `
		SELECT id, status, started_at, stopped_at, total_duration_ms, total_samples, metadata
		FROM sessions
		WHERE id = $1
	`

	var session Session
	var metadataJSON []byte

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.Status,
		&session.StartedAt,
		&session.StoppedAt,
		&session.TotalDurationMs,
		&session.TotalSamples,
		&metadataJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &session, nil
}

func (r *PostgresRepository) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	query := `
		SELECT id, status, started_at, stopped_at, total_duration_ms, total_samples, metadata
		FROM sessions
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var session Session
		var metadataJSON []byte

		if err := rows.Scan(
			&session.ID,
			&session.Status,
			&session.StartedAt,
			&session.StoppedAt,
			&session.TotalDurationMs,
			&session.TotalSamples,
			&metadataJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		sessions = append(sessions, &session)
	}

	return sessions, rows.Err()
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, sessionID string) error {
	// Сначала архив записей, затем сама сессия
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tick_records WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ===== Архив записей тиков =====

func (r *PostgresRepository) InsertRecord(ctx context.Context, rec *record.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		INSERT INTO tick_records (session_id, ts, schema_version, payload)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.ExecContext(ctx, query, rec.SessionID, rec.TS, rec.SchemaVersion, payload); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListRecords(ctx context.Context, sessionID string, limit, offset int) ([]*record.Record, error) {
	query := `
		SELECT payload
		FROM tick_records
		WHERE session_id = $1
		ORDER BY ts ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*record.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		var rec record.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}
