package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	cipher *Cipher
}

// NewPostgres opens a PostgreSQL store and runs migrations.
func NewPostgres(dsn string, key []byte) (*PostgresStore, error) {
	cipher, err := NewCipher(key)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db, cipher: cipher}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		credentials TEXT NOT NULL DEFAULT '',
		profile TEXT NOT NULL DEFAULT '{}',
		preferences TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, user_id, email, credentials, profile, preferences, metadata, created_at
		 FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, email, credentials, profile, preferences, metadata, created_at
		 FROM sessions WHERE session_id = $1`, id)
	rec, err := s.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *SessionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	creds, profile, prefs, meta, err := encodeColumns(s.cipher, rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, email, credentials, profile, preferences, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT(session_id) DO UPDATE SET
		   user_id=excluded.user_id, email=excluded.email, credentials=excluded.credentials,
		   profile=excluded.profile, preferences=excluded.preferences, metadata=excluded.metadata`,
		rec.SessionID, rec.UserID, rec.Email, creds, profile, prefs, meta, rec.CreatedAt)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = $1", id)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *PostgresStore) Close() error                   { return s.db.Close() }

func (s *PostgresStore) scanRecord(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var creds, profile, prefs, meta string
	if err := row.Scan(&rec.SessionID, &rec.UserID, &rec.Email, &creds, &profile, &prefs, &meta, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeColumns(s.cipher, &rec, creds, profile, prefs, meta); err != nil {
		return nil, fmt.Errorf("session %s: %w", rec.SessionID, err)
	}
	return &rec, nil
}

var _ Store = (*PostgresStore)(nil)
