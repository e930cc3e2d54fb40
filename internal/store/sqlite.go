package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. Credentials are sealed with
// the store cipher when one is configured; the remaining maps are stored as
// plain JSON columns.
type SQLiteStore struct {
	db     *sql.DB
	cipher *Cipher
}

// NewSQLite opens a SQLite store and runs migrations.
func NewSQLite(dsn string, key []byte) (*SQLiteStore, error) {
	cipher, err := NewCipher(key)
	if err != nil {
		return nil, err
	}

	// For in-memory databases, use shared cache so all connections in the
	// pool see the same data.
	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, cipher: cipher}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		credentials TEXT NOT NULL DEFAULT '',
		profile TEXT NOT NULL DEFAULT '{}',
		preferences TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]SessionRecord, error) {
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

func (s *SQLiteStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, email, credentials, profile, preferences, metadata, created_at
		 FROM sessions WHERE session_id = ?`, id)
	rec, err := s.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec *SessionRecord) error {
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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   user_id=excluded.user_id, email=excluded.email, credentials=excluded.credentials,
		   profile=excluded.profile, preferences=excluded.preferences, metadata=excluded.metadata`,
		rec.SessionID, rec.UserID, rec.Email, creds, profile, prefs, meta, rec.CreatedAt)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanRecord(row rowScanner) (*SessionRecord, error) {
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

// encodeColumns serializes the opaque maps for storage. The credentials
// column is sealed and base64 encoded when a cipher is configured.
func encodeColumns(c *Cipher, rec *SessionRecord) (creds, profile, prefs, meta string, err error) {
	credJSON, err := json.Marshal(rec.Credentials)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode credentials: %w", err)
	}
	if c != nil {
		sealed, err := c.Seal(credJSON)
		if err != nil {
			return "", "", "", "", fmt.Errorf("seal credentials: %w", err)
		}
		creds = base64.StdEncoding.EncodeToString(sealed)
	} else {
		creds = string(credJSON)
	}

	for _, col := range []struct {
		m   map[string]any
		dst *string
	}{{rec.Profile, &profile}, {rec.Preferences, &prefs}, {rec.Metadata, &meta}} {
		data, err := json.Marshal(col.m)
		if err != nil {
			return "", "", "", "", err
		}
		*col.dst = string(data)
	}
	return creds, profile, prefs, meta, nil
}

func decodeColumns(c *Cipher, rec *SessionRecord, creds, profile, prefs, meta string) error {
	if creds != "" {
		credJSON := []byte(creds)
		if c != nil {
			sealed, err := base64.StdEncoding.DecodeString(creds)
			if err != nil {
				return fmt.Errorf("decode credentials: %w", err)
			}
			credJSON, err = c.Open(sealed)
			if err != nil {
				return fmt.Errorf("open credentials: %w", err)
			}
		}
		if err := json.Unmarshal(credJSON, &rec.Credentials); err != nil {
			return fmt.Errorf("parse credentials: %w", err)
		}
	}
	for _, col := range []struct {
		raw string
		dst *map[string]any
	}{{profile, &rec.Profile}, {prefs, &rec.Preferences}, {meta, &rec.Metadata}} {
		if col.raw == "" || col.raw == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return fmt.Errorf("parse record column: %w", err)
		}
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
