package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps all records in a single JSON file, optionally sealed with
// a Cipher. One writer at a time under the mutex; every operation reads the
// current file so cross-operation staleness cannot occur.
type FileStore struct {
	path   string
	cipher *Cipher

	mu sync.Mutex
}

// NewFile opens a file store at path. A nil key means plaintext JSON. The
// file is created empty on first use.
func NewFile(path string, key []byte) (*FileStore, error) {
	cipher, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	s := &FileStore{path: path, cipher: cipher}

	// Fail at construction, not first use, when the file exists but cannot
	// be decoded.
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() ([]SessionRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session store %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	plaintext, err := s.cipher.Open(data)
	if err != nil {
		return nil, fmt.Errorf("session store %s: %w", s.path, err)
	}

	var records []SessionRecord
	if err := json.Unmarshal(plaintext, &records); err != nil {
		return nil, fmt.Errorf("parse session store %s: %w", s.path, err)
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, fmt.Errorf("session store %s: record %d: %w", s.path, i, err)
		}
	}
	return records, nil
}

// save rewrites the whole file via temp file and rename so readers never
// observe a partial write.
func (s *FileStore) save(records []SessionRecord) error {
	plaintext, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session store: %w", err)
	}
	data, err := s.cipher.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt session store: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".sessions-*")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write session store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close session store: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod session store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session store: %w", err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].SessionID == id {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *FileStore) Upsert(ctx context.Context, rec *SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range records {
		if records[i].SessionID == rec.SessionID {
			records[i] = *rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, *rec)
	}
	return s.save(records)
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	kept := records[:0]
	for i := range records {
		if records[i].SessionID != id {
			kept = append(kept, records[i])
		}
	}
	if len(kept) == len(records) {
		return nil
	}
	return s.save(kept)
}

func (s *FileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.load()
	return err
}

func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
