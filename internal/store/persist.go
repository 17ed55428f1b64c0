package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Persister is the durable key/value area that survives restarts.
type Persister interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
	Close() error
}

// SQLitePersister keeps durable keys in a single sqlite table.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister opens (or creates) the state database at path.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS durable_keys (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create durable_keys table: %w", err)
	}

	return &SQLitePersister{db: db}, nil
}

// Get returns the stored value and whether it exists.
func (p *SQLitePersister) Get(key string) (string, bool, error) {
	var value string
	err := p.db.QueryRow(`SELECT value FROM durable_keys WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a key.
func (p *SQLitePersister) Set(key, value string) error {
	_, err := p.db.Exec(`
	INSERT INTO durable_keys (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes keys in one transaction.
func (p *SQLitePersister) Delete(keys ...string) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	for _, key := range keys {
		if _, err := tx.Exec(`DELETE FROM durable_keys WHERE key = ?`, key); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

// MemoryPersister is a Persister for tests and ephemeral runs.
type MemoryPersister struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryPersister creates an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{values: make(map[string]string)}
}

func (p *MemoryPersister) Get(key string) (string, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *MemoryPersister) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}

func (p *MemoryPersister) Delete(keys ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.values, k)
	}
	return nil
}

func (p *MemoryPersister) Close() error { return nil }
