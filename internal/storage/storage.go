// Package storage persists session slots in SQLite, sealed with AES-256-GCM.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"listeningtrends-go/internal/session"

	_ "github.com/mattn/go-sqlite3"
)

var ErrInvalidInput = errors.New("invalid input")

var _ session.Store = (*SQLiteStorage)(nil)

// SQLiteStorage is a session.Store backed by a SQLite database.
type SQLiteStorage struct {
	db  *sql.DB
	key []byte
}

// NewSQLiteStorage wraps an open database. key must be KeySize bytes.
func NewSQLiteStorage(db *sql.DB, key []byte) (*SQLiteStorage, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database cannot be nil", ErrInvalidInput)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return &SQLiteStorage{db: db, key: key}, nil
}

// DB exposes the underlying connection pool.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}
