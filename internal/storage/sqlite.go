package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"listeningtrends-go/internal/session"
)

// Get retrieves and decrypts the value stored under key.
func (s *SQLiteStorage) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: key cannot be empty", ErrInvalidInput)
	}

	var ciphertext, nonce []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value, nonce FROM slots WHERE key = ?",
		key).Scan(&ciphertext, &nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", session.ErrNotFound
		}
		return "", fmt.Errorf("failed to get slot %q: %w", key, err)
	}

	plaintext, err := DecryptValue(s.key, ciphertext, nonce)
	if err != nil {
		return "", fmt.Errorf("failed to open slot %q: %w", key, err)
	}
	return string(plaintext), nil
}

// Set encrypts value and stores it under key, replacing any previous value.
func (s *SQLiteStorage) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidInput)
	}

	ciphertext, nonce, err := EncryptValue(s.key, []byte(value))
	if err != nil {
		return fmt.Errorf("failed to seal slot %q: %w", key, err)
	}

	query := `
		INSERT INTO slots (key, value, nonce) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			nonce = excluded.nonce,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, key, ciphertext, nonce); err != nil {
		return fmt.Errorf("failed to store slot %q: %w", key, err)
	}
	return nil
}

// Clear removes key from the database.
func (s *SQLiteStorage) Clear(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidInput)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM slots WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to clear slot %q: %w", key, err)
	}
	return nil
}
