package session

import (
	"context"
	"errors"
)

// VerifierKey is the well-known slot holding the pending PKCE attempt.
const VerifierKey = "verifier"

// ErrNotFound is returned by Get when a key holds no value.
var ErrNotFound = errors.New("session value not found")

// Store is a durable key-value slot scoped to one client origin.
// Implementations are not transactional; callers assume a single
// authorization attempt at a time.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Clear removes key. Clearing a missing key is not an error.
	Clear(ctx context.Context, key string) error
}
