package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"listeningtrends-go/internal/session"
)

// Attempt is the state of one authorization attempt that must survive the
// browser leaving for the authorization server. It is the only data bridging
// the two halves of the flow.
type Attempt struct {
	ID        string    `json:"id"`
	Verifier  string    `json:"verifier"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

func saveAttempt(ctx context.Context, store session.Store, a *Attempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}
	if err := store.Set(ctx, session.VerifierKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist attempt: %w", err)
	}
	return nil
}

// loadAttempt returns the pending attempt, or nil if the slot is empty.
func loadAttempt(ctx context.Context, store session.Store) (*Attempt, error) {
	data, err := store.Get(ctx, session.VerifierKey)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read attempt: %w", err)
	}

	var a Attempt
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attempt: %w", err)
	}
	if a.Verifier == "" {
		return nil, nil
	}
	return &a, nil
}
