package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		outcome   string
		retryable bool
		reauth    bool
	}{
		{"nil", nil, "success", false, false},
		{"precondition", &PreconditionError{Reason: "no verifier"}, "precondition", false, true},
		{"crypto", &CryptoError{Err: errors.New("entropy")}, "crypto", false, true},
		{"network", &NetworkError{Err: errors.New("refused")}, "network", true, true},
		{"timeout", &TimeoutError{Err: context.DeadlineExceeded}, "timeout", true, true},
		{"protocol", &ProtocolError{Reason: "invalid_grant"}, "protocol", false, true},
		{"auth expired", &AuthExpiredError{}, "auth_expired", false, true},
		{"state mismatch", &StateMismatchError{}, "state_mismatch", false, true},
		{"conflict", &AttemptConflictError{}, "attempt_conflict", false, true},
		{"wrapped", fmt.Errorf("exchange: %w", &NetworkError{Err: errors.New("reset")}), "network", true, true},
		{"canceled", fmt.Errorf("request cancelled: %w", context.Canceled), "canceled", false, false},
		{"foreign", errors.New("unexpected"), "error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.outcome, outcome(tt.err))
			assert.Equal(t, tt.retryable, Retryable(tt.err))
			assert.Equal(t, tt.reauth, RequiresReauthorization(tt.err))
		})
	}
}
