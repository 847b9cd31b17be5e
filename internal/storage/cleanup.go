package storage

import (
	"context"
	"fmt"
	"time"
)

// PurgeStale removes slots that have not been written within olderThan,
// such as verifiers left behind by abandoned authorization attempts.
func (s *SQLiteStorage) PurgeStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: retention period must be positive", ErrInvalidInput)
	}

	query := `
		DELETE FROM slots
		WHERE updated_at < datetime('now', ?)
	`
	result, err := s.db.ExecContext(ctx, query, fmt.Sprintf("-%d seconds", int64(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale slots: %w", err)
	}

	return result.RowsAffected()
}
