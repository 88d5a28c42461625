package postgres

import (
	"context"
	"fmt"
	"time"
)

// RunLock implements admission.RunLock over a single lease row. It is used
// when Redis is disabled; a lease older than ttl is taken over.
type RunLock struct {
	conn *Connection
	ttl  time.Duration
}

// NewRunLock creates a new RunLock.
func NewRunLock(conn *Connection, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RunLock{conn: conn, ttl: ttl}
}

// Acquire takes the lease for runID. Returns false while another live run holds it.
func (l *RunLock) Acquire(ctx context.Context, runID string) (bool, error) {
	query := `
		INSERT INTO matching_lock (name, run_id, expires_at)
		VALUES ('matching', $1, NOW() + $2::interval)
		ON CONFLICT (name) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			expires_at = EXCLUDED.expires_at
		WHERE matching_lock.expires_at < NOW()
	`
	tag, err := l.conn.Exec(ctx, query, runID, fmt.Sprintf("%d seconds", int(l.ttl.Seconds())))
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release frees the lease if runID still owns it.
func (l *RunLock) Release(ctx context.Context, runID string) error {
	_, err := l.conn.Exec(ctx, `DELETE FROM matching_lock WHERE name = 'matching' AND run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
