package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// jobLockPrefix namespaces the advisory lock keys that serialise result
// application and completion checks per job.
const jobLockPrefix = "oa-job:"

// LockJob blocks until it holds the session advisory lock for the given job.
// The lock lives on a dedicated pooled connection, so the returned unlock
// function must be called to release both the lock and the connection.
func (db *DB) LockJob(ctx context.Context, jobID uuid.UUID) (func(), error) {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for job lock: %w", err)
	}

	key := jobLockPrefix + jobID.String()
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("take advisory lock for job %s: %w", jobID, err)
	}

	unlock := func() {
		// The caller's context may already be cancelled; the unlock must still run.
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
			db.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("failed to release job advisory lock")
			// Closing the session drops any lock it still holds.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}
	return unlock, nil
}
