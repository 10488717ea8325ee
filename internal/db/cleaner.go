package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/client/storage"
)

// PurgeStaleSnapshots deletes snapshots not written since now-retention and
// returns how many were removed. The sealed store salt is never purged.
func PurgeStaleSnapshots(ctx context.Context, db *sql.DB, retention time.Duration, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
        DELETE FROM snapshots
         WHERE updated_at < $1
           AND key <> $2
    `, now.Add(-retention), storage.KeySalt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StartStaleSnapshotCleaner purges abandoned snapshots every interval until
// ctx is cancelled.
func StartStaleSnapshotCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rows, err := PurgeStaleSnapshots(ctx, db, retention, time.Now())
				if err != nil {
					log.Error("failed to purge stale snapshots", zap.Error(err))
					continue
				}
				if rows > 0 {
					log.Info("purged stale snapshots", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
