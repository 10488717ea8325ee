package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/client/storage"
)

func TestPurgeStaleSnapshots(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM snapshots")).
		WithArgs(now.Add(-48*time.Hour), storage.KeySalt).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := PurgeStaleSnapshots(context.Background(), db, 48*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeStaleSnapshots_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM snapshots")).WillReturnError(errors.New("boom"))

	_, err = PurgeStaleSnapshots(context.Background(), db, time.Hour, time.Now())
	assert.Error(t, err)
}

func TestStartStaleSnapshotCleaner_RunsOnTick(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM snapshots")).
		WithArgs(sqlmock.AnyArg(), storage.KeySalt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartStaleSnapshotCleaner(ctx, db, 10*time.Millisecond, time.Hour, zap.NewNop())

	assert.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 5*time.Millisecond)
}
