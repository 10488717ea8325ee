package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/GophFood/internal/client/storage"
)

func setupMock(t *testing.T) (*PostgresKVRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresKVRepository(db), mock
}

func TestGet_Success(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM snapshots WHERE key = $1`)).
		WithArgs(storage.KeyCart).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"items":[]}`)))

	got, err := repo.Get(context.Background(), storage.KeyCart)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, string(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM snapshots`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGet_Error(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM snapshots`)).
		WillReturnError(errors.New("conn reset"))

	_, err := repo.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "Get failed")
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestSet_Upserts(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO snapshots (key, value, updated_at)`)).
		WithArgs(storage.KeyBookmarks, []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Set(context.Background(), storage.KeyBookmarks, []byte(`[]`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSet_Error(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO snapshots`)).WillReturnError(errors.New("disk full"))

	assert.ErrorContains(t, repo.Set(context.Background(), "k", []byte("v")), "Set failed")
}

func TestRemove(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM snapshots WHERE key = $1`)).
		WithArgs(storage.KeyAuth).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Remove(context.Background(), storage.KeyAuth))
	assert.NoError(t, mock.ExpectationsWereMet())
}
