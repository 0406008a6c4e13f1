package objectstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS caseflow_kv").
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT value, version FROM caseflow_kv").
		WithArgs("cases/x").
		WillReturnRows(sqlmock.NewRows([]string{"value", "version"}).AddRow([]byte("payload"), int64(4)))

	data, version, err := store.Get(context.Background(), "cases/x")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, Version("4"), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT value, version FROM caseflow_kv").
		WithArgs("cases/x").
		WillReturnRows(sqlmock.NewRows([]string{"value", "version"}))

	_, _, err := store.Get(context.Background(), "cases/x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO caseflow_kv").
		WithArgs("cases/x", []byte("a")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.Put(context.Background(), "cases/x", []byte("a"), VersionNone)
	assert.ErrorIs(t, err, ErrConditionFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSucceeds(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO caseflow_kv").
		WithArgs("cases/x", []byte("a")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	version, err := store.Put(context.Background(), "cases/x", []byte("a"), VersionNone)
	require.NoError(t, err)
	assert.Equal(t, Version("1"), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConditionalUpdate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE caseflow_kv SET value").
		WithArgs("cases/x", []byte("b"), int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(5)))

	version, err := store.Put(context.Background(), "cases/x", []byte("b"), Version("4"))
	require.NoError(t, err)
	assert.Equal(t, Version("5"), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConditionalUpdateConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE caseflow_kv SET value").
		WithArgs("cases/x", []byte("b"), int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	_, err := store.Put(context.Background(), "cases/x", []byte("b"), Version("4"))
	assert.ErrorIs(t, err, ErrConditionFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UnconditionalUpsert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO caseflow_kv").
		WithArgs("cases/x", []byte("c")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(9)))

	version, err := store.Put(context.Background(), "cases/x", []byte("c"), VersionAny)
	require.NoError(t, err)
	assert.Equal(t, Version("9"), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT key FROM caseflow_kv WHERE key LIKE").
		WithArgs("cases/").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("cases/a").AddRow("cases/b"))

	keys, err := store.List(context.Background(), "cases/")
	require.NoError(t, err)
	assert.Equal(t, []string{"cases/a", "cases/b"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}
