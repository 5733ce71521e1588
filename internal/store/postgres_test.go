package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetCachedTable_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT body FROM table_cache`).
		WithArgs("https://example.org/unknown").
		WillReturnError(pgx.ErrNoRows)

	body, err := s.GetCachedTable(context.Background(), "https://example.org/unknown")
	require.NoError(t, err)
	assert.Nil(t, body)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCachedTable_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("https://example.org/q", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCachedTable(context.Background(), "https://example.org/q", []byte("REGION,Value\n101,5\n"), 24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredTables(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM table_cache`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRegionIDs_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT ids FROM region_ids`).
		WithArgs("POA").
		WillReturnError(pgx.ErrNoRows)

	_, found, err := s.GetRegionIDs(context.Background(), "POA")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRegionIDs_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"ids"}).AddRow([]byte(`[2600,2601]`))
	mock.ExpectQuery(`SELECT ids FROM region_ids`).
		WithArgs("POA").
		WillReturnRows(rows)

	ids, found, err := s.GetRegionIDs(context.Background(), "POA")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []int{2600, 2601}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetRegionIDs_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("POA", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetRegionIDs(context.Background(), "POA", []int{2600, 2601})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetShare_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT doc FROM shares`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetShare(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveShare(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("abc123", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveShare(context.Background(), "abc123", []byte(`{"items":[]}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
