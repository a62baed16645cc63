package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := &PostgresDB{db: sqlx.NewDb(mockDB, "sqlmock")}
	return db, mock
}

func TestNewPostgresDB(t *testing.T) {
	db := NewPostgresDB(PoolConfig{MaxOpenConns: 5})
	assert.NotNil(t, db)
	assert.Nil(t, db.db)
	assert.Equal(t, 5, db.pool.MaxOpenConns)
}

func TestPostgresDB_Close(t *testing.T) {
	t.Run("Close with nil db", func(t *testing.T) {
		db := &PostgresDB{db: nil}
		assert.NoError(t, db.Close())
	})

	t.Run("Close with valid db", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		db := &PostgresDB{db: sqlx.NewDb(mockDB, "sqlmock")}

		mock.ExpectClose()
		assert.NoError(t, db.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresDB_Ping(t *testing.T) {
	t.Run("Ping with nil db", func(t *testing.T) {
		db := &PostgresDB{db: nil}
		err := db.Ping(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database not connected")
	})

	t.Run("Ping with valid db", func(t *testing.T) {
		db, mock := newMockPostgres(t)
		mock.ExpectPing().WillReturnError(nil)

		assert.NoError(t, db.Ping(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ping with error", func(t *testing.T) {
		db, mock := newMockPostgres(t)
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)

		err := db.Ping(context.Background())
		assert.Equal(t, sql.ErrConnDone, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresDB_EnsureSchema(t *testing.T) {
	t.Run("creates table and indexes", func(t *testing.T) {
		db, mock := newMockPostgres(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, db.EnsureSchema(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports failure", func(t *testing.T) {
		db, mock := newMockPostgres(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
			WillReturnError(sql.ErrConnDone)

		err := db.EnsureSchema(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create schema")
	})

	t.Run("requires connection", func(t *testing.T) {
		db := NewPostgresDB(PoolConfig{})
		assert.Error(t, db.EnsureSchema(context.Background()))
	})
}

func TestPostgresDB_ApplyPool(t *testing.T) {
	db, _ := newMockPostgres(t)
	db.pool = PoolConfig{MaxOpenConns: 7, ConnMaxLifetime: time.Minute}
	db.applyPool()

	assert.Equal(t, 7, db.db.Stats().MaxOpenConnections)
}

func TestPostgresDB_DB(t *testing.T) {
	t.Run("DB returns nil before connect", func(t *testing.T) {
		assert.Nil(t, NewPostgresDB(PoolConfig{}).DB())
	})

	t.Run("DB returns valid instance after setting", func(t *testing.T) {
		db, _ := newMockPostgres(t)
		assert.NotNil(t, db.DB())
	})
}
