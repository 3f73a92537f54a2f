package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/nodeflow/config"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)
	return mockDB, mock, gormDB
}

func testPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2, ConnMaxLifetime: time.Hour}
}

func TestNewPoolManager(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	pm, err := NewPoolManager(gormDB, testPoolConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Same(t, gormDB, pm.DB())
	assert.Equal(t, "postgres", pm.Dialect())
	assert.Equal(t, 4, pm.Stats().MaxOpenConnections)

	mock.ExpectClose()
	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())
	assert.ErrorIs(t, pm.Ping(context.Background()), ErrPoolClosed)
	assert.ErrorIs(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }), ErrPoolClosed)
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, testPoolConfig(), nil)
	assert.Error(t, err)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()
	pm, err := NewPoolManager(gormDB, testPoolConfig(), nil)
	require.NoError(t, err)

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit()
		require.NoError(t, pm.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil }))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectRollback()
		err := pm.WithTransaction(context.Background(), func(tx *gorm.DB) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()
	pm, err := NewPoolManager(gormDB, testPoolConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Run("retries deadlock", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(errors.New("ERROR: deadlock detected"))
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := pm.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		calls := 0
		err := pm.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
			calls++
			return errors.New("unique constraint violated")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up", func(t *testing.T) {
		for range 2 {
			mock.ExpectBegin().WillReturnError(errors.New("driver: bad connection"))
		}
		err := pm.WithTransactionRetry(context.Background(), 2, func(tx *gorm.DB) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 attempts")
	})
}

func TestPoolManager_HealthCheckReportsStats(t *testing.T) {
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "health.db")), &gorm.Config{})
	require.NoError(t, err)

	var reports atomic.Int32
	cfg := PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1, HealthCheckInterval: 10 * time.Millisecond}
	pm, err := NewPoolManager(gormDB, cfg, zaptest.NewLogger(t), WithStatsHook(func(s PoolStats) {
		assert.Equal(t, 1, s.MaxOpenConnections)
		reports.Add(1)
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return reports.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, pm.Close())

	// 关闭后不再上报
	after := reports.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, reports.Load())
}

func TestOpen_SQLite(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "nodeflow.db")}
	pm, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pm.Close()

	assert.Equal(t, "sqlite", pm.Dialect())
	assert.NoError(t, pm.Ping(context.Background()))
	assert.Equal(t, 1, pm.Stats().MaxOpenConnections)
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver  string
		name    string
		want    string
		wantErr bool
	}{
		{driver: "postgres", want: "postgres"},
		{driver: "mysql", want: "mysql"},
		{driver: "sqlite", name: "x.db", want: "sqlite"},
		{driver: "sqlite", wantErr: true},
		{driver: "oracle", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver+"/"+tt.name, func(t *testing.T) {
			d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, Name: tt.name})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestPoolConfigFrom(t *testing.T) {
	pc := PoolConfigFrom(config.DatabaseConfig{Driver: "postgres", MaxOpenConns: 40, MaxIdleConns: 8})
	assert.Equal(t, 40, pc.MaxOpenConns)
	assert.Equal(t, 8, pc.MaxIdleConns)
	assert.NoError(t, pc.Validate())

	lite := PoolConfigFrom(config.DatabaseConfig{Driver: "sqlite", MaxOpenConns: 40})
	assert.Equal(t, 1, lite.MaxOpenConns)
	assert.Equal(t, 1, lite.MaxIdleConns)
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{name: "valid", config: PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}},
		{name: "zero open", config: PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5}, wantErr: true},
		{name: "zero idle", config: PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0}, wantErr: true},
		{name: "idle > open", config: PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr {
				assert.Error(t, tt.config.Validate())
			} else {
				assert.NoError(t, tt.config.Validate())
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(errors.New("Deadlock found when trying to get lock")))
	assert.True(t, isRetryableError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isRetryableError(errors.New("pq: could not serialize access (SQLSTATE 40001)")))
	assert.False(t, isRetryableError(errors.New("syntax error")))
}
