package storage

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	s, err := Open("sqlite", ":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	assert.True(t, s.IsSQLite())

	sqlDB, err := s.DB().DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, s.Enqueue(context.Background(), newTestJob("q", "DelayedClass")))
	jobs, err := s.GetJobsByType(context.Background(), "DelayedClass", "", 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestOpen_AppliesPoolOptions(t *testing.T) {
	s, err := Open("sqlite3", "file:"+t.TempDir()+"/jobs.db", nil, MaxOpenConns(7))
	require.NoError(t, err)

	sqlDB, err := s.DB().DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	assert.Equal(t, 7, sqlDB.Stats().MaxOpenConnections)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn", nil)
	assert.ErrorContains(t, err, "unsupported storage driver")
}

func TestNewGormLogger_WritesThroughSlog(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	l.Warn(context.Background(), "slow query %s", "SELECT 1")
	assert.Contains(t, buf.String(), "slow query SELECT 1")
	assert.Contains(t, buf.String(), "component=gorm")
}
