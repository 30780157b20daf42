package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConnect_Unreachable проверяет, что подключение к несуществующей базе возвращает ошибку
func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config := NewConfig()
	config.Port = 1
	config.Retry.MaxAttempts = 1

	_, err := Connect(ctx, config)
	assert.Error(t, err)
}

// TestHealthCheck_NoPool проверяет health check без инициализированного пула
func TestHealthCheck_NoPool(t *testing.T) {
	err := (&Postgres{}).HealthCheck(context.Background())
	assert.Error(t, err)
}

func TestConfig_DSN(t *testing.T) {
	config := NewConfig()
	config.Host = "db"
	config.Database = "analysis"

	assert.Equal(t, "postgres://postgres:postgres@db:5432/analysis?sslmode=disable", config.DSN())
}

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx *fakeTx
}

func (f *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return f.tx, nil
}

func TestWithTx_Commit(t *testing.T) {
	db := &fakeBeginner{tx: &fakeTx{}}

	err := WithTx(context.Background(), db, func(tx pgx.Tx) error { return nil })

	require.NoError(t, err)
	assert.True(t, db.tx.committed)
	assert.False(t, db.tx.rolledBack)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := &fakeBeginner{tx: &fakeTx{}}

	err := WithTx(context.Background(), db, func(tx pgx.Tx) error { return errors.New("conflict") })

	assert.EqualError(t, err, "conflict")
	assert.False(t, db.tx.committed)
	assert.True(t, db.tx.rolledBack)
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := &fakeBeginner{tx: &fakeTx{}}

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, func(tx pgx.Tx) error { panic("boom") })
	})
	assert.True(t, db.tx.rolledBack)
}

func TestWithTx_CommitFailure(t *testing.T) {
	db := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("serialization failure")}}

	err := WithTx(context.Background(), db, func(tx pgx.Tx) error { return nil })

	assert.ErrorContains(t, err, "failed to commit")
	assert.True(t, db.tx.rolledBack)
}
