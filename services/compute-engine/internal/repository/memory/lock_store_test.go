package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnalysisPlatform/pkg/errors"
)

func TestLockStore_TryLock(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewLockStore(func() time.Time { return now })

	info, err := s.TryLock(ctx, "ce.worn-outs", "node-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "node-1", info.Holder)
	assert.Equal(t, now.Add(time.Minute), info.ExpiresAt)

	tests := []struct {
		name   string
		holder string
	}{
		{name: "other holder", holder: "node-2"},
		{name: "same holder", holder: "node-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.TryLock(ctx, "ce.worn-outs", tt.holder, time.Minute)
			assert.True(t, errors.IsCode(err, errors.ErrConflict))
		})
	}

	// отказ не сдвигает срок прежней блокировки
	now = now.Add(61 * time.Second)
	info, err = s.TryLock(ctx, "ce.worn-outs", "node-2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "node-2", info.Holder)
}

func TestLockStore_Release(t *testing.T) {
	ctx := context.Background()
	s := NewLockStore(nil)

	_, err := s.TryLock(ctx, "ce.reconcile", "node-1", time.Minute)
	require.NoError(t, err)

	// чужой владелец не снимает блокировку
	require.NoError(t, s.Release(ctx, "ce.reconcile", "node-2"))
	_, err = s.TryLock(ctx, "ce.reconcile", "node-2", time.Minute)
	assert.True(t, errors.IsCode(err, errors.ErrConflict))

	require.NoError(t, s.Release(ctx, "ce.reconcile", "node-1"))
	_, err = s.TryLock(ctx, "ce.reconcile", "node-1", time.Minute)
	require.NoError(t, err)
}
