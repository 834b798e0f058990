package lockmgr_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/reccore/internal/lockmgr"
	"github.com/calvinalkan/reccore/internal/txn"
)

func newTestManager(t *testing.T) *lockmgr.Manager {
	t.Helper()

	m := lockmgr.New(lockmgr.Config{
		MaxCells:         4,
		Expiry:           50 * time.Millisecond,
		RetryWait:        5 * time.Millisecond,
		WatchdogInterval: 5 * time.Millisecond,
	})
	t.Cleanup(m.Close)

	return m
}

func TestLock_UnoccupiedSucceedsImmediately(t *testing.T) {
	m := newTestManager(t)

	err := m.Lock(context.Background(), 1, "owner-a", txn.New(1))
	require.NoError(t, err)

	assert.True(t, m.IsLocked(1))
}

func TestIsLocked_NoCellIsFalse(t *testing.T) {
	m := newTestManager(t)

	assert.False(t, m.IsLocked(99))
}

func TestLock_BlocksUntilRelease(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Lock(context.Background(), 1, "owner-a", txn.New(1)))

	acquired := make(chan error, 1)

	go func() {
		acquired <- m.Lock(context.Background(), 1, "owner-b", txn.New(1))
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired before release")
	case <-time.After(20 * time.Millisecond):
	}

	m.Release(1)

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}

func TestCheck_WrongOwnerFails(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Lock(context.Background(), 1, "owner-a", txn.New(1)))

	_, err := m.Check(1, "owner-b")
	require.ErrorIs(t, err, lockmgr.ErrNotHeld)

	tx, err := m.Check(1, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.RecordNumber())
}

func TestReleaseAllOwnedBy(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Lock(context.Background(), 1, "s1", txn.New(1)))
	require.NoError(t, m.Lock(context.Background(), 2, "s1", txn.New(2)))
	require.NoError(t, m.Lock(context.Background(), 3, "s2", txn.New(3)))

	m.ReleaseAllOwnedBy("s1")

	assert.False(t, m.IsLocked(1))
	assert.False(t, m.IsLocked(2))
	assert.True(t, m.IsLocked(3))
}

func TestWatchdog_EvictsExpiredCell(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Lock(context.Background(), 1, "owner-a", txn.New(1)))
	require.True(t, m.IsLocked(1))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && m.IsLocked(1) {
		time.Sleep(5 * time.Millisecond)
	}

	assert.False(t, m.IsLocked(1), "watchdog did not evict the expired cell")

	_, err := m.Check(1, "owner-a")
	require.ErrorIs(t, err, lockmgr.ErrNotHeld)
}

func TestLock_CancelledContext(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Lock(context.Background(), 1, "owner-a", txn.New(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Lock(ctx, 1, "owner-b", txn.New(1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetOrCreate_EvictsUnoccupiedUnderPressure(t *testing.T) {
	m := newTestManager(t) // MaxCells = 4

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, m.Lock(context.Background(), i, "owner-a", txn.New(i)))
		m.Release(i)
	}

	// All 4 cells exist but are unoccupied; a 5th request must evict one.
	require.NoError(t, m.Lock(context.Background(), 5, "owner-a", txn.New(5)))
	assert.True(t, m.IsLocked(5))
}

func TestGetOrCreate_ExhaustedPoolFailsFatally(t *testing.T) {
	m := newTestManager(t) // MaxCells = 4

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, m.Lock(context.Background(), i, "owner-a", txn.New(i)))
	}

	err := m.Lock(context.Background(), 5, "owner-a", txn.New(5))
	require.ErrorIs(t, err, lockmgr.ErrPoolExhausted)
}

func TestForceRelease_DropsCellEntirely(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Lock(context.Background(), 1, "owner-a", txn.New(1)))
	m.ForceRelease(1)

	assert.False(t, m.IsLocked(1))
	assert.Equal(t, 0, m.Len())
}
