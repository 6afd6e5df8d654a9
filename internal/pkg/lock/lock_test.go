package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestConcurrentIncrementsProperty checks that read-modify-write sequences
// guarded by the same key end in the sequential result.
func TestConcurrentIncrementsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(0, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 30).Draw(t, "numOps")
		key := rapid.StringMatching(`[a-f0-9]{8}`).Draw(t, "key")

		deltas := make([]int64, numOps)
		expected := initial
		for i := range deltas {
			deltas[i] = rapid.Int64Range(-500, 500).Draw(t, "delta")
			expected += deltas[i]
		}

		kl := New[string]()
		value := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, d := range deltas {
			go func(d int64) {
				defer wg.Done()
				_ = kl.WithLock(key, func() error {
					current := value
					value = current + d
					return nil
				})
			}(d)
		}
		wg.Wait()

		if value != expected {
			t.Fatalf("expected %d, got %d", expected, value)
		}
		if kl.Len() != 0 {
			t.Fatalf("idle keys not released: %d", kl.Len())
		}
	})
}

func TestIndependentKeys(t *testing.T) {
	kl := New[int64]()
	kl.Lock(1)
	defer kl.Unlock(1)

	assert.True(t, kl.TryLock(2), "other keys must not be blocked")
	kl.Unlock(2)
	assert.False(t, kl.TryLock(1))
	assert.True(t, kl.IsLocked(1))
}

func TestTryLockSingleWinner(t *testing.T) {
	kl := New[string]()
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	hold := make(chan struct{})

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if kl.TryLock("mission") {
				winners.Add(1)
				<-hold
				kl.Unlock("mission")
			}
		}()
	}
	close(start)
	time.Sleep(50 * time.Millisecond)
	close(hold)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.True(t, kl.TryLock("mission"))
	kl.Unlock("mission")
}

func TestLockContextTimeout(t *testing.T) {
	kl := New[string]()
	kl.Lock("clan")

	err := kl.LockContext(context.Background(), "clan", 20*time.Millisecond)
	require.ErrorIs(t, err, ErrLockTimeout)

	kl.Unlock("clan")
	require.NoError(t, kl.WithLockContext(context.Background(), "clan", time.Second, func() error { return nil }))
	assert.Equal(t, 0, kl.Len())
}

func TestLockContextCancelled(t *testing.T) {
	kl := New[string]()
	kl.Lock("k")
	defer kl.Unlock("k")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, kl.LockContext(ctx, "k", 0), context.Canceled)
}

func TestUnlockOfUnlockedKeyPanics(t *testing.T) {
	kl := New[string]()
	assert.Panics(t, func() { kl.Unlock("never") })
}
