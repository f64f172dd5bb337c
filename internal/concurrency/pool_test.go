package concurrency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pscalvm/pscalvm/internal/value"
)

// TestFourWorkersIncrementSharedCounter grounds §8's "Thread-local
// increment" end-to-end scenario: four worker threads increment a shared
// counter while holding a single mutex, then the caller joins all four.
func TestFourWorkersIncrementSharedCounter(t *testing.T) {
	r := NewRegistry(8)
	handle, err := r.CreateMutex()
	require.NoError(t, err)

	var counter int
	var guard sync.Mutex

	threads := make([]*Thread, 0, 4)
	for i := 0; i < 4; i++ {
		th, err := r.Spawn("worker", func(ctrl *Control) (value.Value, bool, error) {
			require.NoError(t, r.Lock(handle, int64(1)))
			guard.Lock()
			counter++
			guard.Unlock()
			require.NoError(t, r.Unlock(handle, int64(1)))
			return value.MakeNil(), true, nil
		})
		require.NoError(t, err)
		threads = append(threads, th)
	}

	for _, th := range threads {
		_, ok, err := r.Join(th.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.Equal(t, 4, counter)
}

func TestJoinMetricsOrdering(t *testing.T) {
	r := NewRegistry(4)
	th, err := r.Spawn("job", func(ctrl *Control) (value.Value, bool, error) {
		return value.MakeInt(1), true, nil
	})
	require.NoError(t, err)

	_, _, err = r.Join(th.ID)
	require.NoError(t, err)

	require.False(t, th.FinishedAt.Before(th.StartedAt))
	require.False(t, th.StartedAt.Before(th.QueuedAt))
}

func TestPoolExhaustionReturnsError(t *testing.T) {
	r := NewRegistry(1)
	block := make(chan struct{})

	_, err := r.Spawn("blocker", func(ctrl *Control) (value.Value, bool, error) {
		<-block
		return value.MakeNil(), true, nil
	})
	require.NoError(t, err)

	_, err = r.Spawn("overflow", func(ctrl *Control) (value.Value, bool, error) {
		return value.MakeNil(), true, nil
	})
	require.Error(t, err)

	close(block)
}

func TestMutexDestroyLockedIsError(t *testing.T) {
	r := NewRegistry(4)
	handle, err := r.CreateMutex()
	require.NoError(t, err)

	require.NoError(t, r.Lock(handle, 1))
	require.Error(t, r.Destroy(handle))

	require.NoError(t, r.Unlock(handle, 1))
	require.NoError(t, r.Destroy(handle))
}

func TestReentrantMutexSameOwner(t *testing.T) {
	r := NewRegistry(4)
	handle, err := r.CreateRCMutex()
	require.NoError(t, err)

	require.NoError(t, r.Lock(handle, 42))
	require.NoError(t, r.Lock(handle, 42)) // re-entrant: same owner relocks
	require.NoError(t, r.Unlock(handle, 42))
	require.NoError(t, r.Unlock(handle, 42))
}
