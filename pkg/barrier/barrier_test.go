package barrier

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsZeroParties(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestSinglePartyNeverBlocks(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Wait())
	}
	assert.Equal(t, uint64(3), b.Generation())
}

func TestWaitBlocksUntilAllArrive(t *testing.T) {
	b, err := New(3)
	require.NoError(t, err)

	var released atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Wait())
			released.Add(1)
		}()
	}

	require.Eventually(t, func() bool { return b.Waiting() == 2 }, time.Second, time.Millisecond)
	assert.Zero(t, released.Load())

	require.NoError(t, b.Wait())
	wg.Wait()
	assert.Equal(t, int32(2), released.Load())
	assert.Equal(t, uint64(1), b.Generation())
}

// No participant may start generation k+1 before all finished generation k.
func TestBarrierIsReusableAcrossGenerations(t *testing.T) {
	const parties = 4
	const rounds = 50
	b, err := New(parties)
	require.NoError(t, err)

	var mu sync.Mutex
	phase := make([]int, parties)
	var wg sync.WaitGroup
	for p := 0; p < parties; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				mu.Lock()
				phase[p] = r
				for _, other := range phase {
					assert.GreaterOrEqual(t, other, r-1)
					assert.LessOrEqual(t, other, r+1)
				}
				mu.Unlock()
				assert.NoError(t, b.Wait())
			}
		}(p)
	}
	wg.Wait()
	assert.Equal(t, uint64(rounds), b.Generation())
}

func TestBreakReleasesWaiters(t *testing.T) {
	b, err := New(3)
	require.NoError(t, err)
	cause := errors.New("agent exploded")

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- b.Wait() }()
	}
	require.Eventually(t, func() bool { return b.Waiting() == 2 }, time.Second, time.Millisecond)

	b.Break(cause)
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrBroken)
			assert.ErrorIs(t, err, cause)
		case <-time.After(time.Second):
			t.Fatal("waiter not released by Break")
		}
	}

	// later arrivals fail immediately
	assert.ErrorIs(t, b.Wait(), ErrBroken)
	assert.True(t, b.Broken())

	b.Break(errors.New("second cause"))
	assert.Equal(t, cause, b.Cause())
}

func TestBreakAfterReleaseKeepsCompletedGeneration(t *testing.T) {
	for i := 0; i < 200; i++ {
		b, err := New(2)
		require.NoError(t, err)

		first := make(chan error, 1)
		go func() { first <- b.Wait() }()
		require.Eventually(t, func() bool { return b.Waiting() == 1 }, time.Second, time.Microsecond)

		// the second arrival completes the generation, then the barrier breaks
		// before the first party may have been scheduled
		require.NoError(t, b.Wait())
		b.Break(errors.New("later failure"))

		require.NoError(t, <-first, "iteration %d", i)
	}
}
