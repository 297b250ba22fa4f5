package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "boq:lock:1")
			require.NoError(t, err)
			defer release()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestLocalLockerTimesOut(t *testing.T) {
	locker := NewLocalLocker()
	locker.wait = 10 * time.Millisecond

	release, err := locker.Acquire(context.Background(), "boq:lock:2")
	require.NoError(t, err)
	defer release()

	_, err = locker.Acquire(context.Background(), "boq:lock:2")
	assert.ErrorIs(t, err, ErrBusy)

	other, err := locker.Acquire(context.Background(), "boq:lock:3")
	require.NoError(t, err)
	other()
}

func TestReleaseIsIdempotent(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)

	release()
	release()

	again, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	again()
}
