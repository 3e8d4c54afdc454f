package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
)

func TestLockAcquireAndRelease(t *testing.T) {
	locks := newSessionLocks(time.Second)
	id := uuid.New()

	release, err := locks.acquire(context.Background(), id)
	require.NoError(t, err)
	release()

	release, err = locks.acquire(context.Background(), id)
	require.NoError(t, err)
	release()
}

func TestLockWaitTimesOut(t *testing.T) {
	locks := newSessionLocks(20 * time.Millisecond)
	id := uuid.New()

	release, err := locks.acquire(context.Background(), id)
	require.NoError(t, err)
	defer release()

	_, err = locks.acquire(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestLockContextCancellation(t *testing.T) {
	locks := newSessionLocks(time.Minute)
	id := uuid.New()

	release, err := locks.acquire(context.Background(), id)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = locks.acquire(ctx, id)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestLockIsPerSession(t *testing.T) {
	locks := newSessionLocks(20 * time.Millisecond)

	release, err := locks.acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer release()

	// A different session must not contend.
	other, err := locks.acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	other()
}

func TestLockMutualExclusion(t *testing.T) {
	locks := newSessionLocks(5 * time.Second)
	id := uuid.New()

	var counter, peak int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.acquire(context.Background(), id)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			counter++
			if counter > peak {
				peak = counter
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			counter--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak, "at most one holder at any instant")
}
