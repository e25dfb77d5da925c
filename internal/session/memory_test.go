package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_RegisterConsume(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	entry := Entry{UserID: 1, IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, c.Register(ctx, "jti-1", entry, time.Hour))

	got, err := c.Consume(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, uint(1), got.UserID)

	// Second consume of the same jti must miss.
	_, err = c.Consume(ctx, "jti-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCache_ConsumeUnknown(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	_, err := c.Consume(context.Background(), "never-registered")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCache_RevokeIdempotent(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, "jti-2", Entry{UserID: 2}, time.Hour))
	require.NoError(t, c.Revoke(ctx, "jti-2"))
	require.NoError(t, c.Revoke(ctx, "jti-2"))
	require.NoError(t, c.Revoke(ctx, "never-existed"))

	_, err := c.Consume(ctx, "jti-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, "jti-3", Entry{UserID: 3}, 20*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	_, err := c.Consume(ctx, "jti-3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCache_Epoch(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	epoch, err := c.Epoch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), epoch)

	bumped, err := c.BumpEpoch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bumped)

	epoch, err = c.Epoch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), epoch)

	// Other users are unaffected.
	epoch, err = c.Epoch(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(0), epoch)
}

func TestMemoryCache_ConcurrentConsumeSingleWinner(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Register(ctx, "jti-race", Entry{UserID: 5}, time.Hour))

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Consume(ctx, "jti-race"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
}
