package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, client
}

func TestRedisLocker(t *testing.T) {
	s, client := newRedis(t)
	locker := NewRedisLocker(client, time.Minute, 5*time.Millisecond, nil)
	ctx := context.Background()

	t.Run("AcquireAndRelease", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, EquipmentKey(1))
		require.NoError(t, err)
		assert.True(t, s.Exists(keyPrefix+EquipmentKey(1)))
		assert.Equal(t, time.Minute, s.TTL(keyPrefix+EquipmentKey(1)))

		unlock()
		assert.False(t, s.Exists(keyPrefix+EquipmentKey(1)))
	})

	t.Run("SecondHolderWaits", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, EquipmentKey(2))
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(waitCtx, EquipmentKey(2))
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		acquired := make(chan struct{})
		go func() {
			unlock2, err := locker.Lock(ctx, EquipmentKey(2))
			if err == nil {
				unlock2()
			}
			close(acquired)
		}()

		unlock()
		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("waiter never acquired the lock")
		}
	})

	t.Run("ExpiredLeaseIsNotReleasedByOldHolder", func(t *testing.T) {
		key := keyPrefix + EquipmentKey(3)
		unlockOld, err := locker.Lock(ctx, EquipmentKey(3))
		require.NoError(t, err)

		s.FastForward(2 * time.Minute)
		assert.False(t, s.Exists(key))

		unlockNew, err := locker.Lock(ctx, EquipmentKey(3))
		require.NoError(t, err)

		unlockOld()
		assert.True(t, s.Exists(key), "stale unlock removed another holder's lease")

		unlockNew()
		assert.False(t, s.Exists(key))
	})

	t.Run("ServerDown", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer client.Close()

		_, err := NewRedisLocker(client, time.Minute, 0, nil).Lock(ctx, EquipmentKey(4))
		assert.Error(t, err)
	})
}

func TestPing(t *testing.T) {
	_, client := newRedis(t)
	assert.NoError(t, Ping(context.Background(), client))
}
