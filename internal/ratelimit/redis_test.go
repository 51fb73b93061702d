package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLedger(t *testing.T, limit int, window time.Duration) (*RedisLedger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLedger(client, "test:", limit, window), mr
}

func TestRedisLedgerWindow(t *testing.T) {
	l, _ := newRedisLedger(t, 3, time.Minute)
	assert.Equal(t, "redis", l.Backend())
	exerciseWindow(t, l, 3, time.Minute)
}

func TestRedisLedgerKeysExpire(t *testing.T) {
	l, mr := newRedisLedger(t, 3, time.Minute)

	ok, err := l.Allow(context.Background(), "client-a", t0)
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, mr.Exists("test:client-a"))
	assert.Equal(t, time.Minute, mr.TTL("test:client-a"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("test:client-a"))
}

func TestRedisLedgerConcurrentLastSlot(t *testing.T) {
	const limit = 5
	l, _ := newRedisLedger(t, limit, time.Minute)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow(context.Background(), "shared", t0)
			if err == nil && ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit), admitted.Load())
}

func TestRedisLedgerUnavailable(t *testing.T) {
	l, mr := newRedisLedger(t, 3, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "client-a", t0)
	assert.Error(t, err)
	assert.Error(t, l.Ping(context.Background()))
}

func TestDialRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)

	l, err := DialRedisLedger(context.Background(), "redis://"+mr.Addr()+"/0", 2, time.Minute)
	require.NoError(t, err)
	defer l.Close()
	assert.NoError(t, l.Ping(context.Background()))

	_, err = DialRedisLedger(context.Background(), "", 2, time.Minute)
	assert.Error(t, err)
	_, err = DialRedisLedger(context.Background(), "not a url", 2, time.Minute)
	assert.Error(t, err)
}
