package claims_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/claims"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ClaimOnce(t *testing.T) {
	m := claims.NewMemory()
	ctx := context.Background()

	ok, err := m.Claim(ctx, "alice:daily:85", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Claim(ctx, "alice:daily:85", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Release(ctx, "alice:daily:85"))
	ok, err = m.Claim(ctx, "alice:daily:85", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_Expires(t *testing.T) {
	m := claims.NewMemory()
	ctx := context.Background()

	ok, err := m.Claim(ctx, "k", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	ok, err = m.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_Concurrent(t *testing.T) {
	m := claims.NewMemory()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.Claim(ctx, "same", time.Minute)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func newTestRedis(t *testing.T) (*claims.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return claims.NewRedisWithClient(client, "test:"), mr
}

func TestRedis_ClaimOnce(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	ok, err := r.Claim(ctx, "alice:daily:85", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("test:alice:daily:85"))

	ok, err = r.Claim(ctx, "alice:daily:85", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Release(ctx, "alice:daily:85"))
	assert.False(t, mr.Exists("test:alice:daily:85"))
}

func TestRedis_TTL(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	ok, err := r.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = r.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRedis_ConnectError(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := claims.NewRedis(claims.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
