package local

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	c, err := NewCache(Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "key1", "value1", 0)
	require.NoError(t, err)

	v, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", v)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "ttl_key", "val", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = c.Get(ctx, "ttl_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDel(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "k", "v", 0)
	_ = c.Set(ctx, "k2", "v", 0)
	require.NoError(t, c.Del(ctx, "k", "k2", "never-set"))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(ctx, "k2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExists(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_ = c.Set(ctx, "k", "v", 0)
	ok, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestExpiryUsesClock(t *testing.T) {
	c := newTestCache(t)
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c.now = clk.now
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "profile:1", "{}", time.Minute))
	clk.t = clk.t.Add(59 * time.Second)
	ok, _ := c.Exists(ctx, "profile:1")
	assert.True(t, ok)

	clk.t = clk.t.Add(2 * time.Second)
	ok, _ = c.Exists(ctx, "profile:1")
	assert.False(t, ok)
	// Still held until the sweep runs.
	assert.Equal(t, 1, c.Len())
}

func TestSetOverwritesTTL(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "old", 10*time.Millisecond))
	require.NoError(t, c.Set(ctx, "k", "new", 0))
	time.Sleep(20 * time.Millisecond)

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestConcurrentAccess(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("profile:%d", i%5)
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, key, "v", time.Minute)
				_, _ = c.Get(ctx, key)
				if j%10 == 0 {
					_ = c.Del(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 5)
}

func TestSweepRemovesExpired(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "short", "v", time.Millisecond)
	_ = c.Set(ctx, "long", "v", 0)
	time.Sleep(5 * time.Millisecond)
	c.sweep()

	assert.Equal(t, 1, c.Len())
	ok, _ := c.Exists(ctx, "long")
	assert.True(t, ok)
}

func TestCloseTwice(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
