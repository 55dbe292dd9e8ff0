package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("t", 0)

	_, err := c.Get(ctx, "a")
	require.True(t, IsNotFound(err))

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", v)

	require.NoError(t, c.Delete(ctx, "a"))
	require.NoError(t, c.Delete(ctx, "a"))
	_, err = c.Get(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Hits)
	require.Equal(t, int64(2), st.Misses)
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("", 10*time.Millisecond)
	require.NoError(t, c.Set(ctx, "k", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "memcached"})
	require.Error(t, err)
}
