package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemory().(*memoryCache)
	base := time.Now()
	c.now = func() time.Time { return base }
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "price:1024")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "price:1024", "12345", time.Minute))
	v, ok, err := c.Get(ctx, "price:1024")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "12345", v)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok, _ = c.Get(ctx, "price:1024")
	require.False(t, ok)
}

func TestNew_NilClientFallsBack(t *testing.T) {
	_, ok := New(nil, "ns:").(*memoryCache)
	require.True(t, ok)
}
