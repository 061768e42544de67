package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_SetGetRoundTrip(t *testing.T) {
	c := NewLRU(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))

	data, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), data)
}

func TestLRUCache_GetMissingKeyIsNoErrorNoHit(t *testing.T) {
	c := NewLRU(10)
	_, ok, err := c.Get(context.Background(), "absent")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLRUCache_ExpiredEntryIsEvictedOnGet(t *testing.T) {
	c := NewLRU(10)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), -time.Second)) // already expired

	_, ok, err := c.Get(ctx, "k1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLRUCache_EvictsOldestWhenOverCapacity(t *testing.T) {
	c := NewLRU(2)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute)) // evicts "a"

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestLRUCache_RecentlyAccessedSurvivesEviction(t *testing.T) {
	c := NewLRU(2)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

	_, _, _ = c.Get(ctx, "a") // touch "a", making "b" the least recently used

	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute)) // evicts "b"

	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
}

func TestLRUCache_JSONRoundTrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	c := NewLRU(10)
	ctx := context.Background()
	in := payload{Name: "temp", Value: 42}

	require.NoError(t, c.SetJSON(ctx, "p", in, time.Minute))

	var out payload
	ok, err := c.GetJSON(ctx, "p", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestLRUCache_DeleteRemovesEntry(t *testing.T) {
	c := NewLRU(10)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLRUCache_DeletePatternMatchesGlob(t *testing.T) {
	c := NewLRU(10)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "device:t1:d1:latest", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "device:t1:d2:latest", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "rules:t1:enabled", []byte("v"), time.Minute))

	require.NoError(t, c.DeletePattern(ctx, "device:t1:*:latest"))

	_, ok, _ := c.Get(ctx, "device:t1:d1:latest")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "device:t1:d2:latest")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "rules:t1:enabled")
	assert.True(t, ok, "non-matching key should survive")
}

func TestNullCache_AlwaysMissesAndNoOps(t *testing.T) {
	var c NullCache
	ctx := context.Background()

	assert.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, ok)
}
