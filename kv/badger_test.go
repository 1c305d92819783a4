package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBadgerStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "k1", "v1"))
	v, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	require.NoError(t, store.Del(ctx, "k1"))
	_, ok, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBadgerStoreHash(t *testing.T) {
	ctx := context.Background()
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.HSet(ctx, "h1", "a", "1"))
	require.NoError(t, store.HSet(ctx, "h1", "b", "2"))

	v, ok, err := store.HGet(ctx, "h1", "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)

	all, err := store.HGetAll(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, all)

	require.NoError(t, store.HDel(ctx, "h1", "a"))
	all, err = store.HGetAll(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"b": "2"}, all)
}

func TestBadgerStoreSet(t *testing.T) {
	ctx := context.Background()
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SAdd(ctx, "s1", "x"))
	require.NoError(t, store.SAdd(ctx, "s1", "y"))

	members, err := store.SMembers(ctx, "s1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"x", "y"}, members)

	require.NoError(t, store.SRem(ctx, "s1", "x"))
	members, err = store.SMembers(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, []string{"y"}, members)
}

func TestBadgerStorePubSub(t *testing.T) {
	ctx := context.Background()
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	sub, err := store.Subscribe(ctx, "ch")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, store.Publish(ctx, "ch", "hello"))
	require.Equal(t, "hello", <-sub.Channel())
}
