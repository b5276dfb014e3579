package persist

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedis(mr.Addr(), "")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedis_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniRedis(t)

	err := store.Save(ctx, "abc", map[string]string{"bookbay_token": "tok", "bookbay_user": `{"role":"buyer"}`}, time.Hour)
	require.NoError(t, err)

	got, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "tok", got["bookbay_token"])
	assert.Equal(t, `{"role":"buyer"}`, got["bookbay_user"])

	assert.Equal(t, time.Hour, mr.TTL("bookbay:session:abc"))
	assert.Equal(t, "tok", mr.HGet("bookbay:session:abc", "bookbay_token"))
}

func TestRedis_SaveReplacesStaleFields(t *testing.T) {
	ctx := context.Background()
	store, _ := newMiniRedis(t)

	require.NoError(t, store.Save(ctx, "abc", map[string]string{"a": "1", "b": "2"}, 0))
	require.NoError(t, store.Save(ctx, "abc", map[string]string{"a": "3"}, 0))

	got, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "3"}, got)
}

func TestRedis_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniRedis(t)

	require.NoError(t, store.Save(ctx, "abc", map[string]string{"a": "1"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedis_Remove(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniRedis(t)

	require.NoError(t, store.Save(ctx, "abc", map[string]string{"a": "1"}, 0))
	require.NoError(t, store.Remove(ctx, "abc"))
	assert.False(t, mr.Exists("bookbay:session:abc"))

	assert.NoError(t, store.Remove(ctx, "never-saved"))
}

func TestRedis_Unreachable(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniRedis(t)
	mr.Close()

	assert.Error(t, store.Ping(ctx))
	assert.Error(t, store.Save(ctx, "abc", map[string]string{"a": "1"}, 0))

	_, err := store.Load(ctx, "abc")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
