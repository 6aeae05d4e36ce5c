package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/authcore/authcore/internal/autherrors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return NewRedisBackend(client, time.Second, logger), mr
}

func TestRedisBackend_SetGet(t *testing.T) {
	b, _ := newRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k1", []byte("v1"), time.Minute))

	got, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)
}

func TestRedisBackend_MissOnAbsentKey(t *testing.T) {
	b, _ := newRedisBackend(t)

	_, err := b.Get(context.Background(), "nope")
	require.ErrorIs(t, err, autherrors.ErrCacheMiss)
}

func TestRedisBackend_TTLExpiry(t *testing.T) {
	b, mr := newRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k1", []byte("v1"), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := b.Get(ctx, "k1")
	require.ErrorIs(t, err, autherrors.ErrCacheMiss)
}

func TestRedisBackend_Delete(t *testing.T) {
	b, _ := newRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k1", []byte("v1"), time.Minute))
	require.NoError(t, b.Delete(ctx, "k1"))

	_, err := b.Get(ctx, "k1")
	require.ErrorIs(t, err, autherrors.ErrCacheMiss)
}

func TestRedisBackend_DeletePrefix(t *testing.T) {
	b, _ := newRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "user:id:1", []byte("a"), time.Minute))
	require.NoError(t, b.Set(ctx, "user:id:2", []byte("b"), time.Minute))
	require.NoError(t, b.Set(ctx, "session:1", []byte("keep"), time.Minute))

	require.NoError(t, b.DeletePrefix(ctx, "user:"))

	_, err := b.Get(ctx, "user:id:1")
	require.ErrorIs(t, err, autherrors.ErrCacheMiss)
	_, err = b.Get(ctx, "user:id:2")
	require.ErrorIs(t, err, autherrors.ErrCacheMiss)

	got, err := b.Get(ctx, "session:1")
	require.NoError(t, err)
	require.Equal(t, []byte("keep"), got)
}

func TestRedisBackend_UnavailableOnConnectionFailure(t *testing.T) {
	b, mr := newRedisBackend(t)
	mr.Close()

	_, err := b.Get(context.Background(), "k1")
	require.ErrorIs(t, err, autherrors.ErrCacheUnavailable)

	err = b.Set(context.Background(), "k1", []byte("v1"), time.Minute)
	require.ErrorIs(t, err, autherrors.ErrCacheUnavailable)
}
