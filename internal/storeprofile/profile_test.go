package storeprofile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls atomic.Int32
	raw   map[string]any
	err   error
}

func (f *fakeSource) GetJSON(_ context.Context, path string, _ any, dest any) error {
	f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	if path != "/company" {
		return errors.New("unexpected path " + path)
	}
	*(dest.(*map[string]any)) = f.raw
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	src := &fakeSource{raw: map[string]any{"companyName": "ACME Trading", "vatNumber": "100000000000003", "phone": "04-1234567"}}
	svc := NewService(src, rdb, time.Minute, discard())

	p, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Profile{Name: "ACME Trading", TRN: "100000000000003", Phone: "04-1234567"}, p)

	p2, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p, p2)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.True(t, mr.Exists(cacheKey))
	assert.Equal(t, time.Minute, mr.TTL(cacheKey))

	mr.FastForward(2 * time.Minute)
	_, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	src := &fakeSource{raw: map[string]any{"name": "ACME"}}
	svc := NewService(src, rdb, 0, discard())

	_, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(context.Background()))
	assert.False(t, mr.Exists(cacheKey))
	_, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestGetDegradesWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	src := &fakeSource{raw: map[string]any{"name": "ACME"}}
	p, err := NewService(src, rdb, time.Minute, discard()).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ACME", p.Name)
}

func TestGetWithoutRedis(t *testing.T) {
	src := &fakeSource{raw: map[string]any{"storeName": "Branch 2", "trn": "123"}}
	svc := NewService(src, nil, time.Minute, discard())
	p, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Branch 2", p.Store().Name)
	assert.Equal(t, "123", p.Store().TRN)
	require.NoError(t, svc.Invalidate(context.Background()))
}

func TestGetPropagatesFetchError(t *testing.T) {
	src := &fakeSource{err: errors.New("backend down")}
	_, err := NewService(src, nil, time.Minute, discard()).Get(context.Background())
	assert.ErrorContains(t, err, "backend down")
}
