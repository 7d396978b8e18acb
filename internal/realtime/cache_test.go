package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/config"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/realtime"
)

func setupCache(t *testing.T) (*realtime.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{}
	cfg.Realtime.KeyPrefix = "dcim:point:"
	cfg.Realtime.TTL = 120

	return realtime.NewCache(cfg, client, zap.NewNop()), mr
}

func TestCache_SetGet(t *testing.T) {
	cache, mr := setupCache(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rt := &models.PointRealtime{
		PointID:   42,
		RawValue:  21.7,
		Value:     21.7,
		Quality:   0,
		Status:    models.PointStatusNormal,
		UpdatedAt: now,
	}
	require.NoError(t, cache.Set(ctx, rt))

	got, err := cache.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.PointID)
	assert.Equal(t, 21.7, got.Value)
	assert.Equal(t, models.PointStatusNormal, got.Status)
	assert.True(t, got.UpdatedAt.Equal(now))

	// 键带前缀且设置了 TTL
	require.True(t, mr.Exists("dcim:point:42"))
	assert.Greater(t, mr.TTL("dcim:point:42"), time.Duration(0))
}

func TestCache_GetMissReturnsNil(t *testing.T) {
	cache, _ := setupCache(t)

	got, err := cache.Get(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_ExpiredValueIsMiss(t *testing.T) {
	cache, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &models.PointRealtime{PointID: 7, Value: 1}))
	mr.FastForward(121 * time.Second)

	got, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}
