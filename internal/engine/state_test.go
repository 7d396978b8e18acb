package engine_test

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
	"github.com/proecheng/dcim-platform-sub000/internal/engine"
)

func setupStateManager(t *testing.T) *engine.StateManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{}
	cfg.Alarm.StateKeyPrefix = "dcim:alarm:state:"
	cfg.Alarm.StateTTL = 3600

	return engine.NewStateManager(cfg, client, zap.NewNop())
}

func TestStateManager_RoundTrip(t *testing.T) {
	sm := setupStateManager(t)
	ctx := context.Background()

	since := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, sm.SetState(ctx, 42, 7, &engine.RuleRuntimeState{
		State:         engine.StateFiring,
		FiringSince:   &since,
		ActiveAlarmID: 99,
	}))

	got, err := sm.GetState(ctx, 42, 7)
	require.NoError(t, err)
	assert.Equal(t, engine.StateFiring, got.State)
	require.NotNil(t, got.FiringSince)
	assert.True(t, got.FiringSince.Equal(since))
	assert.Equal(t, int64(99), got.ActiveAlarmID)
}

func TestStateManager_MissingKeyIsNormal(t *testing.T) {
	sm := setupStateManager(t)

	got, err := sm.GetState(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, engine.StateNormal, got.State)
	assert.Nil(t, got.FiringSince)
	assert.Zero(t, got.ActiveAlarmID)
}

func TestStateManager_Delete(t *testing.T) {
	sm := setupStateManager(t)
	ctx := context.Background()

	require.NoError(t, sm.SetState(ctx, 5, 3, &engine.RuleRuntimeState{State: engine.StateFiring}))
	require.NoError(t, sm.DeleteState(ctx, 5, 3))

	got, err := sm.GetState(ctx, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, engine.StateNormal, got.State)
}

func TestStateManager_KeyIsolation(t *testing.T) {
	sm := setupStateManager(t)
	ctx := context.Background()

	require.NoError(t, sm.SetState(ctx, 1, 2, &engine.RuleRuntimeState{State: engine.StateFiring}))

	// 同点位不同规则互不串扰
	got, err := sm.GetState(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, engine.StateNormal, got.State)
}
