package sampler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/config"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

func newTestSampler(t *testing.T) *Sampler {
	t.Helper()
	cfg := &config.Config{}
	cfg.Sampler.Interval = 5
	cfg.Sampler.AIStepPct = 0.02
	cfg.Sampler.DIFireProb = 0.005
	return NewSampler(cfg, nil, nil, nil, nil, nil, nil, nil, zap.NewNop())
}

func TestNextValue_AIWalkIsContinuousAndClamped(t *testing.T) {
	s := newTestSampler(t)
	point := &models.Point{
		ID:        1,
		PointCode: "A1_SRV_AI_001",
		PointName: "机柜温度",
		PointType: models.PointTypeAI,
		MinRange:  0,
		MaxRange:  100,
		Precision: 2,
	}

	prev := 24.0
	maxStep := (point.MaxRange - point.MinRange) * 0.02
	for i := 0; i < 500; i++ {
		value, err := s.nextValue(context.Background(), point, prev, true)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, value, point.MinRange)
		assert.LessOrEqual(t, value, point.MaxRange)
		// 单步不超过量程的步长比例（允许舍入半格）
		assert.LessOrEqual(t, abs(value-prev), maxStep+0.005)
		prev = value
	}
}

func TestNextValue_AIClampsAtRangeEdge(t *testing.T) {
	s := newTestSampler(t)
	point := &models.Point{
		PointType: models.PointTypeAI,
		PointName: "湿度",
		MinRange:  0,
		MaxRange:  100,
		Precision: 1,
	}

	for i := 0; i < 200; i++ {
		value, err := s.nextValue(context.Background(), point, 100, true)
		require.NoError(t, err)
		assert.LessOrEqual(t, value, 100.0)
		assert.GreaterOrEqual(t, value, 98.0)
	}
}

func TestNextValue_DIProbability(t *testing.T) {
	s := newTestSampler(t)
	s.config.Sampler.DIFireProb = 0

	point := &models.Point{PointType: models.PointTypeDI, PointCode: "A1_SRV_DI_001", PointName: "烟感"}
	for i := 0; i < 100; i++ {
		value, err := s.nextValue(context.Background(), point, 0, true)
		require.NoError(t, err)
		assert.Equal(t, 0.0, value)
	}

	// 门磁概率放大4倍，0.25 放大后必动作
	s.config.Sampler.DIFireProb = 0.25
	door := &models.Point{PointType: models.PointTypeDI, PointCode: "A1_DOOR_DI_001", PointName: "机房门磁"}
	value, err := s.nextValue(context.Background(), door, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, value)
}

func TestSeedValue_NameHeuristics(t *testing.T) {
	tests := []struct {
		name  string
		point *models.Point
		want  float64
	}{
		{"温度", &models.Point{PointName: "回风温度", MinRange: 0, MaxRange: 50}, 24},
		{"湿度", &models.Point{PointName: "环境湿度", MinRange: 0, MaxRange: 100}, 50},
		{"负载率", &models.Point{PointName: "UPS负载率", MinRange: 0, MaxRange: 100}, 45},
		{"电池电量", &models.Point{PointName: "电池电量", MinRange: 0, MaxRange: 100}, 85},
		{"功率", &models.Point{PointName: "有功功率", MinRange: 0, MaxRange: 500}, 200},
		{"缺省取量程中点", &models.Point{PointName: "电压", MinRange: 200, MaxRange: 240}, 220},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, seedValue(tt.point))
		})
	}
}

func TestRound_Precision(t *testing.T) {
	assert.Equal(t, 12.35, round(12.345678, 2))
	assert.Equal(t, 12.0, round(12.345678, 0))
	assert.Equal(t, 12.3457, round(12.345678, 4))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
