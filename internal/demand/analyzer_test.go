package demand_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/demand"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

func newAnalyzer() *demand.Analyzer {
	return demand.NewAnalyzer(nil, demand.DefaultThresholds(), zap.NewNop())
}

func historyOf(maxDemands ...float64) []*models.DemandHistory {
	out := make([]*models.DemandHistory, 0, len(maxDemands))
	for i, d := range maxDemands {
		out = append(out, &models.DemandHistory{
			StatYear:  2025,
			StatMonth: i + 1,
			MaxDemand: d,
		})
	}
	return out
}

func TestRecommend_Reduce(t *testing.T) {
	a := newAnalyzer()
	meter := &models.MeterPoint{ID: 1, DeclaredDemand: 800, DemandType: models.DemandTypeKW}
	// 12个月，max=600，次大（P95）=580
	history := historyOf(300, 350, 380, 400, 420, 430, 440, 450, 470, 500, 580, 600)

	rec, err := a.Recommend(meter, history, 38, 2.0)
	require.NoError(t, err)

	assert.Equal(t, demand.RecommendReduce, rec.Type)
	// ceil(580×1.10/5)×5 = 640
	assert.InDelta(t, 640, rec.SuggestedDemand, 1e-9)
	// (800−640)×38×12 = 72960
	assert.InDelta(t, 72960, rec.AnnualSaving, 1e-9)
	assert.True(t, rec.HasOpportunity)
	assert.Greater(t, rec.Confidence, 0.0)
	assert.Equal(t, 12, rec.Stats.Months)
	assert.InDelta(t, 600, rec.Stats.MaxDemand, 1e-9)
	assert.InDelta(t, 580, rec.Stats.P95Demand, 1e-9)
}

func TestRecommend_SuggestedIsStepMultiple(t *testing.T) {
	a := newAnalyzer()

	meterKW := &models.MeterPoint{ID: 1, DeclaredDemand: 900, DemandType: models.DemandTypeKW}
	rec, err := a.Recommend(meterKW, historyOf(500, 510, 490, 503, 520, 511), 38, 2.0)
	require.NoError(t, err)
	require.Equal(t, demand.RecommendReduce, rec.Type)
	assert.Zero(t, math.Mod(rec.SuggestedDemand, 5), "kW suggestion is a multiple of 5")
	assert.GreaterOrEqual(t, rec.SuggestedDemand, rec.Stats.P95Demand*1.10)

	meterKVA := &models.MeterPoint{ID: 2, DeclaredDemand: 900, DemandType: models.DemandTypeKVA}
	rec, err = a.Recommend(meterKVA, historyOf(500, 510, 490, 503, 520, 511), 38, 2.0)
	require.NoError(t, err)
	require.Equal(t, demand.RecommendReduce, rec.Type)
	assert.Zero(t, math.Mod(rec.SuggestedDemand, 10), "kVA suggestion is a multiple of 10")
}

func TestRecommend_Increase(t *testing.T) {
	a := newAnalyzer()
	meter := &models.MeterPoint{ID: 1, DeclaredDemand: 500, DemandType: models.DemandTypeKW}
	// 最大 600 已超申报 500，util=1.2
	history := historyOf(540, 560, 580, 600, 590, 570)

	rec, err := a.Recommend(meter, history, 38, 2.0)
	require.NoError(t, err)

	assert.Equal(t, demand.RecommendIncrease, rec.Type)
	assert.Greater(t, rec.SuggestedDemand, 600.0)
	// 年节省记为负（基本电费增加），可避免罚金 = 100×38×2×12
	assert.InDelta(t, -91200, rec.AnnualSaving, 1e-9)
	assert.Equal(t, "high", rec.RiskLevel)
	assert.True(t, rec.HasOpportunity)
}

func TestRecommend_NoneWhenWellUtilized(t *testing.T) {
	a := newAnalyzer()
	meter := &models.MeterPoint{ID: 1, DeclaredDemand: 500, DemandType: models.DemandTypeKW}
	// util = 480/500 = 0.96，波动小
	history := historyOf(470, 475, 480, 478, 472, 476)

	rec, err := a.Recommend(meter, history, 38, 2.0)
	require.NoError(t, err)

	assert.Equal(t, demand.RecommendNone, rec.Type)
	assert.False(t, rec.HasOpportunity)
}

func TestRecommend_RequiresHistory(t *testing.T) {
	a := newAnalyzer()
	meter := &models.MeterPoint{ID: 1, DeclaredDemand: 500}

	_, err := a.Recommend(meter, historyOf(480, 490), 38, 2.0)
	assert.Error(t, err)

	_, err = a.Recommend(&models.MeterPoint{ID: 2}, historyOf(480, 490, 470), 38, 2.0)
	assert.Error(t, err, "declared demand required")
}
