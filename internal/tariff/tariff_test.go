package tariff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

func testSnapshot() *tariff.Snapshot {
	return &tariff.Snapshot{
		Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local),
		Intervals: []*models.TariffInterval{
			{PeriodType: models.PeriodValley, StartTime: "00:00", EndTime: "08:00", Price: 0.4},
			{PeriodType: models.PeriodFlat, StartTime: "08:00", EndTime: "10:00", Price: 0.8},
			{PeriodType: models.PeriodPeak, StartTime: "10:00", EndTime: "15:00", Price: 1.2},
			{PeriodType: models.PeriodFlat, StartTime: "15:00", EndTime: "18:00", Price: 0.8},
			{PeriodType: models.PeriodPeak, StartTime: "18:00", EndTime: "22:00", Price: 1.2},
			{PeriodType: models.PeriodValley, StartTime: "22:00", EndTime: "00:00", Price: 0.4},
		},
		Config: tariff.DefaultPricingConfig(),
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 1, hour, minute, 0, 0, time.Local)
}

func TestPeriodAt(t *testing.T) {
	snap := testSnapshot()

	assert.Equal(t, models.PeriodValley, snap.PeriodAt(at(0, 0)))
	assert.Equal(t, models.PeriodValley, snap.PeriodAt(at(7, 59)))
	assert.Equal(t, models.PeriodFlat, snap.PeriodAt(at(8, 0)))
	assert.Equal(t, models.PeriodPeak, snap.PeriodAt(at(10, 0)))
	assert.Equal(t, models.PeriodPeak, snap.PeriodAt(at(21, 59)))
	assert.Equal(t, models.PeriodValley, snap.PeriodAt(at(23, 30)))
}

func TestPeriodAt_NoIntervalsFallsBackToFlat(t *testing.T) {
	snap := &tariff.Snapshot{Config: tariff.DefaultPricingConfig()}
	assert.Equal(t, models.PeriodFlat, snap.PeriodAt(at(12, 0)))
}

func TestPriceFor(t *testing.T) {
	snap := testSnapshot()

	assert.InDelta(t, 1.2, snap.PriceFor(models.PeriodPeak), 1e-9)
	assert.InDelta(t, 0.4, snap.PriceFor(models.PeriodValley), 1e-9)
	// 未配置的时段走缺省价格表
	assert.InDelta(t, tariff.DefaultPeriodPrices[models.PeriodSharp], snap.PriceFor(models.PeriodSharp), 1e-9)
}

func TestNormalizePeriod(t *testing.T) {
	assert.Equal(t, models.PeriodFlat, tariff.NormalizePeriod("normal"))
	assert.Equal(t, models.PeriodPeak, tariff.NormalizePeriod("高峰"))
	assert.Equal(t, models.PeriodSharp, tariff.NormalizePeriod("尖峰"))
	assert.Equal(t, "peak", tariff.NormalizePeriod("peak"))
}

func TestCalculateBill_DemandModeWithOverDemand(t *testing.T) {
	snap := testSnapshot()
	snap.Config = &models.PricingConfig{
		BillingMode:          models.BillingModeDemand,
		DeclaredDemand:       500,
		DemandPrice:          40,
		OverDemandMultiplier: 2,
		PowerFactorRules: []models.PowerFactorRule{
			{Min: 0.90, Max: 0.95, Rate: 0.5},
		},
	}

	bill := tariff.CalculateBill(snap, tariff.BillInput{
		EnergyByPeriod: map[string]float64{
			models.PeriodPeak:   200,
			models.PeriodFlat:   300,
			models.PeriodValley: 150,
		},
		MaxDemandKW:    550,
		AvgPowerFactor: 0.92,
	})

	// 200×1.2 + 300×0.8 + 150×0.4 = 540
	assert.InDelta(t, 540, bill.EnergyCharge, 1e-9)
	// 500×40 + 50×40×2 = 24000
	assert.InDelta(t, 24000, bill.BasicCharge, 1e-9)
	assert.InDelta(t, 50, bill.OverDemandKW, 1e-9)
	// 0.5% × (540+24000) = 122.7
	assert.InDelta(t, 122.7, bill.PFAdjustment, 1e-9)
	assert.InDelta(t, 24662.7, bill.OptimizableTotal, 1e-9)
	assert.InDelta(t, 650, bill.TotalEnergy, 1e-9)
}

func TestCalculateBill_CapacityMode(t *testing.T) {
	snap := testSnapshot()
	snap.Config = &models.PricingConfig{
		BillingMode:         models.BillingModeCapacity,
		TransformerCapacity: 1000,
		CapacityPrice:       28,
	}

	bill := tariff.CalculateBill(snap, tariff.BillInput{
		EnergyByPeriod: map[string]float64{models.PeriodFlat: 100},
		MaxDemandKW:    900,
	})

	assert.InDelta(t, 28000, bill.BasicCharge, 1e-9)
	assert.Zero(t, bill.OverDemandKW)
}

// 同快照同输入必得同结果
func TestCalculateBill_Deterministic(t *testing.T) {
	snap := testSnapshot()
	input := tariff.BillInput{
		EnergyByPeriod: map[string]float64{models.PeriodPeak: 123.4, models.PeriodValley: 56.7},
		MaxDemandKW:    420,
		AvgPowerFactor: 0.93,
	}

	first := tariff.CalculateBill(snap, input)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, tariff.CalculateBill(snap, input))
	}
}

func TestCalculateShiftSaving(t *testing.T) {
	snap := testSnapshot()

	// 100kW × 4h × (1.2−0.4) × 300 = 96000
	saving := tariff.CalculateShiftSaving(snap, 100, 4, models.PeriodPeak, models.PeriodValley, 300)
	assert.InDelta(t, 96000, saving, 1e-9)

	// 单日口径
	daily := tariff.CalculateShiftSaving(snap, 100, 4, models.PeriodPeak, models.PeriodValley, 1)
	assert.InDelta(t, 320, daily, 1e-9)
}

func TestWeightedAvgPrice(t *testing.T) {
	snap := testSnapshot()
	avg := snap.WeightedAvgPrice()

	// 尖1.5×5% + 峰1.2×25% + 平0.8×40% + 谷0.4×25% + 深谷0.2×5% = 0.805
	assert.InDelta(t, 0.805, avg, 1e-6)
}
