package simulation_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
	"github.com/proecheng/dcim-platform-sub000/internal/simulation"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

func setupSimulator(t *testing.T) (*simulation.Simulator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	metersRepo := repository.NewMetersRepository(db, logger)
	devicesRepo := repository.NewDevicesRepository(db, logger)
	pricingRepo := repository.NewPricingRepository(db, logger)
	tariffSvc := tariff.NewService(pricingRepo, logger)

	sim := simulation.NewSimulator(metersRepo, devicesRepo, tariffSvc, nil, logger)
	return sim, mock
}

func expectTariffSnapshot(mock sqlmock.Sqlmock) {
	eff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)
	mock.ExpectQuery(`SELECT\s+id, pricing_name`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "pricing_name", "period_type", "start_time", "end_time", "price",
			"effective_date", "expire_date",
		}).
			AddRow(1, "standard", models.PeriodValley, "00:00", "08:00", 0.4, eff, nil).
			AddRow(2, "standard", models.PeriodPeak, "08:00", "22:00", 1.2, eff, nil).
			AddRow(3, "standard", models.PeriodValley, "22:00", "00:00", 0.4, eff, nil))

	mock.ExpectQuery(`SELECT\s+id, config_name`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "config_name", "billing_mode", "demand_price", "declared_demand",
			"over_demand_multiplier", "capacity_price", "transformer_capacity",
			"power_factor_baseline", "power_factor_rules",
			"transmission_fee", "government_fund", "auxiliary_fee", "other_fee",
			"effective_date", "expire_date",
		}).AddRow(1, "standard", models.BillingModeDemand, 38.0, 800.0,
			2.0, 28.0, 1000.0, 0.90, []byte(`[]`), 0.15, 0.05, 0.02, 0.0, eff, nil))
}

func deviceRow(rows *sqlmock.Rows, id int64, code, name string, rated float64) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, code, name, "IT", rated, 0.95, 0.92,
		nil, nil, nil, nil, nil, nil, nil, true, false, "A1", true, now, now)
}

func expectShiftableDevices(mock sqlmock.Sqlmock) {
	deviceCols := []string{
		"id", "device_code", "device_name", "device_type", "rated_power", "power_factor", "efficiency",
		"circuit_id", "monitor_device_id", "power_point_id", "current_point_id", "energy_point_id",
		"voltage_point_id", "pf_point_id", "is_it_load", "is_critical", "area_code", "is_enabled",
		"created_at", "updated_at",
	}
	rows := sqlmock.NewRows(deviceCols)
	rows = deviceRow(rows, 1, "PUMP-001", "循环泵1", 120)
	rows = deviceRow(rows, 2, "PUMP-002", "循环泵2", 80)
	mock.ExpectQuery(`FROM power_devices WHERE is_enabled`).WillReturnRows(rows)

	now := time.Now()
	shiftRows := sqlmock.NewRows([]string{
		"id", "device_id", "is_shiftable", "shiftable_power_ratio", "is_critical",
		"allowed_shift_hours", "forbidden_shift_hours",
		"min_continuous_runtime", "max_shift_duration", "created_at", "updated_at",
	}).
		AddRow(1, 1, true, 0.8, false, []byte(`[]`), []byte(`[]`), 0, 0, now, now).
		AddRow(2, 2, true, 0.5, false, []byte(`[]`), []byte(`[]`), 0, 0, now, now)
	mock.ExpectQuery(`FROM device_shift_configs`).WillReturnRows(shiftRows)
}

func TestSimulate_PeakShift(t *testing.T) {
	sim, mock := setupSimulator(t)
	expectTariffSnapshot(mock)
	expectShiftableDevices(mock)

	result, err := sim.Simulate(context.Background(), &simulation.Request{
		Type:         simulation.ModePeakShift,
		ShiftPower:   100,
		ShiftHours:   4,
		SourcePeriod: models.PeriodPeak,
		TargetPeriod: models.PeriodValley,
		WorkingDays:  300,
	})
	require.NoError(t, err)

	assert.True(t, result.IsFeasible)
	// 100 × 4 × (1.2−0.4) = 320 元/日
	assert.InDelta(t, 320, result.DailySaving, 1e-9)
	// 320 × 300 = 96000 元/年
	assert.InDelta(t, 96000, result.AnnualSaving, 1e-9)
	// 可移合计 120×0.8+80×0.5 = 136 ≥ 100，覆盖充分
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
	assert.Equal(t, simulation.BandHigh, result.ConfidenceBand)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimulate_PeakShift_ExceedsShiftableCapacity(t *testing.T) {
	sim, mock := setupSimulator(t)
	expectTariffSnapshot(mock)
	expectShiftableDevices(mock)

	result, err := sim.Simulate(context.Background(), &simulation.Request{
		Type:       simulation.ModePeakShift,
		ShiftPower: 500,
		ShiftHours: 4,
	})
	require.NoError(t, err)

	// 请求 500 kW 超过全站可移容量 136 kW：不可行，置信度压到 0.3
	assert.False(t, result.IsFeasible)
	assert.InDelta(t, 0.3, result.Confidence, 1e-9)
	assert.Equal(t, simulation.BandVeryLow, result.ConfidenceBand)
	assert.NotEmpty(t, result.Warnings)
}

func TestSimulate_PeakShift_FeasibleAtExactCapacity(t *testing.T) {
	sim, mock := setupSimulator(t)
	expectTariffSnapshot(mock)
	expectShiftableDevices(mock)

	result, err := sim.Simulate(context.Background(), &simulation.Request{
		Type:       simulation.ModePeakShift,
		ShiftPower: 136, // 恰等于 120×0.8 + 80×0.5
		ShiftHours: 4,
	})
	require.NoError(t, err)

	assert.True(t, result.IsFeasible)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
}

func TestSimulate_PeakShift_NoGainWhenPricesInverted(t *testing.T) {
	sim, mock := setupSimulator(t)
	expectTariffSnapshot(mock)

	result, err := sim.Simulate(context.Background(), &simulation.Request{
		Type:         simulation.ModePeakShift,
		ShiftPower:   100,
		ShiftHours:   4,
		SourcePeriod: models.PeriodValley,
		TargetPeriod: models.PeriodPeak,
	})
	require.NoError(t, err)

	assert.False(t, result.IsFeasible)
	assert.Equal(t, simulation.BandVeryLow, result.ConfidenceBand)
}

func TestSimulate_ValidatesInput(t *testing.T) {
	sim, _ := setupSimulator(t)

	_, err := sim.Simulate(context.Background(), &simulation.Request{Type: simulation.ModePeakShift})
	assert.Error(t, err)

	_, err = sim.Simulate(context.Background(), &simulation.Request{Type: "unknown"})
	assert.Error(t, err)

	_, err = sim.Simulate(context.Background(), &simulation.Request{Type: simulation.ModeCombined})
	assert.Error(t, err, "combined requires components")
}
