package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// EnergyRepository 能耗统计仓库（日/月能耗、功率快照、PUE）
type EnergyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEnergyRepository 创建能耗仓库
func NewEnergyRepository(db *sql.DB, logger *zap.Logger) *EnergyRepository {
	return &EnergyRepository{db: db, logger: logger}
}

// ListEnergyDaily 查询最近 N 天日能耗（升序）
func (r *EnergyRepository) ListEnergyDaily(ctx context.Context, days int) ([]*models.EnergyDaily, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meter_point_id, stat_date, total_energy, sharp_energy, peak_energy,
			normal_energy, valley_energy, deep_energy, max_power, avg_power, energy_cost,
			COALESCE(pue, 0)
		FROM energy_daily
		WHERE stat_date >= CURRENT_DATE - $1::int
		ORDER BY stat_date`,
		days)
	if err != nil {
		return nil, fmt.Errorf("failed to list energy daily: %w", err)
	}
	defer rows.Close()

	return scanEnergyDailyRows(rows)
}

// ListEnergyDailyRange 查询区间日能耗（升序）
func (r *EnergyRepository) ListEnergyDailyRange(ctx context.Context, start, end time.Time) ([]*models.EnergyDaily, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meter_point_id, stat_date, total_energy, sharp_energy, peak_energy,
			normal_energy, valley_energy, deep_energy, max_power, avg_power, energy_cost,
			COALESCE(pue, 0)
		FROM energy_daily
		WHERE stat_date >= $1 AND stat_date <= $2
		ORDER BY stat_date`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list energy daily range: %w", err)
	}
	defer rows.Close()

	return scanEnergyDailyRows(rows)
}

func scanEnergyDailyRows(rows *sql.Rows) ([]*models.EnergyDaily, error) {
	var result []*models.EnergyDaily
	for rows.Next() {
		var e models.EnergyDaily
		var meterID sql.NullInt64
		if err := rows.Scan(&e.ID, &meterID, &e.StatDate, &e.TotalEnergy, &e.SharpEnergy,
			&e.PeakEnergy, &e.NormalEnergy, &e.ValleyEnergy, &e.DeepEnergy,
			&e.MaxPower, &e.AvgPower, &e.EnergyCost, &e.PUE); err != nil {
			return nil, fmt.Errorf("failed to scan energy daily: %w", err)
		}
		if meterID.Valid {
			e.MeterPointID = &meterID.Int64
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

// ListEnergyMonthly 查询最近 N 个月月能耗（升序）
func (r *EnergyRepository) ListEnergyMonthly(ctx context.Context, months int) ([]*models.EnergyMonthly, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meter_point_id, stat_year, stat_month, total_energy, sharp_energy,
			peak_energy, normal_energy, valley_energy, deep_energy, max_demand, energy_cost,
			COALESCE(avg_pue, 0)
		FROM energy_monthly
		ORDER BY stat_year DESC, stat_month DESC
		LIMIT $1`,
		months)
	if err != nil {
		return nil, fmt.Errorf("failed to list energy monthly: %w", err)
	}
	defer rows.Close()

	var result []*models.EnergyMonthly
	for rows.Next() {
		var e models.EnergyMonthly
		var meterID sql.NullInt64
		if err := rows.Scan(&e.ID, &meterID, &e.StatYear, &e.StatMonth, &e.TotalEnergy,
			&e.SharpEnergy, &e.PeakEnergy, &e.NormalEnergy, &e.ValleyEnergy, &e.DeepEnergy,
			&e.MaxDemand, &e.EnergyCost, &e.AvgPUE); err != nil {
			return nil, fmt.Errorf("failed to scan energy monthly: %w", err)
		}
		if meterID.Valid {
			e.MeterPointID = &meterID.Int64
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// ListPowerSnapshots 查询最近的功率快照（升序）
func (r *EnergyRepository) ListPowerSnapshots(ctx context.Context, since time.Time) ([]*models.PowerSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, meter_point_id, timestamp, active_power, reactive_power,
			apparent_power, power_factor, COALESCE(demand_15min, 0), COALESCE(time_period, '')
		FROM power_curve_data
		WHERE timestamp >= $1
		ORDER BY timestamp`,
		since)
	if err != nil {
		return nil, fmt.Errorf("failed to list power snapshots: %w", err)
	}
	defer rows.Close()

	var result []*models.PowerSnapshot
	for rows.Next() {
		var s models.PowerSnapshot
		var deviceID, meterID sql.NullInt64
		if err := rows.Scan(&deviceID, &meterID, &s.Timestamp, &s.ActivePower, &s.ReactivePower,
			&s.ApparentPower, &s.PowerFactor, &s.Demand15Min, &s.TimePeriod); err != nil {
			return nil, fmt.Errorf("failed to scan power snapshot: %w", err)
		}
		if deviceID.Valid {
			s.DeviceID = &deviceID.Int64
		}
		if meterID.Valid {
			s.MeterPointID = &meterID.Int64
		}
		result = append(result, &s)
	}
	return result, rows.Err()
}

// ListPUESamples 查询最近 N 天的 PUE 记录（升序）
func (r *EnergyRepository) ListPUESamples(ctx context.Context, days int) ([]*models.PUESample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, record_time, total_power, it_power, cooling_power, pue
		FROM pue_history
		WHERE record_time >= NOW() - ($1 || ' days')::interval
		ORDER BY record_time`,
		days)
	if err != nil {
		return nil, fmt.Errorf("failed to list pue samples: %w", err)
	}
	defer rows.Close()

	var result []*models.PUESample
	for rows.Next() {
		var p models.PUESample
		if err := rows.Scan(&p.ID, &p.RecordTime, &p.TotalPower, &p.ITPower, &p.CoolingPower, &p.PUE); err != nil {
			return nil, fmt.Errorf("failed to scan pue sample: %w", err)
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}
