package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// DevicesRepository 用能设备仓库（设备、移峰配置、负载调节配置）
type DevicesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDevicesRepository 创建设备仓库
func NewDevicesRepository(db *sql.DB, logger *zap.Logger) *DevicesRepository {
	return &DevicesRepository{db: db, logger: logger}
}

const deviceColumns = `
	id, device_code, device_name, device_type, rated_power, power_factor, efficiency,
	circuit_id, monitor_device_id, power_point_id, current_point_id, energy_point_id,
	voltage_point_id, pf_point_id, is_it_load, is_critical, area_code, is_enabled,
	created_at, updated_at`

func scanDevice(row interface{ Scan(...interface{}) error }) (*models.PowerDevice, error) {
	var d models.PowerDevice
	var circuitID, monitorID, powerPt, currentPt, energyPt, voltagePt, pfPt sql.NullInt64
	var areaCode sql.NullString

	err := row.Scan(
		&d.ID, &d.DeviceCode, &d.DeviceName, &d.DeviceType, &d.RatedPower, &d.PowerFactor, &d.Efficiency,
		&circuitID, &monitorID, &powerPt, &currentPt, &energyPt,
		&voltagePt, &pfPt, &d.IsITLoad, &d.IsCritical, &areaCode, &d.IsEnabled,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	setOpt := func(v sql.NullInt64, dst **int64) {
		if v.Valid {
			*dst = &v.Int64
		}
	}
	setOpt(circuitID, &d.CircuitID)
	setOpt(monitorID, &d.MonitorDeviceID)
	setOpt(powerPt, &d.PowerPointID)
	setOpt(currentPt, &d.CurrentPointID)
	setOpt(energyPt, &d.EnergyPointID)
	setOpt(voltagePt, &d.VoltagePointID)
	setOpt(pfPt, &d.PFPointID)
	d.AreaCode = areaCode.String

	return &d, nil
}

// GetDevice 获取设备
func (r *DevicesRepository) GetDevice(ctx context.Context, id int64) (*models.PowerDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM power_devices WHERE id = $1`
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

// ListEnabledDevices 查询全部启用设备
func (r *DevicesRepository) ListEnabledDevices(ctx context.Context) ([]*models.PowerDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM power_devices WHERE is_enabled = true ORDER BY device_code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var result []*models.PowerDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// UpdatePointLinks 更新设备的点位绑定（匹配器使用）
func (r *DevicesRepository) UpdatePointLinks(ctx context.Context, deviceID int64, powerPt, currentPt, energyPt *int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE power_devices SET
			power_point_id = $2, current_point_id = $3, energy_point_id = $4, updated_at = NOW()
		WHERE id = $1`,
		deviceID, powerPt, currentPt, energyPt)
	if err != nil {
		return fmt.Errorf("failed to update point links: %w", err)
	}
	return nil
}

// ============================================
// 移峰配置
// ============================================

// GetShiftConfigs 查询全部设备移峰配置，键为设备ID
func (r *DevicesRepository) GetShiftConfigs(ctx context.Context) (map[int64]*models.DeviceShiftConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, is_shiftable, shiftable_power_ratio, is_critical,
			allowed_shift_hours, forbidden_shift_hours,
			min_continuous_runtime, max_shift_duration, created_at, updated_at
		FROM device_shift_configs`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shift configs: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]*models.DeviceShiftConfig)
	for rows.Next() {
		var c models.DeviceShiftConfig
		var allowed, forbidden []byte
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.IsShiftable, &c.ShiftablePowerRatio, &c.IsCritical,
			&allowed, &forbidden, &c.MinContinuousRuntime, &c.MaxShiftDuration,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shift config: %w", err)
		}
		c.AllowedShiftHours = allowed
		c.ForbiddenShiftHours = forbidden
		result[c.DeviceID] = &c
	}
	return result, rows.Err()
}

// ============================================
// 负载调节配置
// ============================================

func scanRegulation(row interface{ Scan(...interface{}) error }) (*models.LoadRegulationConfig, error) {
	var c models.LoadRegulationConfig
	var unit sql.NullString
	var curve []byte
	err := row.Scan(
		&c.ID, &c.DeviceID, &c.RegulationType, &c.MinValue, &c.MaxValue,
		&c.CurrentValue, &c.DefaultValue, &c.StepSize, &unit,
		&c.PowerFactor, &c.BasePower, &curve, &c.Priority, &c.ComfortImpact,
		&c.IsEnabled, &c.IsAuto, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Unit = unit.String
	if len(curve) > 0 {
		if err := json.Unmarshal(curve, &c.PowerCurve); err != nil {
			return nil, fmt.Errorf("failed to parse power curve: %w", err)
		}
	}
	return &c, nil
}

const regulationColumns = `
	id, device_id, regulation_type, min_value, max_value, current_value, default_value,
	step_size, unit, power_factor, base_power, power_curve, priority, comfort_impact,
	is_enabled, is_auto, updated_at`

// GetRegulationConfig 获取设备某调节类型的配置
func (r *DevicesRepository) GetRegulationConfig(ctx context.Context, deviceID int64, regulationType string) (*models.LoadRegulationConfig, error) {
	query := `SELECT ` + regulationColumns + `
		FROM load_regulation_configs
		WHERE device_id = $1 AND regulation_type = $2 AND is_enabled = true`

	c, err := scanRegulation(r.db.QueryRowContext(ctx, query, deviceID, regulationType))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("regulation config for device %d type %s: %w", deviceID, regulationType, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get regulation config: %w", err)
	}
	return c, nil
}

// ListRegulationConfigs 查询全部启用的调节配置
func (r *DevicesRepository) ListRegulationConfigs(ctx context.Context) ([]*models.LoadRegulationConfig, error) {
	query := `SELECT ` + regulationColumns + `
		FROM load_regulation_configs WHERE is_enabled = true ORDER BY priority DESC, device_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list regulation configs: %w", err)
	}
	defer rows.Close()

	var result []*models.LoadRegulationConfig
	for rows.Next() {
		c, err := scanRegulation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan regulation config: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// UpdateRegulationValue 更新当前调节值（自动控制执行后回写意图状态）
func (r *DevicesRepository) UpdateRegulationValue(ctx context.Context, deviceID int64, regulationType string, value float64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE load_regulation_configs SET current_value = $3, updated_at = NOW()
		WHERE device_id = $1 AND regulation_type = $2`,
		deviceID, regulationType, value)
	if err != nil {
		return fmt.Errorf("failed to update regulation value: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("regulation config for device %d type %s: %w", deviceID, regulationType, ErrNotFound)
	}
	return nil
}
