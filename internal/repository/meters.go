package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// MetersRepository 计量点与需量历史仓库
type MetersRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMetersRepository 创建计量点仓库
func NewMetersRepository(db *sql.DB, logger *zap.Logger) *MetersRepository {
	return &MetersRepository{db: db, logger: logger}
}

const meterColumns = `
	id, meter_code, meter_name, transformer_id, declared_demand, demand_type,
	demand_period, customer_no, pricing_config_id, is_enabled, created_at, updated_at`

func scanMeter(row interface{ Scan(...interface{}) error }) (*models.MeterPoint, error) {
	var m models.MeterPoint
	var transformerID, pricingConfigID sql.NullInt64
	var customerNo sql.NullString

	err := row.Scan(
		&m.ID, &m.MeterCode, &m.MeterName, &transformerID, &m.DeclaredDemand, &m.DemandType,
		&m.DemandPeriod, &customerNo, &pricingConfigID, &m.IsEnabled, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if transformerID.Valid {
		m.TransformerID = &transformerID.Int64
	}
	if pricingConfigID.Valid {
		m.PricingConfigID = &pricingConfigID.Int64
	}
	m.CustomerNo = customerNo.String
	return &m, nil
}

// GetMeterPoint 获取计量点
func (r *MetersRepository) GetMeterPoint(ctx context.Context, id int64) (*models.MeterPoint, error) {
	query := `SELECT ` + meterColumns + ` FROM meter_points WHERE id = $1`
	m, err := scanMeter(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("meter point %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meter point: %w", err)
	}
	return m, nil
}

// ListMeterPoints 查询启用的计量点
func (r *MetersRepository) ListMeterPoints(ctx context.Context) ([]*models.MeterPoint, error) {
	query := `SELECT ` + meterColumns + ` FROM meter_points WHERE is_enabled = true ORDER BY meter_code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list meter points: %w", err)
	}
	defer rows.Close()

	var result []*models.MeterPoint
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meter point: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// UpdateDeclaredDemand 更新申报需量
func (r *MetersRepository) UpdateDeclaredDemand(ctx context.Context, meterID int64, declared float64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE meter_points SET declared_demand = $2, updated_at = NOW() WHERE id = $1`,
		meterID, declared)
	if err != nil {
		return fmt.Errorf("failed to update declared demand: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("meter point %d: %w", meterID, ErrNotFound)
	}
	return nil
}

// ListDemandHistory 查询计量点最近 N 个月需量历史（按年月升序）
func (r *MetersRepository) ListDemandHistory(ctx context.Context, meterID int64, months int) ([]*models.DemandHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meter_point_id, stat_year, stat_month, declared_demand, max_demand,
			avg_demand, demand_95th, over_declared_times, demand_cost
		FROM demand_history
		WHERE meter_point_id = $1
		ORDER BY stat_year DESC, stat_month DESC
		LIMIT $2`,
		meterID, months)
	if err != nil {
		return nil, fmt.Errorf("failed to list demand history: %w", err)
	}
	defer rows.Close()

	var result []*models.DemandHistory
	for rows.Next() {
		var d models.DemandHistory
		if err := rows.Scan(&d.ID, &d.MeterPointID, &d.StatYear, &d.StatMonth, &d.DeclaredDemand,
			&d.MaxDemand, &d.AvgDemand, &d.Demand95th, &d.OverDeclaredTimes, &d.DemandCost); err != nil {
			return nil, fmt.Errorf("failed to scan demand history: %w", err)
		}
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 倒序查询取最近N个月，返回前翻转为升序
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// ListAllDemandHistory 查询全部计量点需量历史，键为计量点ID
func (r *MetersRepository) ListAllDemandHistory(ctx context.Context, months int) (map[int64][]*models.DemandHistory, error) {
	meters, err := r.ListMeterPoints(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[int64][]*models.DemandHistory, len(meters))
	for _, m := range meters {
		history, err := r.ListDemandHistory(ctx, m.ID, months)
		if err != nil {
			return nil, err
		}
		result[m.ID] = history
	}
	return result, nil
}
