package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// PricingRepository 电价配置仓库
type PricingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPricingRepository 创建电价仓库
func NewPricingRepository(db *sql.DB, logger *zap.Logger) *PricingRepository {
	return &PricingRepository{db: db, logger: logger}
}

// ListIntervals 查询指定日期生效的峰谷时段
func (r *PricingRepository) ListIntervals(ctx context.Context, date time.Time) ([]*models.TariffInterval, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, pricing_name, period_type, start_time, end_time, price,
			effective_date, expire_date
		FROM electricity_pricing
		WHERE is_enabled = true
		  AND effective_date <= $1
		  AND (expire_date IS NULL OR expire_date >= $1)
		ORDER BY start_time`,
		date)
	if err != nil {
		return nil, fmt.Errorf("failed to list tariff intervals: %w", err)
	}
	defer rows.Close()

	var result []*models.TariffInterval
	for rows.Next() {
		var t models.TariffInterval
		var expireDate sql.NullTime
		if err := rows.Scan(&t.ID, &t.PricingName, &t.PeriodType, &t.StartTime, &t.EndTime,
			&t.Price, &t.EffectiveDate, &expireDate); err != nil {
			return nil, fmt.Errorf("failed to scan tariff interval: %w", err)
		}
		t.IsEnabled = true
		if expireDate.Valid {
			t.ExpireDate = &expireDate.Time
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

// GetActiveConfig 查询指定日期生效的综合电价配置
func (r *PricingRepository) GetActiveConfig(ctx context.Context, date time.Time) (*models.PricingConfig, error) {
	query := `
		SELECT id, config_name, billing_mode, demand_price, declared_demand,
			over_demand_multiplier, capacity_price, transformer_capacity,
			power_factor_baseline, power_factor_rules,
			transmission_fee, government_fund, auxiliary_fee, other_fee,
			effective_date, expire_date
		FROM pricing_configs
		WHERE is_enabled = true
		  AND effective_date <= $1
		  AND (expire_date IS NULL OR expire_date >= $1)
		ORDER BY effective_date DESC
		LIMIT 1`

	var c models.PricingConfig
	var rules []byte
	var expireDate sql.NullTime
	err := r.db.QueryRowContext(ctx, query, date).Scan(
		&c.ID, &c.ConfigName, &c.BillingMode, &c.DemandPrice, &c.DeclaredDemand,
		&c.OverDemandMultiplier, &c.CapacityPrice, &c.TransformerCapacity,
		&c.PowerFactorBaseline, &rules,
		&c.TransmissionFee, &c.GovernmentFund, &c.AuxiliaryFee, &c.OtherFee,
		&c.EffectiveDate, &expireDate,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pricing config for %s: %w", date.Format("2006-01-02"), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing config: %w", err)
	}

	c.IsEnabled = true
	if expireDate.Valid {
		c.ExpireDate = &expireDate.Time
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &c.PowerFactorRules); err != nil {
			return nil, fmt.Errorf("failed to parse power factor rules: %w", err)
		}
	}
	return &c, nil
}

// UpdateConfig 更新综合电价配置
func (r *PricingRepository) UpdateConfig(ctx context.Context, c *models.PricingConfig) error {
	rules, err := json.Marshal(c.PowerFactorRules)
	if err != nil {
		return fmt.Errorf("failed to marshal power factor rules: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE pricing_configs SET
			config_name = $2, billing_mode = $3, demand_price = $4, declared_demand = $5,
			over_demand_multiplier = $6, capacity_price = $7, transformer_capacity = $8,
			power_factor_baseline = $9, power_factor_rules = $10,
			transmission_fee = $11, government_fund = $12, auxiliary_fee = $13, other_fee = $14
		WHERE id = $1`,
		c.ID, c.ConfigName, c.BillingMode, c.DemandPrice, c.DeclaredDemand,
		c.OverDemandMultiplier, c.CapacityPrice, c.TransformerCapacity,
		c.PowerFactorBaseline, rules,
		c.TransmissionFee, c.GovernmentFund, c.AuxiliaryFee, c.OtherFee,
	)
	if err != nil {
		return fmt.Errorf("failed to update pricing config: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("pricing config %d: %w", c.ID, ErrNotFound)
	}
	return nil
}

// ReplaceIntervals 整组替换某电价方案的峰谷时段（单事务）
func (r *PricingRepository) ReplaceIntervals(ctx context.Context, pricingName string, intervals []*models.TariffInterval) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM electricity_pricing WHERE pricing_name = $1`, pricingName); err != nil {
		return fmt.Errorf("failed to clear intervals: %w", err)
	}

	for _, iv := range intervals {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO electricity_pricing (
				pricing_name, period_type, start_time, end_time, price,
				effective_date, expire_date, is_enabled
			) VALUES ($1,$2,$3,$4,$5,$6,$7,true)`,
			pricingName, iv.PeriodType, iv.StartTime, iv.EndTime, iv.Price,
			iv.EffectiveDate, nullTime(iv.ExpireDate))
		if err != nil {
			return fmt.Errorf("failed to insert interval: %w", err)
		}
	}

	return tx.Commit()
}
