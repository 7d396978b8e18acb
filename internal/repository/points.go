package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// PointsRepository 点位仓库
type PointsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPointsRepository 创建点位仓库
func NewPointsRepository(db *sql.DB, logger *zap.Logger) *PointsRepository {
	return &PointsRepository{db: db, logger: logger}
}

const pointColumns = `
	id, point_code, point_name, point_type, device_id, device_type, area_code,
	unit, min_range, max_range, precision_digits, collect_interval, store_interval,
	is_enabled, is_virtual, calc_formula, sort_order, energy_device_id,
	created_at, updated_at`

func scanPoint(row interface{ Scan(...interface{}) error }) (*models.Point, error) {
	var p models.Point
	var deviceID, energyDeviceID sql.NullInt64
	var deviceType, areaCode, unit, calcFormula sql.NullString

	err := row.Scan(
		&p.ID, &p.PointCode, &p.PointName, &p.PointType,
		&deviceID, &deviceType, &areaCode,
		&unit, &p.MinRange, &p.MaxRange, &p.Precision,
		&p.CollectInterval, &p.StoreInterval,
		&p.IsEnabled, &p.IsVirtual, &calcFormula, &p.SortOrder, &energyDeviceID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if deviceID.Valid {
		p.DeviceID = &deviceID.Int64
	}
	if energyDeviceID.Valid {
		p.EnergyDeviceID = &energyDeviceID.Int64
	}
	p.DeviceType = deviceType.String
	p.AreaCode = areaCode.String
	p.Unit = unit.String
	p.CalcFormula = calcFormula.String

	return &p, nil
}

// GetPoint 根据 ID 获取点位
func (r *PointsRepository) GetPoint(ctx context.Context, id int64) (*models.Point, error) {
	query := `SELECT ` + pointColumns + ` FROM points WHERE id = $1`

	p, err := scanPoint(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("point %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get point: %w", err)
	}
	return p, nil
}

// GetPointByCode 根据编码获取点位
func (r *PointsRepository) GetPointByCode(ctx context.Context, code string) (*models.Point, error) {
	query := `SELECT ` + pointColumns + ` FROM points WHERE point_code = $1`

	p, err := scanPoint(r.db.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("point %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get point by code: %w", err)
	}
	return p, nil
}

// PointFilters 点位查询过滤条件
type PointFilters struct {
	PointType *string
	AreaCode  *string
	DeviceID  *int64
	IsEnabled *bool
	Keyword   *string // 编码/名称模糊匹配
}

// ListPoints 按条件查询点位
func (r *PointsRepository) ListPoints(ctx context.Context, filters PointFilters) ([]*models.Point, error) {
	var conds []string
	var args []interface{}
	argn := 1

	if filters.PointType != nil {
		conds = append(conds, fmt.Sprintf("point_type = $%d", argn))
		args = append(args, *filters.PointType)
		argn++
	}
	if filters.AreaCode != nil {
		conds = append(conds, fmt.Sprintf("area_code = $%d", argn))
		args = append(args, *filters.AreaCode)
		argn++
	}
	if filters.DeviceID != nil {
		conds = append(conds, fmt.Sprintf("device_id = $%d", argn))
		args = append(args, *filters.DeviceID)
		argn++
	}
	if filters.IsEnabled != nil {
		conds = append(conds, fmt.Sprintf("is_enabled = $%d", argn))
		args = append(args, *filters.IsEnabled)
		argn++
	}
	if filters.Keyword != nil {
		conds = append(conds, fmt.Sprintf("(point_code ILIKE $%d OR point_name ILIKE $%d)", argn, argn))
		args = append(args, "%"+*filters.Keyword+"%")
		argn++
	}

	query := `SELECT ` + pointColumns + ` FROM points`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY sort_order, point_code"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list points: %w", err)
	}
	defer rows.Close()

	var points []*models.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListEnabledPoints 查询所有启用点位（采集周期快照）
func (r *PointsRepository) ListEnabledPoints(ctx context.Context) ([]*models.Point, error) {
	enabled := true
	return r.ListPoints(ctx, PointFilters{IsEnabled: &enabled})
}

// ListPointsByIDs 按 ID 列表查询点位
func (r *PointsRepository) ListPointsByIDs(ctx context.Context, ids []int64) ([]*models.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + pointColumns + ` FROM points WHERE id = ANY($1) ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list points by ids: %w", err)
	}
	defer rows.Close()

	var points []*models.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// CreatePoint 创建点位，同时初始化实时值行
func (r *PointsRepository) CreatePoint(ctx context.Context, p *models.Point) (int64, error) {
	if p.PointCode == "" || p.PointName == "" {
		return 0, fmt.Errorf("point_code and point_name are required: %w", ErrValidation)
	}
	if p.PointType == models.PointTypeAI && p.MinRange >= p.MaxRange {
		return 0, fmt.Errorf("min_range must be less than max_range: %w", ErrValidation)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO points (
			point_code, point_name, point_type, device_id, device_type, area_code,
			unit, min_range, max_range, precision_digits, collect_interval, store_interval,
			is_enabled, is_virtual, calc_formula, sort_order, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())
		RETURNING id`,
		p.PointCode, p.PointName, p.PointType, p.DeviceID, nullStr(p.DeviceType), nullStr(p.AreaCode),
		nullStr(p.Unit), p.MinRange, p.MaxRange, p.Precision, p.CollectInterval, p.StoreInterval,
		p.IsEnabled, p.IsVirtual, nullStr(p.CalcFormula), p.SortOrder,
	).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return 0, fmt.Errorf("point_code %s already exists: %w", p.PointCode, ErrConflict)
		}
		return 0, fmt.Errorf("failed to create point: %w", err)
	}

	// 实时值行与点位同生命周期
	_, err = tx.ExecContext(ctx, `
		INSERT INTO point_realtime (point_id, raw_value, value, quality, status, change_count, updated_at)
		VALUES ($1, 0, 0, $2, $3, 0, NOW())`,
		id, models.QualityUncertain, models.PointStatusOffline,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to init realtime row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}

// UpdatePoint 更新点位配置（编码与类型不可变）
func (r *PointsRepository) UpdatePoint(ctx context.Context, p *models.Point) error {
	if p.PointType == models.PointTypeAI && p.MinRange >= p.MaxRange {
		return fmt.Errorf("min_range must be less than max_range: %w", ErrValidation)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE points SET
			point_name = $2, device_id = $3, device_type = $4, area_code = $5,
			unit = $6, min_range = $7, max_range = $8, precision_digits = $9,
			collect_interval = $10, store_interval = $11, is_enabled = $12,
			calc_formula = $13, sort_order = $14, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.PointName, p.DeviceID, nullStr(p.DeviceType), nullStr(p.AreaCode),
		nullStr(p.Unit), p.MinRange, p.MaxRange, p.Precision,
		p.CollectInterval, p.StoreInterval, p.IsEnabled,
		nullStr(p.CalcFormula), p.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("failed to update point: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("point %d: %w", p.ID, ErrNotFound)
	}
	return nil
}

// SetPointEnabled 启用/停用点位
func (r *PointsRepository) SetPointEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE points SET is_enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to set point enabled: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("point %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetEnergyDevice 绑定点位到能耗设备（匹配器反向链接）
func (r *PointsRepository) SetEnergyDevice(ctx context.Context, pointID, deviceID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE points SET energy_device_id = $2, updated_at = NOW() WHERE id = $1`,
		pointID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to set energy device: %w", err)
	}
	return nil
}

// DeletePoint 删除点位及其实时值、历史、阈值
func (r *PointsRepository) DeletePoint(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM point_realtime WHERE point_id = $1`,
		`DELETE FROM alarm_thresholds WHERE point_id = $1`,
		`DELETE FROM point_history WHERE point_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete point children: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM points WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("point %d: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
