package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// ThresholdsRepository 报警阈值仓库
type ThresholdsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewThresholdsRepository 创建阈值仓库
func NewThresholdsRepository(db *sql.DB, logger *zap.Logger) *ThresholdsRepository {
	return &ThresholdsRepository{db: db, logger: logger}
}

const thresholdColumns = `
	id, point_id, threshold_type, threshold_value, alarm_level, alarm_message,
	delay_seconds, dead_band, priority, is_enabled, created_at, updated_at`

func scanThreshold(row interface{ Scan(...interface{}) error }) (*models.AlarmThreshold, error) {
	var t models.AlarmThreshold
	var message sql.NullString
	err := row.Scan(
		&t.ID, &t.PointID, &t.ThresholdType, &t.ThresholdValue, &t.AlarmLevel, &message,
		&t.DelaySeconds, &t.DeadBand, &t.Priority, &t.IsEnabled, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AlarmMessage = message.String
	return &t, nil
}

// GetThreshold 获取单条阈值
func (r *ThresholdsRepository) GetThreshold(ctx context.Context, id int64) (*models.AlarmThreshold, error) {
	query := `SELECT ` + thresholdColumns + ` FROM alarm_thresholds WHERE id = $1`
	t, err := scanThreshold(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("threshold %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get threshold: %w", err)
	}
	return t, nil
}

// ListEnabledByPoint 按优先级查询点位启用的阈值规则
func (r *ThresholdsRepository) ListEnabledByPoint(ctx context.Context, pointID int64) ([]*models.AlarmThreshold, error) {
	query := `SELECT ` + thresholdColumns + `
		FROM alarm_thresholds
		WHERE point_id = $1 AND is_enabled = true
		ORDER BY priority DESC, id`

	rows, err := r.db.QueryContext(ctx, query, pointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}
	defer rows.Close()

	var result []*models.AlarmThreshold
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// ListByPoint 查询点位全部阈值规则
func (r *ThresholdsRepository) ListByPoint(ctx context.Context, pointID int64) ([]*models.AlarmThreshold, error) {
	query := `SELECT ` + thresholdColumns + `
		FROM alarm_thresholds WHERE point_id = $1 ORDER BY priority DESC, id`

	rows, err := r.db.QueryContext(ctx, query, pointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}
	defer rows.Close()

	var result []*models.AlarmThreshold
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// CreateThreshold 创建阈值规则
func (r *ThresholdsRepository) CreateThreshold(ctx context.Context, t *models.AlarmThreshold) (int64, error) {
	if t.PointID == 0 || t.ThresholdType == "" {
		return 0, fmt.Errorf("point_id and threshold_type are required: %w", ErrValidation)
	}
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO alarm_thresholds (
			point_id, threshold_type, threshold_value, alarm_level, alarm_message,
			delay_seconds, dead_band, priority, is_enabled, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
		RETURNING id`,
		t.PointID, t.ThresholdType, t.ThresholdValue, t.AlarmLevel, nullStr(t.AlarmMessage),
		t.DelaySeconds, t.DeadBand, t.Priority, t.IsEnabled,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create threshold: %w", err)
	}
	return id, nil
}

// BatchCreateThresholds 批量创建阈值（单事务）
func (r *ThresholdsRepository) BatchCreateThresholds(ctx context.Context, thresholds []*models.AlarmThreshold) ([]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(thresholds))
	for _, t := range thresholds {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO alarm_thresholds (
				point_id, threshold_type, threshold_value, alarm_level, alarm_message,
				delay_seconds, dead_band, priority, is_enabled, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
			RETURNING id`,
			t.PointID, t.ThresholdType, t.ThresholdValue, t.AlarmLevel, nullStr(t.AlarmMessage),
			t.DelaySeconds, t.DeadBand, t.Priority, t.IsEnabled,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to batch create threshold: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return ids, nil
}

// UpdateThreshold 更新阈值规则
func (r *ThresholdsRepository) UpdateThreshold(ctx context.Context, t *models.AlarmThreshold) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alarm_thresholds SET
			threshold_type = $2, threshold_value = $3, alarm_level = $4, alarm_message = $5,
			delay_seconds = $6, dead_band = $7, priority = $8, is_enabled = $9, updated_at = NOW()
		WHERE id = $1`,
		t.ID, t.ThresholdType, t.ThresholdValue, t.AlarmLevel, nullStr(t.AlarmMessage),
		t.DelaySeconds, t.DeadBand, t.Priority, t.IsEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to update threshold: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("threshold %d: %w", t.ID, ErrNotFound)
	}
	return nil
}

// DeleteThreshold 删除阈值规则
func (r *ThresholdsRepository) DeleteThreshold(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alarm_thresholds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete threshold: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("threshold %d: %w", id, ErrNotFound)
	}
	return nil
}
