package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// RealtimeRepository 点位实时值仓库
type RealtimeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRealtimeRepository 创建实时值仓库
func NewRealtimeRepository(db *sql.DB, logger *zap.Logger) *RealtimeRepository {
	return &RealtimeRepository{db: db, logger: logger}
}

const realtimeColumns = `
	point_id, raw_value, value, value_text, quality, status, alarm_level,
	change_count, last_change_at, updated_at`

func scanRealtime(row interface{ Scan(...interface{}) error }) (*models.PointRealtime, error) {
	var rt models.PointRealtime
	var valueText, alarmLevel sql.NullString
	var lastChangeAt sql.NullTime

	err := row.Scan(
		&rt.PointID, &rt.RawValue, &rt.Value, &valueText, &rt.Quality, &rt.Status,
		&alarmLevel, &rt.ChangeCount, &lastChangeAt, &rt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rt.ValueText = valueText.String
	rt.AlarmLevel = alarmLevel.String
	if lastChangeAt.Valid {
		rt.LastChangeAt = &lastChangeAt.Time
	}
	return &rt, nil
}

// GetRealtime 获取单点实时值
func (r *RealtimeRepository) GetRealtime(ctx context.Context, pointID int64) (*models.PointRealtime, error) {
	query := `SELECT ` + realtimeColumns + ` FROM point_realtime WHERE point_id = $1`

	rt, err := scanRealtime(r.db.QueryRowContext(ctx, query, pointID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("realtime for point %d: %w", pointID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get realtime: %w", err)
	}
	return rt, nil
}

// ListRealtime 批量获取实时值（空列表返回全部）
func (r *RealtimeRepository) ListRealtime(ctx context.Context, pointIDs []int64) ([]*models.PointRealtime, error) {
	query := `SELECT ` + realtimeColumns + ` FROM point_realtime`
	var args []interface{}
	if len(pointIDs) > 0 {
		query += ` WHERE point_id = ANY($1)`
		args = append(args, pq.Array(pointIDs))
	}
	query += ` ORDER BY point_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list realtime: %w", err)
	}
	defer rows.Close()

	var result []*models.PointRealtime
	for rows.Next() {
		rt, err := scanRealtime(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan realtime: %w", err)
		}
		result = append(result, rt)
	}
	return result, rows.Err()
}

// UpsertRealtimeTx 在事务内更新实时值（采集周期使用）
func (r *RealtimeRepository) UpsertRealtimeTx(ctx context.Context, tx *sql.Tx, rt *models.PointRealtime) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO point_realtime (
			point_id, raw_value, value, value_text, quality, status, alarm_level,
			change_count, last_change_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (point_id) DO UPDATE SET
			raw_value = EXCLUDED.raw_value,
			value = EXCLUDED.value,
			value_text = EXCLUDED.value_text,
			quality = EXCLUDED.quality,
			status = EXCLUDED.status,
			alarm_level = EXCLUDED.alarm_level,
			change_count = EXCLUDED.change_count,
			last_change_at = EXCLUDED.last_change_at,
			updated_at = EXCLUDED.updated_at`,
		rt.PointID, rt.RawValue, rt.Value, nullStr(rt.ValueText), rt.Quality, rt.Status,
		nullStr(rt.AlarmLevel), rt.ChangeCount, nullTime(rt.LastChangeAt), rt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert realtime: %w", err)
	}
	return nil
}

// UpdateStatus 仅更新状态字段（通信报警等场景）
func (r *RealtimeRepository) UpdateStatus(ctx context.Context, pointID int64, status, alarmLevel string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE point_realtime SET status = $2, alarm_level = $3, updated_at = NOW()
		WHERE point_id = $1`,
		pointID, status, nullStr(alarmLevel))
	if err != nil {
		return fmt.Errorf("failed to update realtime status: %w", err)
	}
	return nil
}

// Summary 实时状态汇总
func (r *RealtimeRepository) Summary(ctx context.Context) (*models.RealtimeSummary, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'normal') AS normal,
			COUNT(*) FILTER (WHERE status = 'alarm') AS alarm,
			COUNT(*) FILTER (WHERE status = 'offline') AS offline
		FROM point_realtime`

	var s models.RealtimeSummary
	err := r.db.QueryRowContext(ctx, query).Scan(&s.Total, &s.Normal, &s.Alarm, &s.Offline)
	if err != nil {
		return nil, fmt.Errorf("failed to get realtime summary: %w", err)
	}
	return &s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
