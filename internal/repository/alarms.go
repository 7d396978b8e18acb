package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// AlarmsRepository 报警记录仓库
type AlarmsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmsRepository 创建报警仓库
func NewAlarmsRepository(db *sql.DB, logger *zap.Logger) *AlarmsRepository {
	return &AlarmsRepository{db: db, logger: logger}
}

const alarmColumns = `
	id, alarm_no, point_id, threshold_id, alarm_level, alarm_type, alarm_message,
	trigger_value, threshold_value, status, acknowledged_by, acknowledged_at, ack_remark,
	resolved_by, resolved_at, resolve_remark, resolve_type, duration_seconds,
	is_notified, notify_count, created_at`

func scanAlarm(row interface{ Scan(...interface{}) error }) (*models.Alarm, error) {
	var a models.Alarm
	var thresholdID sql.NullInt64
	var ackBy, ackRemark, resolvedBy, resolveRemark, resolveType sql.NullString
	var ackAt, resolvedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.AlarmNo, &a.PointID, &thresholdID, &a.AlarmLevel, &a.AlarmType, &a.AlarmMessage,
		&a.TriggerValue, &a.ThresholdValue, &a.Status, &ackBy, &ackAt, &ackRemark,
		&resolvedBy, &resolvedAt, &resolveRemark, &resolveType, &a.DurationSeconds,
		&a.IsNotified, &a.NotifyCount, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if thresholdID.Valid {
		a.ThresholdID = &thresholdID.Int64
	}
	a.AcknowledgedBy = ackBy.String
	a.AckRemark = ackRemark.String
	a.ResolvedBy = resolvedBy.String
	a.ResolveRemark = resolveRemark.String
	a.ResolveType = resolveType.String
	if ackAt.Valid {
		a.AcknowledgedAt = &ackAt.Time
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return &a, nil
}

// GetAlarm 获取单条报警
func (r *AlarmsRepository) GetAlarm(ctx context.Context, id int64) (*models.Alarm, error) {
	query := `SELECT ` + alarmColumns + ` FROM alarms WHERE id = $1`
	a, err := scanAlarm(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alarm %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alarm: %w", err)
	}
	return a, nil
}

// GetActiveAlarmTx 事务内查询 (point, threshold) 的未消除报警（去重用）
func (r *AlarmsRepository) GetActiveAlarmTx(ctx context.Context, tx *sql.Tx, pointID, thresholdID int64) (*models.Alarm, error) {
	query := `SELECT ` + alarmColumns + `
		FROM alarms
		WHERE point_id = $1 AND threshold_id = $2 AND status IN ('active', 'acknowledged')
		ORDER BY created_at DESC
		LIMIT 1`

	a, err := scanAlarm(tx.QueryRowContext(ctx, query, pointID, thresholdID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active alarm: %w", err)
	}
	return a, nil
}

// InsertAlarmTx 事务内新建报警
func (r *AlarmsRepository) InsertAlarmTx(ctx context.Context, tx *sql.Tx, a *models.Alarm) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO alarms (
			alarm_no, point_id, threshold_id, alarm_level, alarm_type, alarm_message,
			trigger_value, threshold_value, status, is_notified, notify_count, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false,0,$10)
		RETURNING id`,
		a.AlarmNo, a.PointID, a.ThresholdID, a.AlarmLevel, a.AlarmType, a.AlarmMessage,
		a.TriggerValue, a.ThresholdValue, a.Status, a.CreatedAt,
	).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return 0, fmt.Errorf("alarm_no %s already exists: %w", a.AlarmNo, ErrConflict)
		}
		return 0, fmt.Errorf("failed to insert alarm: %w", err)
	}
	return id, nil
}

// ResolveAlarmTx 事务内消除报警（自动恢复路径）
func (r *AlarmsRepository) ResolveAlarmTx(ctx context.Context, tx *sql.Tx, alarmID int64, resolveType string, resolvedAt time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE alarms SET
			status = 'resolved',
			resolve_type = $2,
			resolved_at = $3,
			duration_seconds = EXTRACT(EPOCH FROM ($3 - created_at))::bigint
		WHERE id = $1 AND status IN ('active', 'acknowledged')`,
		alarmID, resolveType, resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve alarm: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("alarm %d not resolvable: %w", alarmID, ErrConflict)
	}
	return nil
}

// Acknowledge 确认报警（active → acknowledged）
func (r *AlarmsRepository) Acknowledge(ctx context.Context, alarmID int64, ackBy, remark string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alarms SET
			status = 'acknowledged', acknowledged_by = $2, acknowledged_at = NOW(), ack_remark = $3
		WHERE id = $1 AND status = 'active'`,
		alarmID, ackBy, nullStr(remark))
	if err != nil {
		return fmt.Errorf("failed to acknowledge alarm: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("alarm %d not active: %w", alarmID, ErrConflict)
	}
	return nil
}

// BatchAcknowledge 批量确认，返回实际确认条数
func (r *AlarmsRepository) BatchAcknowledge(ctx context.Context, alarmIDs []int64, ackBy, remark string) (int64, error) {
	if len(alarmIDs) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE alarms SET
			status = 'acknowledged', acknowledged_by = $2, acknowledged_at = NOW(), ack_remark = $3
		WHERE id = ANY($1) AND status = 'active'`,
		pq.Array(alarmIDs), ackBy, nullStr(remark))
	if err != nil {
		return 0, fmt.Errorf("failed to batch acknowledge: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// ResolveManual 手动消除报警
func (r *AlarmsRepository) ResolveManual(ctx context.Context, alarmID int64, resolvedBy, remark string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alarms SET
			status = 'resolved', resolved_by = $2, resolved_at = NOW(), resolve_remark = $3,
			resolve_type = 'manual',
			duration_seconds = EXTRACT(EPOCH FROM (NOW() - created_at))::bigint
		WHERE id = $1 AND status IN ('active', 'acknowledged')`,
		alarmID, resolvedBy, nullStr(remark))
	if err != nil {
		return fmt.Errorf("failed to resolve alarm: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("alarm %d not resolvable: %w", alarmID, ErrConflict)
	}
	return nil
}

// AlarmFilters 报警查询过滤条件
type AlarmFilters struct {
	Status    *string
	Statuses  []string
	Level     *string
	PointID   *int64
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

// ListAlarms 按条件查询报警（按触发时间倒序）
func (r *AlarmsRepository) ListAlarms(ctx context.Context, filters AlarmFilters) ([]*models.Alarm, error) {
	var conds []string
	var args []interface{}
	argn := 1

	if filters.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", argn))
		args = append(args, *filters.Status)
		argn++
	}
	if len(filters.Statuses) > 0 {
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", argn))
		args = append(args, pq.Array(filters.Statuses))
		argn++
	}
	if filters.Level != nil {
		conds = append(conds, fmt.Sprintf("alarm_level = $%d", argn))
		args = append(args, *filters.Level)
		argn++
	}
	if filters.PointID != nil {
		conds = append(conds, fmt.Sprintf("point_id = $%d", argn))
		args = append(args, *filters.PointID)
		argn++
	}
	if filters.StartTime != nil {
		conds = append(conds, fmt.Sprintf("created_at >= $%d", argn))
		args = append(args, *filters.StartTime)
		argn++
	}
	if filters.EndTime != nil {
		conds = append(conds, fmt.Sprintf("created_at <= $%d", argn))
		args = append(args, *filters.EndTime)
		argn++
	}

	query := `SELECT ` + alarmColumns + ` FROM alarms`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	limit := filters.Limit
	if limit <= 0 {
		limit = 200
	}
	query += fmt.Sprintf(" LIMIT $%d", argn)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alarms: %w", err)
	}
	defer rows.Close()

	var result []*models.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alarm: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// ListActiveAlarms 查询全部未消除报警
func (r *AlarmsRepository) ListActiveAlarms(ctx context.Context) ([]*models.Alarm, error) {
	return r.ListAlarms(ctx, AlarmFilters{
		Statuses: []string{models.AlarmStatusActive, models.AlarmStatusAcknowledged},
		Limit:    1000,
	})
}

// CountsByLevel 未消除报警按级别计数
func (r *AlarmsRepository) CountsByLevel(ctx context.Context) (*models.AlarmCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE alarm_level = 'critical') AS critical,
			COUNT(*) FILTER (WHERE alarm_level = 'major') AS major,
			COUNT(*) FILTER (WHERE alarm_level = 'minor') AS minor,
			COUNT(*) FILTER (WHERE alarm_level = 'info') AS info,
			COUNT(*) AS total
		FROM alarms
		WHERE status IN ('active', 'acknowledged')`

	var c models.AlarmCounts
	err := r.db.QueryRowContext(ctx, query).Scan(&c.Critical, &c.Major, &c.Minor, &c.Info, &c.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to count alarms: %w", err)
	}
	return &c, nil
}

// MarkNotified 更新通知标记
func (r *AlarmsRepository) MarkNotified(ctx context.Context, alarmID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE alarms SET is_notified = true, notify_count = notify_count + 1 WHERE id = $1`,
		alarmID)
	if err != nil {
		return fmt.Errorf("failed to mark notified: %w", err)
	}
	return nil
}
