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

// HistoryRepository 点位历史与归档仓库
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository 创建历史仓库
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// InsertHistoryTx 在事务内追加一条原始历史
func (r *HistoryRepository) InsertHistoryTx(ctx context.Context, tx *sql.Tx, h *models.PointHistory) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO point_history (point_id, value, quality, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		h.PointID, h.Value, h.Quality, h.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// InsertChangeLogTx 在事务内记录开关量变位
func (r *HistoryRepository) InsertChangeLogTx(ctx context.Context, tx *sql.Tx, c *models.PointChangeLog) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO point_change_log (point_id, old_value, new_value, change_type, changed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.PointID, c.OldValue, c.NewValue, c.ChangeType, c.ChangedAt)
	if err != nil {
		return fmt.Errorf("failed to insert change log: %w", err)
	}
	return nil
}

// QueryHistory 区间查询原始历史（升序，limit 上限保护）
func (r *HistoryRepository) QueryHistory(ctx context.Context, pointID int64, start, end time.Time, limit int) ([]*models.PointHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, point_id, value, quality, recorded_at
		FROM point_history
		WHERE point_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at
		LIMIT $4`,
		pointID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var result []*models.PointHistory
	for rows.Next() {
		var h models.PointHistory
		if err := rows.Scan(&h.ID, &h.PointID, &h.Value, &h.Quality, &h.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		result = append(result, &h)
	}
	return result, rows.Err()
}

// TrendBucket 趋势桶
type TrendBucket struct {
	BucketTime time.Time `json:"bucket_time"`
	AvgValue   float64   `json:"avg_value"`
	Count      int64     `json:"count"`
}

// QueryTrend 趋势查询：按 interval 秒分桶取均值，空桶不返回。
// 桶边界上的样本归属后一个桶（floor 除法对齐起点）。
func (r *HistoryRepository) QueryTrend(ctx context.Context, pointID int64, start, end time.Time, intervalSec int) ([]*TrendBucket, error) {
	if intervalSec <= 0 {
		return nil, fmt.Errorf("interval must be positive: %w", ErrValidation)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			to_timestamp(floor(extract(epoch FROM recorded_at) / $4) * $4) AS bucket_time,
			AVG(value) AS avg_value,
			COUNT(*) AS cnt
		FROM point_history
		WHERE point_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		GROUP BY bucket_time
		ORDER BY bucket_time`,
		pointID, start, end, intervalSec)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend: %w", err)
	}
	defer rows.Close()

	var result []*TrendBucket
	for rows.Next() {
		var b TrendBucket
		if err := rows.Scan(&b.BucketTime, &b.AvgValue, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan trend bucket: %w", err)
		}
		result = append(result, &b)
	}
	return result, rows.Err()
}

// HistoryStats 区间统计
type HistoryStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int64   `json:"count"`
}

// QueryStats 区间统计查询
func (r *HistoryRepository) QueryStats(ctx context.Context, pointID int64, start, end time.Time) (*HistoryStats, error) {
	var s HistoryStats
	var min, max, avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT MIN(value), MAX(value), AVG(value), COUNT(*)
		FROM point_history
		WHERE point_id = $1 AND recorded_at >= $2 AND recorded_at <= $3`,
		pointID, start, end).Scan(&min, &max, &avg, &s.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	s.Min = min.Float64
	s.Max = max.Float64
	s.Avg = avg.Float64
	return &s, nil
}

// ExportRow 导出行（带点位信息）
type ExportRow struct {
	PointCode  string
	PointName  string
	Value      float64
	Unit       string
	RecordedAt time.Time
}

// ScanExport 按点位列表导出历史，升序回调逐行处理
func (r *HistoryRepository) ScanExport(ctx context.Context, pointIDs []int64, start, end time.Time, fn func(*ExportRow) error) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.point_code, p.point_name, h.value, COALESCE(p.unit, ''), h.recorded_at
		FROM point_history h
		JOIN points p ON p.id = h.point_id
		WHERE h.point_id = ANY($1) AND h.recorded_at >= $2 AND h.recorded_at <= $3
		ORDER BY h.point_id, h.recorded_at`,
		pq.Array(pointIDs), start, end)
	if err != nil {
		return fmt.Errorf("failed to scan export: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row ExportRow
		if err := rows.Scan(&row.PointCode, &row.PointName, &row.Value, &row.Unit, &row.RecordedAt); err != nil {
			return fmt.Errorf("failed to scan export row: %w", err)
		}
		if err := fn(&row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ============================================
// 归档
// ============================================

// RollupHourly 从原始数据生成指定小时的归档（幂等）
func (r *HistoryRepository) RollupHourly(ctx context.Context, hourStart time.Time) (int64, error) {
	hourEnd := hourStart.Add(time.Hour)
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO point_archive (point_id, archive_type, value_min, value_max, value_avg, value_sum, sample_count, recorded_at)
		SELECT point_id, 'hourly', MIN(value), MAX(value), AVG(value), SUM(value), COUNT(*), $1
		FROM point_history
		WHERE recorded_at >= $1 AND recorded_at < $2
		GROUP BY point_id
		ON CONFLICT (point_id, archive_type, recorded_at) DO UPDATE SET
			value_min = EXCLUDED.value_min,
			value_max = EXCLUDED.value_max,
			value_avg = EXCLUDED.value_avg,
			value_sum = EXCLUDED.value_sum,
			sample_count = EXCLUDED.sample_count`,
		hourStart, hourEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to rollup hourly: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// RollupFromHourly 由小时归档向上卷积日/月归档（幂等）
// archiveType: daily 或 monthly；bucketStart/bucketEnd 为桶边界
func (r *HistoryRepository) RollupFromHourly(ctx context.Context, archiveType string, bucketStart, bucketEnd time.Time) (int64, error) {
	if archiveType != models.ArchiveDaily && archiveType != models.ArchiveMonthly {
		return 0, fmt.Errorf("unsupported archive type %s: %w", archiveType, ErrValidation)
	}
	srcType := models.ArchiveHourly
	if archiveType == models.ArchiveMonthly {
		srcType = models.ArchiveDaily
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO point_archive (point_id, archive_type, value_min, value_max, value_avg, value_sum, sample_count, recorded_at)
		SELECT point_id, $1, MIN(value_min), MAX(value_max),
			SUM(value_avg * sample_count) / NULLIF(SUM(sample_count), 0),
			SUM(value_sum), SUM(sample_count), $3
		FROM point_archive
		WHERE archive_type = $2 AND recorded_at >= $3 AND recorded_at < $4
		GROUP BY point_id
		ON CONFLICT (point_id, archive_type, recorded_at) DO UPDATE SET
			value_min = EXCLUDED.value_min,
			value_max = EXCLUDED.value_max,
			value_avg = EXCLUDED.value_avg,
			value_sum = EXCLUDED.value_sum,
			sample_count = EXCLUDED.sample_count`,
		archiveType, srcType, bucketStart, bucketEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to rollup %s: %w", archiveType, err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// QueryArchive 查询归档序列
func (r *HistoryRepository) QueryArchive(ctx context.Context, pointID int64, archiveType string, start, end time.Time) ([]*models.PointArchive, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, point_id, archive_type, value_min, value_max, value_avg, value_sum, sample_count, recorded_at
		FROM point_archive
		WHERE point_id = $1 AND archive_type = $2 AND recorded_at >= $3 AND recorded_at <= $4
		ORDER BY recorded_at`,
		pointID, archiveType, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	var result []*models.PointArchive
	for rows.Next() {
		var a models.PointArchive
		if err := rows.Scan(&a.ID, &a.PointID, &a.ArchiveType, &a.ValueMin, &a.ValueMax,
			&a.ValueAvg, &a.ValueSum, &a.SampleCount, &a.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

// PruneHistory 批次清理过期原始历史，返回删除行数（幂等）
func (r *HistoryRepository) PruneHistory(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM point_history
		WHERE id IN (
			SELECT id FROM point_history WHERE recorded_at < $1 LIMIT $2
		)`,
		before, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// PruneArchive 批次清理过期归档
func (r *HistoryRepository) PruneArchive(ctx context.Context, archiveType string, before time.Time, batchSize int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM point_archive
		WHERE id IN (
			SELECT id FROM point_archive WHERE archive_type = $1 AND recorded_at < $2 LIMIT $3
		)`,
		archiveType, before, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to prune archive: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
