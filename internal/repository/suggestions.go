package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// SuggestionsRepository 节能建议仓库
type SuggestionsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSuggestionsRepository 创建建议仓库
func NewSuggestionsRepository(db *sql.DB, logger *zap.Logger) *SuggestionsRepository {
	return &SuggestionsRepository{db: db, logger: logger}
}

const suggestionColumns = `
	id, source_plugin, category, priority, title, description, detail,
	estimated_saving, estimated_cost_saving, difficulty, payback_months,
	confidence, related_devices, parameters, status, created_at`

func scanSuggestion(row interface{ Scan(...interface{}) error }) (*models.EnergySuggestion, error) {
	var s models.EnergySuggestion
	var detail sql.NullString
	var relatedDevices, parameters []byte

	err := row.Scan(
		&s.ID, &s.SourcePlugin, &s.Category, &s.Priority, &s.Title, &s.Description, &detail,
		&s.EstimatedSaving, &s.EstimatedCostSaving, &s.Difficulty, &s.PaybackMonths,
		&s.Confidence, &relatedDevices, &parameters, &s.Status, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Detail = detail.String
	s.RelatedDevices = relatedDevices
	s.Parameters = parameters
	return &s, nil
}

// GetSuggestion 获取建议
func (r *SuggestionsRepository) GetSuggestion(ctx context.Context, id int64) (*models.EnergySuggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM energy_suggestions WHERE id = $1`
	s, err := scanSuggestion(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("suggestion %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion: %w", err)
	}
	return s, nil
}

// InsertSuggestion 插入建议
func (r *SuggestionsRepository) InsertSuggestion(ctx context.Context, s *models.EnergySuggestion) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO energy_suggestions (
			source_plugin, category, priority, title, description, detail,
			estimated_saving, estimated_cost_saving, difficulty, payback_months,
			confidence, related_devices, parameters, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
		RETURNING id`,
		s.SourcePlugin, s.Category, s.Priority, s.Title, s.Description, nullStr(s.Detail),
		s.EstimatedSaving, s.EstimatedCostSaving, s.Difficulty, s.PaybackMonths,
		s.Confidence, nullBytes(s.RelatedDevices), nullBytes(s.Parameters), s.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert suggestion: %w", err)
	}
	return id, nil
}

// BatchInsertSuggestions 批量插入建议（单事务）
func (r *SuggestionsRepository) BatchInsertSuggestions(ctx context.Context, suggestions []*models.EnergySuggestion) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, s := range suggestions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO energy_suggestions (
				source_plugin, category, priority, title, description, detail,
				estimated_saving, estimated_cost_saving, difficulty, payback_months,
				confidence, related_devices, parameters, status, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())`,
			s.SourcePlugin, s.Category, s.Priority, s.Title, s.Description, nullStr(s.Detail),
			s.EstimatedSaving, s.EstimatedCostSaving, s.Difficulty, s.PaybackMonths,
			s.Confidence, nullBytes(s.RelatedDevices), nullBytes(s.Parameters), s.Status)
		if err != nil {
			return fmt.Errorf("failed to batch insert suggestion: %w", err)
		}
	}
	return tx.Commit()
}

// ListSuggestions 按状态查询建议（置信度倒序）
func (r *SuggestionsRepository) ListSuggestions(ctx context.Context, status string, limit int) ([]*models.EnergySuggestion, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + suggestionColumns + `
		FROM energy_suggestions WHERE status = $1
		ORDER BY estimated_cost_saving DESC, confidence DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var result []*models.EnergySuggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// UpdateSuggestionStatus 更新建议状态
func (r *SuggestionsRepository) UpdateSuggestionStatus(ctx context.Context, id int64, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE energy_suggestions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update suggestion status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("suggestion %d: %w", id, ErrNotFound)
	}
	return nil
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
