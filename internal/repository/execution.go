package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// ExecutionRepository 机会/执行计划/任务/效果仓库
type ExecutionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExecutionRepository 创建执行仓库
func NewExecutionRepository(db *sql.DB, logger *zap.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// ============================================
// 机会
// ============================================

const opportunityColumns = `
	id, suggestion_id, category, title, description, priority, status,
	potential_saving, confidence, analysis_data, source_plugin,
	discovered_at, completed_at, created_at, updated_at`

func scanOpportunity(row interface{ Scan(...interface{}) error }) (*models.Opportunity, error) {
	var o models.Opportunity
	var suggestionID sql.NullInt64
	var description, sourcePlugin sql.NullString
	var analysisData []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&o.ID, &suggestionID, &o.Category, &o.Title, &description, &o.Priority, &o.Status,
		&o.PotentialSaving, &o.Confidence, &analysisData, &sourcePlugin,
		&o.DiscoveredAt, &completedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if suggestionID.Valid {
		o.SuggestionID = &suggestionID.Int64
	}
	o.Description = description.String
	o.SourcePlugin = sourcePlugin.String
	o.AnalysisData = analysisData
	if completedAt.Valid {
		o.CompletedAt = &completedAt.Time
	}
	return &o, nil
}

// GetOpportunity 获取机会
func (r *ExecutionRepository) GetOpportunity(ctx context.Context, id int64) (*models.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM energy_opportunities WHERE id = $1`
	o, err := scanOpportunity(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("opportunity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}
	return o, nil
}

// ListOpportunities 查询机会（状态为空则全部，按发现时间倒序）
func (r *ExecutionRepository) ListOpportunities(ctx context.Context, status string, limit int) ([]*models.Opportunity, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + opportunityColumns + ` FROM energy_opportunities`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY discovered_at DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	defer rows.Close()

	var result []*models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// InsertOpportunity 创建机会
func (r *ExecutionRepository) InsertOpportunity(ctx context.Context, o *models.Opportunity) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO energy_opportunities (
			suggestion_id, category, title, description, priority, status,
			potential_saving, confidence, analysis_data, source_plugin,
			discovered_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW(),NOW())
		RETURNING id`,
		o.SuggestionID, o.Category, o.Title, nullStr(o.Description), o.Priority, o.Status,
		o.PotentialSaving, o.Confidence, nullBytes(o.AnalysisData), nullStr(o.SourcePlugin),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert opportunity: %w", err)
	}
	return id, nil
}

// UpdateOpportunityStatus 更新机会状态（completed 时记录完成时间）
func (r *ExecutionRepository) UpdateOpportunityStatus(ctx context.Context, id int64, status string) error {
	var query string
	if status == models.OpportunityCompleted {
		query = `UPDATE energy_opportunities SET status = $2, completed_at = NOW(), updated_at = NOW() WHERE id = $1`
	} else {
		query = `UPDATE energy_opportunities SET status = $2, updated_at = NOW() WHERE id = $1`
	}
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update opportunity status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("opportunity %d: %w", id, ErrNotFound)
	}
	return nil
}

// ============================================
// 执行计划
// ============================================

const planColumns = `
	id, opportunity_id, plan_name, expected_saving, status,
	started_at, completed_at, created_by, notes, created_at, updated_at`

func scanPlan(row interface{ Scan(...interface{}) error }) (*models.ExecutionPlan, error) {
	var p models.ExecutionPlan
	var startedAt, completedAt sql.NullTime
	var createdBy, notes sql.NullString

	err := row.Scan(
		&p.ID, &p.OpportunityID, &p.PlanName, &p.ExpectedSaving, &p.Status,
		&startedAt, &completedAt, &createdBy, &notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		p.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	p.CreatedBy = createdBy.String
	p.Notes = notes.String
	return &p, nil
}

// GetPlan 获取执行计划
func (r *ExecutionRepository) GetPlan(ctx context.Context, id int64) (*models.ExecutionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM execution_plans WHERE id = $1`
	p, err := scanPlan(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

// ListPlansByOpportunity 查询机会下的执行计划
func (r *ExecutionRepository) ListPlansByOpportunity(ctx context.Context, opportunityID int64) ([]*models.ExecutionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM execution_plans WHERE opportunity_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var result []*models.ExecutionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// InsertPlan 创建执行计划及其任务（单事务）
func (r *ExecutionRepository) InsertPlan(ctx context.Context, p *models.ExecutionPlan, tasks []*models.ExecutionTask) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var planID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO execution_plans (
			opportunity_id, plan_name, expected_saving, status, created_by, notes,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
		RETURNING id`,
		p.OpportunityID, p.PlanName, p.ExpectedSaving, models.PlanStatusPending,
		nullStr(p.CreatedBy), nullStr(p.Notes),
	).Scan(&planID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert plan: %w", err)
	}

	for i, t := range tasks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO execution_tasks (
				plan_id, task_type, task_name, target_object, execution_mode,
				parameters, status, assigned_to, scheduled_at, sort_order,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())`,
			planID, t.TaskType, t.TaskName, nullStr(t.TargetObject), t.ExecutionMode,
			nullBytes(t.Parameters), models.TaskStatusPending, nullStr(t.AssignedTo),
			nullTime(t.ScheduledAt), i)
		if err != nil {
			return 0, fmt.Errorf("failed to insert task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return planID, nil
}

// UpdatePlanStatus 更新计划状态，按需记录起止时间
func (r *ExecutionRepository) UpdatePlanStatus(ctx context.Context, planID int64, status string, setStarted, setCompleted bool) error {
	query := `UPDATE execution_plans SET status = $2, updated_at = NOW()`
	if setStarted {
		query += `, started_at = COALESCE(started_at, NOW())`
	}
	if setCompleted {
		query += `, completed_at = NOW()`
	}
	query += ` WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, planID, status)
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("plan %d: %w", planID, ErrNotFound)
	}
	return nil
}

// ============================================
// 执行任务
// ============================================

const taskColumns = `
	id, plan_id, task_type, task_name, target_object, execution_mode, parameters,
	status, assigned_to, scheduled_at, executed_at, result, error_message, sort_order,
	created_at, updated_at`

func scanTask(row interface{ Scan(...interface{}) error }) (*models.ExecutionTask, error) {
	var t models.ExecutionTask
	var targetObject, assignedTo, errorMessage sql.NullString
	var parameters, result []byte
	var scheduledAt, executedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.PlanID, &t.TaskType, &t.TaskName, &targetObject, &t.ExecutionMode, &parameters,
		&t.Status, &assignedTo, &scheduledAt, &executedAt, &result, &errorMessage, &t.SortOrder,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.TargetObject = targetObject.String
	t.AssignedTo = assignedTo.String
	t.ErrorMessage = errorMessage.String
	t.Parameters = parameters
	t.Result = result
	if scheduledAt.Valid {
		t.ScheduledAt = &scheduledAt.Time
	}
	if executedAt.Valid {
		t.ExecutedAt = &executedAt.Time
	}
	return &t, nil
}

// GetTask 获取任务
func (r *ExecutionRepository) GetTask(ctx context.Context, id int64) (*models.ExecutionTask, error) {
	query := `SELECT ` + taskColumns + ` FROM execution_tasks WHERE id = $1`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasksByPlan 查询计划下的任务（执行顺序）
func (r *ExecutionRepository) ListTasksByPlan(ctx context.Context, planID int64) ([]*models.ExecutionTask, error) {
	query := `SELECT ` + taskColumns + ` FROM execution_tasks WHERE plan_id = $1 ORDER BY sort_order, id`

	rows, err := r.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var result []*models.ExecutionTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// UpdateTaskStatus 更新任务状态与执行结果
func (r *ExecutionRepository) UpdateTaskStatus(ctx context.Context, taskID int64, status string, result json.RawMessage, errorMessage string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE execution_tasks SET
			status = $2, result = $3, error_message = $4,
			executed_at = CASE WHEN $2 IN ('completed','failed') THEN NOW() ELSE executed_at END,
			updated_at = NOW()
		WHERE id = $1`,
		taskID, status, nullBytes(result), nullStr(errorMessage))
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	return nil
}

// ============================================
// 效果追踪
// ============================================

// InsertResult 写入效果追踪记录
func (r *ExecutionRepository) InsertResult(ctx context.Context, res *models.ExecutionResult) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO execution_results (
			plan_id, tracking_period, tracking_start, tracking_end,
			actual_saving, achievement_rate, energy_before, energy_after,
			analysis_conclusion, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		RETURNING id`,
		res.PlanID, res.TrackingPeriod, res.TrackingStart, res.TrackingEnd,
		res.ActualSaving, res.AchievementRate, nullBytes(res.EnergyBefore), nullBytes(res.EnergyAfter),
		nullStr(res.Conclusion), res.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert execution result: %w", err)
	}
	return id, nil
}

// ListResultsByPlan 查询计划的效果追踪记录
func (r *ExecutionRepository) ListResultsByPlan(ctx context.Context, planID int64) ([]*models.ExecutionResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plan_id, tracking_period, tracking_start, tracking_end,
			actual_saving, achievement_rate, energy_before, energy_after,
			COALESCE(analysis_conclusion, ''), status, created_at
		FROM execution_results
		WHERE plan_id = $1
		ORDER BY created_at`,
		planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution results: %w", err)
	}
	defer rows.Close()

	var result []*models.ExecutionResult
	for rows.Next() {
		var res models.ExecutionResult
		var before, after []byte
		if err := rows.Scan(&res.ID, &res.PlanID, &res.TrackingPeriod, &res.TrackingStart,
			&res.TrackingEnd, &res.ActualSaving, &res.AchievementRate, &before, &after,
			&res.Conclusion, &res.Status, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution result: %w", err)
		}
		res.EnergyBefore = before
		res.EnergyAfter = after
		result = append(result, &res)
	}
	return result, rows.Err()
}
