package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// PlanNotifier 计划完成外部通知，失败不影响状态机
type PlanNotifier interface {
	NotifyPlanCompleted(ctx context.Context, plan *models.ExecutionPlan)
}

// Service 节能机会与执行计划状态机
type Service struct {
	executionRepo   *repository.ExecutionRepository
	suggestionsRepo *repository.SuggestionsRepository
	metersRepo      *repository.MetersRepository
	control         *ControlAdapter
	tracker         *Tracker
	notifier        PlanNotifier
	logger          *zap.Logger
}

// SetNotifier 挂接计划完成通知器，nil 表示不通知
func (s *Service) SetNotifier(n PlanNotifier) {
	s.notifier = n
}

// NewService 创建执行服务
func NewService(
	executionRepo *repository.ExecutionRepository,
	suggestionsRepo *repository.SuggestionsRepository,
	metersRepo *repository.MetersRepository,
	control *ControlAdapter,
	tracker *Tracker,
	logger *zap.Logger,
) *Service {
	return &Service{
		executionRepo:   executionRepo,
		suggestionsRepo: suggestionsRepo,
		metersRepo:      metersRepo,
		control:         control,
		tracker:         tracker,
		logger:          logger,
	}
}

// PromoteSuggestion 将建议晋升为节能机会
func (s *Service) PromoteSuggestion(ctx context.Context, suggestionID int64) (*models.Opportunity, error) {
	sug, err := s.suggestionsRepo.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestion: %w", err)
	}

	opp := &models.Opportunity{
		SuggestionID:    &sug.ID,
		Category:        categoryOf(sug.Category),
		Title:           sug.Title,
		Description:     sug.Description,
		Priority:        sug.Priority,
		Status:          models.OpportunityIdentified,
		PotentialSaving: sug.EstimatedCostSaving,
		Confidence:      sug.Confidence / 100,
		AnalysisData:    sug.Parameters,
		SourcePlugin:    sug.SourcePlugin,
		DiscoveredAt:    time.Now(),
	}
	id, err := s.executionRepo.InsertOpportunity(ctx, opp)
	if err != nil {
		return nil, fmt.Errorf("failed to insert opportunity: %w", err)
	}
	opp.ID = id

	if err := s.suggestionsRepo.UpdateSuggestionStatus(ctx, sug.ID, models.SuggestionAccepted); err != nil {
		s.logger.Warn("failed to mark suggestion accepted", zap.Int64("suggestion_id", sug.ID), zap.Error(err))
	}
	return opp, nil
}

// categoryOf 建议类别 → 机会类别编号
// 1电费结构 2设备运行 3设备改造 4综合能效
func categoryOf(category string) int {
	switch category {
	case "demand", "load_shift":
		return 1
	case "equipment":
		return 2
	case "storage", "power_factor":
		return 3
	default:
		return 4
	}
}

// ApproveOpportunity 机会进入就绪态，可创建执行计划
func (s *Service) ApproveOpportunity(ctx context.Context, opportunityID int64) error {
	opp, err := s.executionRepo.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return err
	}
	if opp.Status != models.OpportunityIdentified {
		return fmt.Errorf("%w: opportunity %d is %s, expected identified", repository.ErrValidation, opportunityID, opp.Status)
	}
	return s.executionRepo.UpdateOpportunityStatus(ctx, opportunityID, models.OpportunityReady)
}

// RejectOpportunity 否决机会
func (s *Service) RejectOpportunity(ctx context.Context, opportunityID int64) error {
	return s.executionRepo.UpdateOpportunityStatus(ctx, opportunityID, models.OpportunityRejected)
}

// CreatePlan 为就绪的机会创建执行计划（含任务清单）
func (s *Service) CreatePlan(ctx context.Context, plan *models.ExecutionPlan, tasks []*models.ExecutionTask) (int64, error) {
	opp, err := s.executionRepo.GetOpportunity(ctx, plan.OpportunityID)
	if err != nil {
		return 0, err
	}
	if opp.Status != models.OpportunityReady {
		return 0, fmt.Errorf("%w: opportunity %d is %s, expected ready", repository.ErrValidation, opp.ID, opp.Status)
	}
	if len(tasks) == 0 {
		tasks = GenerateChecklist(opp)
	}
	plan.Status = models.PlanStatusPending
	for _, t := range tasks {
		t.Status = models.TaskStatusPending
	}
	return s.executionRepo.InsertPlan(ctx, plan, tasks)
}

// ExecuteTask 执行单个任务
func (s *Service) ExecuteTask(ctx context.Context, taskID int64) error {
	task, err := s.executionRepo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusPending {
		return fmt.Errorf("%w: task %d is %s, expected pending", repository.ErrValidation, taskID, task.Status)
	}
	if task.ExecutionMode != models.ExecutionModeAuto {
		return fmt.Errorf("%w: task %d is manual, complete it via CompleteManualTask", repository.ErrValidation, taskID)
	}

	if err := s.executionRepo.UpdateTaskStatus(ctx, taskID, models.TaskStatusExecuting, nil, ""); err != nil {
		return err
	}

	status, result, errMsg := s.runAutoTask(ctx, task)
	if err := s.executionRepo.UpdateTaskStatus(ctx, taskID, status, result, errMsg); err != nil {
		return err
	}
	return s.RefreshPlanStatus(ctx, task.PlanID)
}

// runAutoTask 按任务类型分派
func (s *Service) runAutoTask(ctx context.Context, task *models.ExecutionTask) (status string, result json.RawMessage, errMsg string) {
	switch task.TaskType {
	case models.TaskTypeDeviceControl:
		return s.runDeviceControl(ctx, task)
	case models.TaskTypeDemandAdjust:
		return s.runDemandAdjust(ctx, task)
	default:
		return models.TaskStatusFailed, nil, fmt.Sprintf("task type %s cannot run automatically", task.TaskType)
	}
}

// runDeviceControl 批量下发设备控制指令
func (s *Service) runDeviceControl(ctx context.Context, task *models.ExecutionTask) (string, json.RawMessage, string) {
	var params struct {
		Commands []*ControlCommand `json:"commands"`
	}
	if err := json.Unmarshal(task.Parameters, &params); err != nil || len(params.Commands) == 0 {
		// 兼容单指令参数
		var single ControlCommand
		if err2 := json.Unmarshal(task.Parameters, &single); err2 != nil || single.DeviceID == 0 {
			return models.TaskStatusFailed, nil, "invalid device control parameters"
		}
		params.Commands = []*ControlCommand{&single}
	}

	outcomes := make([]*ControlOutcome, 0, len(params.Commands))
	failed := 0
	for _, cmd := range params.Commands {
		outcome := s.control.Execute(ctx, cmd)
		if outcome.Result == models.ControlFailed {
			failed++
		}
		outcomes = append(outcomes, outcome)
	}
	result, _ := json.Marshal(outcomes)

	if failed > 0 {
		return models.TaskStatusFailed, result, "部分设备控制失败"
	}
	return models.TaskStatusCompleted, result, ""
}

// runDemandAdjust 更新计量点申报需量
func (s *Service) runDemandAdjust(ctx context.Context, task *models.ExecutionTask) (string, json.RawMessage, string) {
	var params struct {
		MeterPointID    int64   `json:"meter_point_id"`
		SuggestedDemand float64 `json:"suggested_demand"`
	}
	if err := json.Unmarshal(task.Parameters, &params); err != nil || params.MeterPointID == 0 || params.SuggestedDemand <= 0 {
		return models.TaskStatusFailed, nil, "invalid demand adjust parameters"
	}
	if err := s.metersRepo.UpdateDeclaredDemand(ctx, params.MeterPointID, params.SuggestedDemand); err != nil {
		return models.TaskStatusFailed, nil, fmt.Sprintf("failed to update declared demand: %v", err)
	}
	result, _ := json.Marshal(map[string]interface{}{
		"meter_point_id":  params.MeterPointID,
		"declared_demand": params.SuggestedDemand,
	})
	return models.TaskStatusCompleted, result, ""
}

// CompleteManualTask 人工关闭任务
func (s *Service) CompleteManualTask(ctx context.Context, taskID int64, completedBy, notes string, success bool) error {
	task, err := s.executionRepo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == models.TaskStatusCompleted || task.Status == models.TaskStatusFailed {
		return fmt.Errorf("%w: task %d already %s", repository.ErrValidation, taskID, task.Status)
	}

	result, _ := json.Marshal(map[string]string{
		"completed_by": completedBy,
		"notes":        notes,
	})
	status := models.TaskStatusCompleted
	errMsg := ""
	if !success {
		status = models.TaskStatusFailed
		errMsg = notes
	}
	if err := s.executionRepo.UpdateTaskStatus(ctx, taskID, status, result, errMsg); err != nil {
		return err
	}
	return s.RefreshPlanStatus(ctx, task.PlanID)
}

// SkipTask 跳过任务
func (s *Service) SkipTask(ctx context.Context, taskID int64) error {
	task, err := s.executionRepo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusPending {
		return fmt.Errorf("%w: task %d is %s, expected pending", repository.ErrValidation, taskID, task.Status)
	}
	if err := s.executionRepo.UpdateTaskStatus(ctx, taskID, models.TaskStatusSkipped, nil, ""); err != nil {
		return err
	}
	return s.RefreshPlanStatus(ctx, task.PlanID)
}

// RefreshPlanStatus 由任务状态推导计划状态，并联动机会状态
func (s *Service) RefreshPlanStatus(ctx context.Context, planID int64) error {
	plan, err := s.executionRepo.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	tasks, err := s.executionRepo.ListTasksByPlan(ctx, planID)
	if err != nil {
		return err
	}

	newStatus := DerivePlanStatus(tasks)
	if newStatus == plan.Status {
		return nil
	}

	setStarted := newStatus == models.PlanStatusExecuting && plan.StartedAt == nil
	setCompleted := newStatus == models.PlanStatusCompleted || newStatus == models.PlanStatusFailed
	if err := s.executionRepo.UpdatePlanStatus(ctx, planID, newStatus, setStarted, setCompleted); err != nil {
		return err
	}

	switch newStatus {
	case models.PlanStatusExecuting:
		if err := s.executionRepo.UpdateOpportunityStatus(ctx, plan.OpportunityID, models.OpportunityExecuting); err != nil {
			return err
		}
	case models.PlanStatusCompleted:
		// 机会落成，completed_at 由仓储层写入
		if err := s.executionRepo.UpdateOpportunityStatus(ctx, plan.OpportunityID, models.OpportunityCompleted); err != nil {
			return err
		}
		if s.notifier != nil {
			plan.Status = newStatus
			s.notifier.NotifyPlanCompleted(ctx, plan)
		}
	case models.PlanStatusFailed:
		// 计划失败，机会回退到就绪态，可重新制定计划
		if err := s.executionRepo.UpdateOpportunityStatus(ctx, plan.OpportunityID, models.OpportunityReady); err != nil {
			return err
		}
	}

	s.logger.Info("plan status updated",
		zap.Int64("plan_id", planID),
		zap.String("status", newStatus))
	return nil
}

// DerivePlanStatus 计划状态是任务状态的纯函数：
// 无任务 → pending；全部 completed/skipped → completed；
// 有 failed 且无 pending/executing → failed；
// 有 executing 或已有 completed → executing；其余 → pending
func DerivePlanStatus(tasks []*models.ExecutionTask) string {
	if len(tasks) == 0 {
		return models.PlanStatusPending
	}
	var pending, executing, completed, failed, skipped int
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusPending:
			pending++
		case models.TaskStatusExecuting:
			executing++
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		case models.TaskStatusSkipped:
			skipped++
		}
	}
	switch {
	case completed+skipped == len(tasks):
		return models.PlanStatusCompleted
	case failed > 0 && pending == 0 && executing == 0:
		return models.PlanStatusFailed
	case executing > 0 || completed > 0:
		return models.PlanStatusExecuting
	default:
		return models.PlanStatusPending
	}
}

// GenerateChecklist 按机会类别生成缺省任务清单
func GenerateChecklist(opp *models.Opportunity) []*models.ExecutionTask {
	var tasks []*models.ExecutionTask
	add := func(taskType, name, mode string, params json.RawMessage) {
		tasks = append(tasks, &models.ExecutionTask{
			TaskType:      taskType,
			TaskName:      name,
			ExecutionMode: mode,
			Parameters:    params,
			SortOrder:     len(tasks),
		})
	}

	switch opp.Category {
	case 1: // 电费结构
		add(models.TaskTypeManualOp, "与供电部门确认新申报需量", models.ExecutionModeManual, nil)
		add(models.TaskTypeDemandAdjust, "更新系统申报需量", models.ExecutionModeAuto, opp.AnalysisData)
		add(models.TaskTypeManualOp, "确认次月账单需量条目", models.ExecutionModeManual, nil)
	case 2: // 设备运行
		add(models.TaskTypeManualOp, "确认设备运行时段调整窗口", models.ExecutionModeManual, nil)
		add(models.TaskTypeDeviceControl, "下发设备调节指令", models.ExecutionModeAuto, opp.AnalysisData)
		add(models.TaskTypeManualOp, "观察一周能耗变化", models.ExecutionModeManual, nil)
	case 3: // 设备改造
		add(models.TaskTypeManualOp, "改造方案与预算审批", models.ExecutionModeManual, nil)
		add(models.TaskTypeManualOp, "施工与验收", models.ExecutionModeManual, nil)
	default: // 综合能效
		add(models.TaskTypeManualOp, "制定专项优化方案", models.ExecutionModeManual, nil)
		add(models.TaskTypeManualOp, "方案实施与复盘", models.ExecutionModeManual, nil)
	}
	return tasks
}
