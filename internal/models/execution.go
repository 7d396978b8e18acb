package models

import (
	"encoding/json"
	"time"
)

// 机会状态
const (
	OpportunityIdentified = "identified"
	OpportunityReady      = "ready"
	OpportunityExecuting  = "executing"
	OpportunityCompleted  = "completed"
	OpportunityRejected   = "rejected"
)

// Opportunity 节能机会（由建议晋升）
type Opportunity struct {
	ID             int64           `json:"id"`
	SuggestionID   *int64          `json:"suggestion_id,omitempty"`
	Category       int             `json:"category"` // 1电费结构 2设备运行 3设备改造 4综合能效
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Priority       string          `json:"priority"`
	Status         string          `json:"status"`
	PotentialSaving float64        `json:"potential_saving"` // 元/年
	Confidence     float64         `json:"confidence"`       // 0-1
	AnalysisData   json.RawMessage `json:"analysis_data,omitempty"`
	SourcePlugin   string          `json:"source_plugin,omitempty"`
	DiscoveredAt   time.Time       `json:"discovered_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// 计划/任务状态
const (
	PlanStatusPending   = "pending"
	PlanStatusExecuting = "executing"
	PlanStatusCompleted = "completed"
	PlanStatusFailed    = "failed"
	PlanStatusCancelled = "cancelled"

	TaskStatusPending   = "pending"
	TaskStatusExecuting = "executing"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusSkipped   = "skipped"
)

// 执行方式
const (
	ExecutionModeAuto   = "auto"
	ExecutionModeManual = "manual"
)

// ExecutionPlan 执行计划
type ExecutionPlan struct {
	ID            int64      `json:"id"`
	OpportunityID int64      `json:"opportunity_id"`
	PlanName      string     `json:"plan_name"`
	ExpectedSaving float64   `json:"expected_saving"` // 元/年
	Status        string     `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// 任务类型
const (
	TaskTypeDemandAdjust  = "demand_adjust"
	TaskTypeDeviceControl = "device_control"
	TaskTypeManualOp      = "manual_operation"
)

// ExecutionTask 执行任务
type ExecutionTask struct {
	ID            int64           `json:"id"`
	PlanID        int64           `json:"plan_id"`
	TaskType      string          `json:"task_type"` // demand_adjust/device_control/manual_operation
	TaskName      string          `json:"task_name"`
	TargetObject  string          `json:"target_object,omitempty"` // 设备ID或配置项
	ExecutionMode string          `json:"execution_mode"`          // auto/manual
	Parameters    json.RawMessage `json:"parameters,omitempty"`
	Status        string          `json:"status"`
	AssignedTo    string          `json:"assigned_to,omitempty"`
	ScheduledAt   *time.Time      `json:"scheduled_at,omitempty"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	SortOrder     int             `json:"sort_order"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// 设备控制结果
const (
	ControlSuccess   = "success"
	ControlSimulated = "simulated"
	ControlFailed    = "failed"
	ControlPending   = "pending"
)

// ExecutionResult 执行效果追踪
type ExecutionResult struct {
	ID              int64           `json:"id"`
	PlanID          int64           `json:"plan_id"`
	TrackingPeriod  int             `json:"tracking_period"` // 天数
	TrackingStart   time.Time       `json:"tracking_start"`
	TrackingEnd     time.Time       `json:"tracking_end"`
	ActualSaving    float64         `json:"actual_saving"`    // 元/年（折算）
	AchievementRate float64         `json:"achievement_rate"` // %
	EnergyBefore    json.RawMessage `json:"energy_before,omitempty"`
	EnergyAfter     json.RawMessage `json:"energy_after,omitempty"`
	Conclusion      string          `json:"conclusion,omitempty"`
	Status          string          `json:"status"` // tracking/completed
	CreatedAt       time.Time       `json:"created_at"`
}
