package execution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proecheng/dcim-platform-sub000/internal/execution"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

func tasksWith(statuses ...string) []*models.ExecutionTask {
	out := make([]*models.ExecutionTask, 0, len(statuses))
	for i, s := range statuses {
		out = append(out, &models.ExecutionTask{ID: int64(i + 1), Status: s})
	}
	return out
}

func TestDerivePlanStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"no tasks", nil, models.PlanStatusPending},
		{"all pending", []string{models.TaskStatusPending, models.TaskStatusPending}, models.PlanStatusPending},
		{"partially completed", []string{models.TaskStatusCompleted, models.TaskStatusCompleted, models.TaskStatusPending}, models.PlanStatusExecuting},
		{"one executing", []string{models.TaskStatusExecuting, models.TaskStatusPending}, models.PlanStatusExecuting},
		{"all completed", []string{models.TaskStatusCompleted, models.TaskStatusCompleted, models.TaskStatusCompleted}, models.PlanStatusCompleted},
		{"completed plus skipped", []string{models.TaskStatusCompleted, models.TaskStatusSkipped}, models.PlanStatusCompleted},
		{"all skipped", []string{models.TaskStatusSkipped, models.TaskStatusSkipped}, models.PlanStatusCompleted},
		{"failed terminal", []string{models.TaskStatusCompleted, models.TaskStatusFailed}, models.PlanStatusFailed},
		{"failed but still pending", []string{models.TaskStatusFailed, models.TaskStatusPending}, models.PlanStatusExecuting},
		{"failed but still executing", []string{models.TaskStatusFailed, models.TaskStatusExecuting}, models.PlanStatusExecuting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, execution.DerivePlanStatus(tasksWith(tt.statuses...)))
		})
	}
}

// 三任务 [completed, completed, pending] → executing；全 completed → completed
func TestDerivePlanStatus_Progression(t *testing.T) {
	tasks := tasksWith(models.TaskStatusCompleted, models.TaskStatusCompleted, models.TaskStatusPending)
	assert.Equal(t, models.PlanStatusExecuting, execution.DerivePlanStatus(tasks))

	tasks[2].Status = models.TaskStatusCompleted
	assert.Equal(t, models.PlanStatusCompleted, execution.DerivePlanStatus(tasks))
}

func TestGenerateChecklist(t *testing.T) {
	tests := []struct {
		category     int
		wantLen      int
		wantAutoType string
	}{
		{1, 3, models.TaskTypeDemandAdjust},
		{2, 3, models.TaskTypeDeviceControl},
		{3, 2, ""},
		{4, 2, ""},
		{99, 2, ""},
	}
	for _, tt := range tests {
		opp := &models.Opportunity{Category: tt.category}
		tasks := execution.GenerateChecklist(opp)
		require.Len(t, tasks, tt.wantLen, "category %d", tt.category)

		// 顺序号连续
		for i, task := range tasks {
			assert.Equal(t, i, task.SortOrder)
		}

		var autoType string
		for _, task := range tasks {
			if task.ExecutionMode == models.ExecutionModeAuto {
				autoType = task.TaskType
			}
		}
		assert.Equal(t, tt.wantAutoType, autoType, "category %d", tt.category)
	}
}
