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

// ControlCommand 设备控制指令
type ControlCommand struct {
	DeviceID       int64   `json:"device_id"`
	RegulationType string  `json:"regulation_type"`
	TargetValue    float64 `json:"target_value"`
}

// ControlOutcome 单台设备的控制结果
type ControlOutcome struct {
	DeviceID    int64   `json:"device_id"`
	Result      string  `json:"result"` // success/simulated/failed/pending
	TargetValue float64 `json:"target_value"`
	Message     string  `json:"message,omitempty"`
}

// Publisher 指令下行通道（MQTT）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// ControlAdapter 设备控制适配器。
// 当前系统不接真实执行器，所有控制均为 simulated：
// 指令仍然下发到总线（便于联调与审计），调节配置的当前值同步更新。
type ControlAdapter struct {
	devicesRepo *repository.DevicesRepository
	publisher   Publisher
	topicPrefix string
	logger      *zap.Logger
}

// NewControlAdapter 创建控制适配器；publisher 可为 nil（纯仿真，不下发）
func NewControlAdapter(devicesRepo *repository.DevicesRepository, publisher Publisher, topicPrefix string, logger *zap.Logger) *ControlAdapter {
	if topicPrefix == "" {
		topicPrefix = "dcim/control/"
	}
	return &ControlAdapter{
		devicesRepo: devicesRepo,
		publisher:   publisher,
		topicPrefix: topicPrefix,
		logger:      logger,
	}
}

// Execute 执行一条控制指令
func (a *ControlAdapter) Execute(ctx context.Context, cmd *ControlCommand) *ControlOutcome {
	outcome := &ControlOutcome{DeviceID: cmd.DeviceID, TargetValue: cmd.TargetValue}

	reg, err := a.devicesRepo.GetRegulationConfig(ctx, cmd.DeviceID, cmd.RegulationType)
	if err != nil {
		outcome.Result = models.ControlFailed
		outcome.Message = fmt.Sprintf("调节配置不存在: %v", err)
		return outcome
	}
	if cmd.TargetValue < reg.MinValue || cmd.TargetValue > reg.MaxValue {
		outcome.Result = models.ControlFailed
		outcome.Message = fmt.Sprintf("目标值 %.1f 超出范围 [%.1f, %.1f]", cmd.TargetValue, reg.MinValue, reg.MaxValue)
		return outcome
	}

	if a.publisher != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"device_id":       cmd.DeviceID,
			"regulation_type": cmd.RegulationType,
			"target_value":    cmd.TargetValue,
			"issued_at":       time.Now().Format(time.RFC3339),
		})
		topic := fmt.Sprintf("%s%d", a.topicPrefix, cmd.DeviceID)
		if err := a.publisher.Publish(topic, 1, false, payload); err != nil {
			a.logger.Warn("failed to publish control command",
				zap.Int64("device_id", cmd.DeviceID),
				zap.Error(err))
		}
	}

	if err := a.devicesRepo.UpdateRegulationValue(ctx, cmd.DeviceID, cmd.RegulationType, cmd.TargetValue); err != nil {
		outcome.Result = models.ControlFailed
		outcome.Message = fmt.Sprintf("更新调节值失败: %v", err)
		return outcome
	}

	outcome.Result = models.ControlSimulated
	outcome.Message = "指令已下发（仿真模式）"
	return outcome
}
