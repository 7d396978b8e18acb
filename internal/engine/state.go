package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/config"
)

// RuleRuntimeState 规则运行态（滞回状态 + 延时起点），进程重启后从 Redis 恢复
type RuleRuntimeState struct {
	State        RuleState  `json:"state"`
	FiringSince  *time.Time `json:"firing_since,omitempty"` // 首次越限时间（延时判定基准）
	ActiveAlarmID int64     `json:"active_alarm_id,omitempty"`
}

// StateManager 报警规则状态管理器
type StateManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *StateManager {
	return &StateManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// GetStateKey 构建状态键
func (s *StateManager) GetStateKey(pointID, thresholdID int64) string {
	return fmt.Sprintf("%s%d:%d", s.config.Alarm.StateKeyPrefix, pointID, thresholdID)
}

// SetState 写入规则状态（带 TTL）
func (s *StateManager) SetState(ctx context.Context, pointID, thresholdID int64, state *RuleRuntimeState) error {
	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	ttl := time.Duration(s.config.Alarm.StateTTL) * time.Second
	err = s.redisClient.Set(ctx, s.GetStateKey(pointID, thresholdID), jsonData, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set state: %w", err)
	}
	return nil
}

// GetState 读取规则状态，不存在时返回零值状态
func (s *StateManager) GetState(ctx context.Context, pointID, thresholdID int64) (*RuleRuntimeState, error) {
	val, err := s.redisClient.Get(ctx, s.GetStateKey(pointID, thresholdID)).Result()
	if err == redis.Nil {
		return &RuleRuntimeState{State: StateNormal}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}

	var state RuleRuntimeState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// DeleteState 删除规则状态
func (s *StateManager) DeleteState(ctx context.Context, pointID, thresholdID int64) error {
	if err := s.redisClient.Del(ctx, s.GetStateKey(pointID, thresholdID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}
