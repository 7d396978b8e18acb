package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/hub"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/redisx"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// alarmStreamKey 报警事件流（审计与外部转发）
const alarmStreamKey = "dcim:alarms:stream"

// AlarmNotifier 报警外部通知（webhook等），失败不影响主流程
type AlarmNotifier interface {
	NotifyAlarm(ctx context.Context, event string, alarm *models.Alarm)
}

// AlarmEngine 阈值报警引擎
// 对每个新采样值评估点位规则，维护报警生命周期：
// 延时开报警、(点位,规则)级去重、回差自动恢复、确认与手动消除
type AlarmEngine struct {
	thresholdsRepo *repository.ThresholdsRepository
	alarmsRepo     *repository.AlarmsRepository
	stateManager   *StateManager
	pushHub        *hub.Hub
	redisClient    *redisx.Client
	notifier       AlarmNotifier
	logger         *zap.Logger
}

// SetNotifier 挂接外部通知器，nil 表示不通知
func (e *AlarmEngine) SetNotifier(n AlarmNotifier) {
	e.notifier = n
}

// NewAlarmEngine 创建报警引擎
func NewAlarmEngine(
	thresholdsRepo *repository.ThresholdsRepository,
	alarmsRepo *repository.AlarmsRepository,
	stateManager *StateManager,
	pushHub *hub.Hub,
	redisClient *redisx.Client,
	logger *zap.Logger,
) *AlarmEngine {
	return &AlarmEngine{
		thresholdsRepo: thresholdsRepo,
		alarmsRepo:     alarmsRepo,
		stateManager:   stateManager,
		pushHub:        pushHub,
		redisClient:    redisClient,
		logger:         logger,
	}
}

// AlarmEvent 报警转换事件（推送到 alarms 频道）
type AlarmEvent struct {
	Event string        `json:"event"` // open/acknowledge/resolve
	Alarm *models.Alarm `json:"alarm"`
}

// GenerateAlarmNo 生成报警编号：ALM + yyyymmddHHMMSS + 6位大写hex
func GenerateAlarmNo(now time.Time) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return "ALM" + now.Format("20060102150405") + hex
}

// EvaluatePointTx 在采集事务内评估一个点位的全部启用规则。
// 返回评估后的点位状态（normal/alarm）与最高报警级别；
// 报警写库在事务内完成，推送与落流在提交后由调用方触发（见 PendingEvents）。
type EvaluateOutcome struct {
	Status     string
	AlarmLevel string
	// PendingEvents 事务提交后需要广播的事件
	PendingEvents []AlarmEvent
}

// EvaluatePointTx 评估点位规则并在事务内落报警
func (e *AlarmEngine) EvaluatePointTx(ctx context.Context, tx *sql.Tx, point *models.Point, prevValue, curValue float64, now time.Time) (*EvaluateOutcome, error) {
	rules, err := e.thresholdsRepo.ListEnabledByPoint(ctx, point.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	outcome := &EvaluateOutcome{Status: models.PointStatusNormal}

	for _, rule := range rules {
		state, err := e.stateManager.GetState(ctx, point.ID, rule.ID)
		if err != nil {
			e.logger.Error("failed to load rule state",
				zap.Int64("point_id", point.ID),
				zap.Int64("threshold_id", rule.ID),
				zap.Error(err),
			)
			state = &RuleRuntimeState{State: StateNormal}
		}

		result := Evaluate(rule, prevValue, curValue, state.State)

		if result.Fires {
			// 记录首次越限时间，延时窗口内不开报警
			if state.FiringSince == nil {
				t := now
				state.FiringSince = &t
			}
			elapsed := now.Sub(*state.FiringSince)
			if elapsed >= time.Duration(rule.DelaySeconds)*time.Second {
				alarm, err := e.openAlarmTx(ctx, tx, point, rule, curValue, now)
				if err != nil {
					return nil, err
				}
				if alarm != nil {
					state.ActiveAlarmID = alarm.ID
					outcome.PendingEvents = append(outcome.PendingEvents, AlarmEvent{Event: "open", Alarm: alarm})
				}
				if outcome.Status != models.PointStatusAlarm || levelRank(rule.AlarmLevel) > levelRank(outcome.AlarmLevel) {
					outcome.Status = models.PointStatusAlarm
					outcome.AlarmLevel = rule.AlarmLevel
				}
			}
		} else {
			// 越限恢复：自动消除在途报警
			state.FiringSince = nil
			active, err := e.alarmsRepo.GetActiveAlarmTx(ctx, tx, point.ID, rule.ID)
			if err != nil {
				return nil, err
			}
			if active != nil {
				if err := e.alarmsRepo.ResolveAlarmTx(ctx, tx, active.ID, models.ResolveTypeAuto, now); err != nil {
					return nil, err
				}
				active.Status = models.AlarmStatusResolved
				active.ResolveType = models.ResolveTypeAuto
				t := now
				active.ResolvedAt = &t
				active.DurationSeconds = int64(now.Sub(active.CreatedAt).Seconds())
				outcome.PendingEvents = append(outcome.PendingEvents, AlarmEvent{Event: "resolve", Alarm: active})
			}
			state.ActiveAlarmID = 0
		}

		state.State = result.State
		if err := e.stateManager.SetState(ctx, point.ID, rule.ID, state); err != nil {
			e.logger.Error("failed to save rule state",
				zap.Int64("point_id", point.ID),
				zap.Int64("threshold_id", rule.ID),
				zap.Error(err),
			)
		}
	}

	return outcome, nil
}

// openAlarmTx 去重开报警：在途报警存在时不重复开
func (e *AlarmEngine) openAlarmTx(ctx context.Context, tx *sql.Tx, point *models.Point, rule *models.AlarmThreshold, value float64, now time.Time) (*models.Alarm, error) {
	existing, err := e.alarmsRepo.GetActiveAlarmTx(ctx, tx, point.ID, rule.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	message := rule.AlarmMessage
	if message == "" {
		message = fmt.Sprintf("%s %s 越限 (当前值 %.2f, 阈值 %.2f)",
			point.PointName, rule.ThresholdType, value, rule.ThresholdValue)
	}

	thresholdID := rule.ID
	alarm := &models.Alarm{
		AlarmNo:        GenerateAlarmNo(now),
		PointID:        point.ID,
		ThresholdID:    &thresholdID,
		AlarmLevel:     rule.AlarmLevel,
		AlarmType:      models.AlarmTypeThreshold,
		AlarmMessage:   message,
		TriggerValue:   value,
		ThresholdValue: rule.ThresholdValue,
		Status:         models.AlarmStatusActive,
		CreatedAt:      now,
	}

	id, err := e.alarmsRepo.InsertAlarmTx(ctx, tx, alarm)
	if err != nil {
		return nil, err
	}
	alarm.ID = id
	return alarm, nil
}

// PublishEvents 事务提交后广播报警事件并落流（尽力投递）
func (e *AlarmEngine) PublishEvents(ctx context.Context, events []AlarmEvent) {
	for _, ev := range events {
		e.pushHub.Publish(hub.ChannelAlarms, hub.Message{Type: "alarm_" + ev.Event, Data: ev.Alarm})

		if e.notifier != nil {
			e.notifier.NotifyAlarm(ctx, ev.Event, ev.Alarm)
		}

		if e.redisClient != nil {
			if _, err := redisx.PublishJSONToStream(ctx, e.redisClient, alarmStreamKey, ev); err != nil {
				e.logger.Warn("failed to publish alarm to stream",
					zap.String("alarm_no", ev.Alarm.AlarmNo),
					zap.Error(err),
				)
			}
		}
	}
}

// Acknowledge 确认报警并广播
func (e *AlarmEngine) Acknowledge(ctx context.Context, alarmID int64, ackBy, remark string) error {
	if err := e.alarmsRepo.Acknowledge(ctx, alarmID, ackBy, remark); err != nil {
		return err
	}
	alarm, err := e.alarmsRepo.GetAlarm(ctx, alarmID)
	if err != nil {
		return err
	}
	e.PublishEvents(ctx, []AlarmEvent{{Event: "acknowledge", Alarm: alarm}})
	return nil
}

// BatchAcknowledge 批量确认报警
func (e *AlarmEngine) BatchAcknowledge(ctx context.Context, alarmIDs []int64, ackBy, remark string) (int64, error) {
	n, err := e.alarmsRepo.BatchAcknowledge(ctx, alarmIDs, ackBy, remark)
	if err != nil {
		return 0, err
	}
	e.pushHub.Publish(hub.ChannelAlarms, hub.Message{
		Type: "alarm_batch_acknowledge",
		Data: map[string]interface{}{"alarm_ids": alarmIDs, "acknowledged": n, "by": ackBy},
	})
	return n, nil
}

// Resolve 手动消除报警并广播
func (e *AlarmEngine) Resolve(ctx context.Context, alarmID int64, resolvedBy, remark string) error {
	if err := e.alarmsRepo.ResolveManual(ctx, alarmID, resolvedBy, remark); err != nil {
		return err
	}
	alarm, err := e.alarmsRepo.GetAlarm(ctx, alarmID)
	if err != nil {
		return err
	}
	e.PublishEvents(ctx, []AlarmEvent{{Event: "resolve", Alarm: alarm}})
	return nil
}

func levelRank(level string) int {
	switch level {
	case models.AlarmLevelCritical:
		return 4
	case models.AlarmLevelMajor:
		return 3
	case models.AlarmLevelMinor:
		return 2
	case models.AlarmLevelInfo:
		return 1
	}
	return 0
}
