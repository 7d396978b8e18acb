package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// 通知事件类型
const (
	EventAlarmOpen     = "alarm_open"
	EventAlarmResolve  = "alarm_resolve"
	EventPlanCompleted = "plan_completed"
)

// Notification 外发通知体
type Notification struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// WebhookNotifier 严重告警与计划完成的 Webhook 通知器。
// 发送失败只记日志，绝不阻塞调用方主流程。
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewWebhookNotifier 创建通知器；url 为空时所有通知为空操作
func NewWebhookNotifier(url string, retryCount, timeoutSec int, logger *zap.Logger) *WebhookNotifier {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{client: client, url: url, logger: logger}
}

// NotifyAlarm 推送严重告警的产生/恢复；仅 critical 级别外发
func (n *WebhookNotifier) NotifyAlarm(ctx context.Context, event string, alarm *models.Alarm) {
	if n.url == "" || alarm == nil {
		return
	}
	if alarm.AlarmLevel != models.AlarmLevelCritical {
		return
	}
	n.post(ctx, &Notification{
		Event:     event,
		Timestamp: time.Now().Format(time.RFC3339),
		Data: map[string]interface{}{
			"alarm_no":      alarm.AlarmNo,
			"point_id":      alarm.PointID,
			"level":         alarm.AlarmLevel,
			"message":       alarm.AlarmMessage,
			"trigger_value": alarm.TriggerValue,
			"status":        alarm.Status,
		},
	})
}

// NotifyPlanCompleted 推送执行计划完成
func (n *WebhookNotifier) NotifyPlanCompleted(ctx context.Context, plan *models.ExecutionPlan) {
	if n.url == "" || plan == nil {
		return
	}
	n.post(ctx, &Notification{
		Event:     EventPlanCompleted,
		Timestamp: time.Now().Format(time.RFC3339),
		Data: map[string]interface{}{
			"plan_id":         plan.ID,
			"plan_name":       plan.PlanName,
			"opportunity_id":  plan.OpportunityID,
			"expected_saving": plan.ExpectedSaving,
		},
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload *Notification) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("event", payload.Event),
			zap.Error(err))
		return
	}
	if resp.IsError() {
		n.logger.Warn("webhook returned error status",
			zap.String("event", payload.Event),
			zap.Int("status", resp.StatusCode()))
		return
	}
	n.logger.Debug("webhook delivered",
		zap.String("event", payload.Event),
		zap.String("status", fmt.Sprintf("%d", resp.StatusCode())))
}
