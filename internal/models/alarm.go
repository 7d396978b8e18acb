package models

import "time"

// 阈值类型
const (
	ThresholdHighHigh = "high_high"
	ThresholdHigh     = "high"
	ThresholdLow      = "low"
	ThresholdLowLow   = "low_low"
	ThresholdEqual    = "equal"
	ThresholdChange   = "change" // DI变位
)

// 报警级别
const (
	AlarmLevelCritical = "critical"
	AlarmLevelMajor    = "major"
	AlarmLevelMinor    = "minor"
	AlarmLevelInfo     = "info"
)

// 报警类型
const (
	AlarmTypeThreshold     = "threshold"
	AlarmTypeCommunication = "communication"
	AlarmTypeSystem        = "system"
)

// 报警状态
const (
	AlarmStatusActive       = "active"
	AlarmStatusAcknowledged = "acknowledged"
	AlarmStatusResolved     = "resolved"
	AlarmStatusIgnored      = "ignored"
)

// 消除方式
const (
	ResolveTypeManual  = "manual"
	ResolveTypeAuto    = "auto"
	ResolveTypeTimeout = "timeout"
)

// AlarmThreshold 报警阈值规则
type AlarmThreshold struct {
	ID             int64     `json:"id"`
	PointID        int64     `json:"point_id"`
	ThresholdType  string    `json:"threshold_type"` // high_high/high/low/low_low/equal/change
	ThresholdValue float64   `json:"threshold_value"`
	AlarmLevel     string    `json:"alarm_level"` // critical/major/minor/info
	AlarmMessage   string    `json:"alarm_message,omitempty"`
	DelaySeconds   int       `json:"delay_seconds"` // 持续超限多久才触发
	DeadBand       float64   `json:"dead_band"`     // 回差（滞回带）
	Priority       int       `json:"priority"`
	IsEnabled      bool      `json:"is_enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Alarm 报警记录
type Alarm struct {
	ID              int64      `json:"id"`
	AlarmNo         string     `json:"alarm_no"` // ALM+yyyymmddHHMMSS+6位hex
	PointID         int64      `json:"point_id"`
	ThresholdID     *int64     `json:"threshold_id,omitempty"`
	AlarmLevel      string     `json:"alarm_level"`
	AlarmType       string     `json:"alarm_type"` // threshold/communication/system
	AlarmMessage    string     `json:"alarm_message"`
	TriggerValue    float64    `json:"trigger_value"`
	ThresholdValue  float64    `json:"threshold_value"`
	Status          string     `json:"status"` // active/acknowledged/resolved/ignored
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	AckRemark       string     `json:"ack_remark,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolveRemark   string     `json:"resolve_remark,omitempty"`
	ResolveType     string     `json:"resolve_type,omitempty"` // manual/auto/timeout
	DurationSeconds int64      `json:"duration_seconds"`
	IsNotified      bool       `json:"is_notified"`
	NotifyCount     int        `json:"notify_count"`
	CreatedAt       time.Time  `json:"created_at"`
}

// AlarmCounts 各级别未消除报警数量
type AlarmCounts struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}
