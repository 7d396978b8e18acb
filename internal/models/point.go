package models

import "time"

// 点位类型
const (
	PointTypeAI = "AI" // 模拟量输入
	PointTypeDI = "DI" // 开关量输入
	PointTypeAO = "AO" // 模拟量输出
	PointTypeDO = "DO" // 开关量输出
)

// 数据质量
const (
	QualityGood      = 0 // 正常
	QualityUncertain = 1 // 可疑
	QualityBad       = 2 // 坏值
)

// 实时状态
const (
	PointStatusNormal  = "normal"
	PointStatusAlarm   = "alarm"
	PointStatusOffline = "offline"
)

// Point 监控点位
type Point struct {
	ID             int64     `json:"id"`
	PointCode      string    `json:"point_code"` // 唯一编码，如 A1_SRV_AI_001
	PointName      string    `json:"point_name"`
	PointType      string    `json:"point_type"` // AI/DI/AO/DO
	DeviceID       *int64    `json:"device_id,omitempty"`
	DeviceType     string    `json:"device_type,omitempty"`
	AreaCode       string    `json:"area_code,omitempty"`
	Unit           string    `json:"unit,omitempty"`
	MinRange       float64   `json:"min_range"`
	MaxRange       float64   `json:"max_range"`
	Precision      int       `json:"precision"`        // 小数位数，默认 2
	CollectInterval int      `json:"collect_interval"` // 采集周期（秒）
	StoreInterval  int       `json:"store_interval"`   // 存储周期（秒）
	IsEnabled      bool      `json:"is_enabled"`
	IsVirtual      bool      `json:"is_virtual"`
	CalcFormula    string    `json:"calc_formula,omitempty"`
	SortOrder      int       `json:"sort_order"`
	EnergyDeviceID *int64    `json:"energy_device_id,omitempty"` // 反向绑定的能耗设备
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PointRealtime 点位实时值（每点一行）
type PointRealtime struct {
	PointID      int64     `json:"point_id"`
	RawValue     float64   `json:"raw_value"`
	Value        float64   `json:"value"`
	ValueText    string    `json:"value_text,omitempty"` // DI状态文字
	Quality      int       `json:"quality"`              // 0正常 1可疑 2坏值
	Status       string    `json:"status"`               // normal/alarm/offline
	AlarmLevel   string    `json:"alarm_level,omitempty"`
	ChangeCount  int64     `json:"change_count"`
	LastChangeAt *time.Time `json:"last_change_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PointHistory 点位历史（仅追加）
type PointHistory struct {
	ID         int64     `json:"id"`
	PointID    int64     `json:"point_id"`
	Value      float64   `json:"value"`
	Quality    int       `json:"quality"`
	RecordedAt time.Time `json:"recorded_at"`
}

// 归档类型
const (
	ArchiveHourly  = "hourly"
	ArchiveDaily   = "daily"
	ArchiveMonthly = "monthly"
)

// PointArchive 点位归档（小时/日/月聚合）
type PointArchive struct {
	ID          int64     `json:"id"`
	PointID     int64     `json:"point_id"`
	ArchiveType string    `json:"archive_type"` // hourly/daily/monthly
	ValueMin    float64   `json:"value_min"`
	ValueMax    float64   `json:"value_max"`
	ValueAvg    float64   `json:"value_avg"`
	ValueSum    float64   `json:"value_sum"`
	SampleCount int64     `json:"sample_count"`
	RecordedAt  time.Time `json:"recorded_at"` // 桶起始时间
}

// 变化类型
const (
	ChangeTypeNormal  = "normal"
	ChangeTypeAlarm   = "alarm"
	ChangeTypeRecover = "recover"
)

// PointChangeLog 开关量变位记录
type PointChangeLog struct {
	ID         int64     `json:"id"`
	PointID    int64     `json:"point_id"`
	OldValue   float64   `json:"old_value"`
	NewValue   float64   `json:"new_value"`
	ChangeType string    `json:"change_type"` // normal/alarm/recover
	ChangedAt  time.Time `json:"changed_at"`
}

// RealtimeSummary 实时状态汇总
type RealtimeSummary struct {
	Total   int `json:"total"`
	Normal  int `json:"normal"`
	Alarm   int `json:"alarm"`
	Offline int `json:"offline"`
}
