package models

import (
	"encoding/json"
	"time"
)

// 设备类型
const (
	DeviceTypeUPS       = "UPS"
	DeviceTypeHVAC      = "HVAC"
	DeviceTypeITServer  = "IT_SERVER"
	DeviceTypeITStorage = "IT_STORAGE"
	DeviceTypeLighting  = "LIGHTING"
	DeviceTypePump      = "PUMP"
	DeviceTypeChiller   = "CHILLER"
	DeviceTypePDU       = "PDU"
	DeviceTypeOther     = "OTHER"
)

// PowerDevice 用能设备（配电拓扑节点）
type PowerDevice struct {
	ID              int64     `json:"id"`
	DeviceCode      string    `json:"device_code"` // 唯一编码，如 SRV-001
	DeviceName      string    `json:"device_name"`
	DeviceType      string    `json:"device_type"`
	RatedPower      float64   `json:"rated_power"`  // 额定功率 kW
	PowerFactor     float64   `json:"power_factor"` // 默认 0.9
	Efficiency      float64   `json:"efficiency"`   // 额定效率 %，默认 95
	CircuitID       *int64    `json:"circuit_id,omitempty"`
	MonitorDeviceID *int64    `json:"monitor_device_id,omitempty"`
	PowerPointID    *int64    `json:"power_point_id,omitempty"`
	CurrentPointID  *int64    `json:"current_point_id,omitempty"`
	EnergyPointID   *int64    `json:"energy_point_id,omitempty"`
	VoltagePointID  *int64    `json:"voltage_point_id,omitempty"`
	PFPointID       *int64    `json:"pf_point_id,omitempty"`
	IsITLoad        bool      `json:"is_it_load"`
	IsCritical      bool      `json:"is_critical"`
	AreaCode        string    `json:"area_code,omitempty"`
	IsEnabled       bool      `json:"is_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DeviceShiftConfig 设备移峰配置
type DeviceShiftConfig struct {
	ID                  int64           `json:"id"`
	DeviceID            int64           `json:"device_id"` // 唯一
	IsShiftable         bool            `json:"is_shiftable"`
	ShiftablePowerRatio float64         `json:"shiftable_power_ratio"` // 0-1
	IsCritical          bool            `json:"is_critical"`
	AllowedShiftHours   json.RawMessage `json:"allowed_shift_hours,omitempty"`   // 小时列表 JSON
	ForbiddenShiftHours json.RawMessage `json:"forbidden_shift_hours,omitempty"` // 小时列表 JSON
	MinContinuousRuntime int            `json:"min_continuous_runtime"`          // 分钟
	MaxShiftDuration    int             `json:"max_shift_duration"`              // 小时
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// 调节类型
const (
	RegulationTemperature = "temperature"
	RegulationBrightness  = "brightness"
	RegulationMode        = "mode"
	RegulationLoad        = "load"
)

// PowerCurvePoint 调节值-功率折线上的一个点
type PowerCurvePoint struct {
	Value float64 `json:"value"`
	Power float64 `json:"power"`
}

// LoadRegulationConfig 负载调节配置
type LoadRegulationConfig struct {
	ID             int64             `json:"id"`
	DeviceID       int64             `json:"device_id"`
	RegulationType string            `json:"regulation_type"` // temperature/brightness/mode/load
	MinValue       float64           `json:"min_value"`
	MaxValue       float64           `json:"max_value"`
	CurrentValue   float64           `json:"current_value"`
	DefaultValue   float64           `json:"default_value"`
	StepSize       float64           `json:"step_size"`
	Unit           string            `json:"unit,omitempty"`
	PowerFactor    float64           `json:"power_factor"` // 每单位调节的功率系数
	BasePower      float64           `json:"base_power"`   // 基准功率 kW
	PowerCurve     []PowerCurvePoint `json:"power_curve,omitempty"`
	Priority       int               `json:"priority"`
	ComfortImpact  int               `json:"comfort_impact"`
	IsEnabled      bool              `json:"is_enabled"`
	IsAuto         bool              `json:"is_auto"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// 需量计费类型
const (
	DemandTypeKW  = "kW"
	DemandTypeKVA = "kVA"
)

// MeterPoint 计量点（计费主体）
type MeterPoint struct {
	ID              int64     `json:"id"`
	MeterCode       string    `json:"meter_code"` // 唯一
	MeterName       string    `json:"meter_name"`
	TransformerID   *int64    `json:"transformer_id,omitempty"`
	DeclaredDemand  float64   `json:"declared_demand"` // 申报需量 kW
	DemandType      string    `json:"demand_type"`     // kW/kVA
	DemandPeriod    int       `json:"demand_period"`   // 需量周期（分钟），默认 15
	CustomerNo      string    `json:"customer_no,omitempty"`
	PricingConfigID *int64    `json:"pricing_config_id,omitempty"`
	IsEnabled       bool      `json:"is_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Transformer 变压器
type Transformer struct {
	ID             int64   `json:"id"`
	TransformerCode string `json:"transformer_code"`
	RatedCapacity  float64 `json:"rated_capacity"` // kVA
	DeclaredDemand float64 `json:"declared_demand"`
	DemandType     string  `json:"demand_type"`
}

// DistributionCircuit 配电回路
type DistributionCircuit struct {
	ID            int64  `json:"id"`
	PanelID       int64  `json:"panel_id"`
	CircuitCode   string `json:"circuit_code"`
	CircuitName   string `json:"circuit_name"`
	MeterPointID  *int64 `json:"meter_point_id,omitempty"`
	LoadType      string `json:"load_type,omitempty"`
	IsShiftable   bool   `json:"is_shiftable"`
	ShiftPriority int    `json:"shift_priority"`
}
