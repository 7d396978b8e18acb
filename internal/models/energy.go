package models

import (
	"encoding/json"
	"time"
)

// 峰谷时段，由贵到贱
const (
	PeriodSharp      = "sharp"       // 尖峰
	PeriodPeak       = "peak"        // 高峰
	PeriodFlat       = "flat"        // 平段
	PeriodValley     = "valley"      // 低谷
	PeriodDeepValley = "deep_valley" // 深谷
)

// 计费模式
const (
	BillingModeDemand   = "demand"   // 按需量
	BillingModeCapacity = "capacity" // 按变压器容量
)

// TariffInterval 峰谷电价时段
type TariffInterval struct {
	ID            int64      `json:"id"`
	PricingName   string     `json:"pricing_name"`
	PeriodType    string     `json:"period_type"` // sharp/peak/flat/valley/deep_valley
	StartTime     string     `json:"start_time"`  // "HH:MM"
	EndTime       string     `json:"end_time"`    // "HH:MM"
	Price         float64    `json:"price"`       // 元/kWh
	EffectiveDate time.Time  `json:"effective_date"`
	ExpireDate    *time.Time `json:"expire_date,omitempty"`
	IsEnabled     bool       `json:"is_enabled"`
}

// PowerFactorRule 功率因数调整规则，区间 [Min, Max)
type PowerFactorRule struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Rate float64 `json:"rate"` // 调整比例 %，负数为奖励
}

// PricingConfig 电价综合配置
type PricingConfig struct {
	ID                  int64             `json:"id"`
	ConfigName          string            `json:"config_name"`
	BillingMode         string            `json:"billing_mode"` // demand/capacity
	DemandPrice         float64           `json:"demand_price"` // 元/kW·月，默认 38
	DeclaredDemand      float64           `json:"declared_demand"`
	OverDemandMultiplier float64          `json:"over_demand_multiplier"` // 默认 2.0
	CapacityPrice       float64           `json:"capacity_price"`         // 元/kVA·月，默认 28
	TransformerCapacity float64           `json:"transformer_capacity"`   // kVA
	PowerFactorBaseline float64           `json:"power_factor_baseline"`  // 默认 0.90
	PowerFactorRules    []PowerFactorRule `json:"power_factor_rules,omitempty"`
	TransmissionFee     float64           `json:"transmission_fee"` // 元/kWh，默认 0.15
	GovernmentFund      float64           `json:"government_fund"`  // 默认 0.05
	AuxiliaryFee        float64           `json:"auxiliary_fee"`    // 默认 0.02
	OtherFee            float64           `json:"other_fee"`
	EffectiveDate       time.Time         `json:"effective_date"`
	ExpireDate          *time.Time        `json:"expire_date,omitempty"`
	IsEnabled           bool              `json:"is_enabled"`
}

// EnergyDaily 日能耗统计
type EnergyDaily struct {
	ID           int64     `json:"id"`
	MeterPointID *int64    `json:"meter_point_id,omitempty"`
	StatDate     time.Time `json:"stat_date"`
	TotalEnergy  float64   `json:"total_energy"` // kWh
	SharpEnergy  float64   `json:"sharp_energy"`
	PeakEnergy   float64   `json:"peak_energy"`
	NormalEnergy float64   `json:"normal_energy"` // 平段
	ValleyEnergy float64   `json:"valley_energy"`
	DeepEnergy   float64   `json:"deep_energy"`
	MaxPower     float64   `json:"max_power"`
	AvgPower     float64   `json:"avg_power"`
	EnergyCost   float64   `json:"energy_cost"`
	PUE          float64   `json:"pue,omitempty"`
}

// EnergyMonthly 月能耗统计
type EnergyMonthly struct {
	ID           int64   `json:"id"`
	MeterPointID *int64  `json:"meter_point_id,omitempty"`
	StatYear     int     `json:"stat_year"`
	StatMonth    int     `json:"stat_month"`
	TotalEnergy  float64 `json:"total_energy"`
	SharpEnergy  float64 `json:"sharp_energy"`
	PeakEnergy   float64 `json:"peak_energy"`
	NormalEnergy float64 `json:"normal_energy"`
	ValleyEnergy float64 `json:"valley_energy"`
	DeepEnergy   float64 `json:"deep_energy"`
	MaxDemand    float64 `json:"max_demand"`
	EnergyCost   float64 `json:"energy_cost"`
	AvgPUE       float64 `json:"avg_pue,omitempty"`
}

// DemandHistory 月度需量记录
type DemandHistory struct {
	ID               int64   `json:"id"`
	MeterPointID     int64   `json:"meter_point_id"`
	StatYear         int     `json:"stat_year"`
	StatMonth        int     `json:"stat_month"`
	DeclaredDemand   float64 `json:"declared_demand"`
	MaxDemand        float64 `json:"max_demand"`
	AvgDemand        float64 `json:"avg_demand"`
	Demand95th       float64 `json:"demand_95th"`
	OverDeclaredTimes int    `json:"over_declared_times"`
	DemandCost       float64 `json:"demand_cost"`
}

// PowerSnapshot 功率瞬时采样（有功/无功/视在/功率因数）
type PowerSnapshot struct {
	DeviceID      *int64    `json:"device_id,omitempty"`
	MeterPointID  *int64    `json:"meter_point_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	ActivePower   float64   `json:"active_power"`   // kW
	ReactivePower float64   `json:"reactive_power"` // kVar
	ApparentPower float64   `json:"apparent_power"` // kVA
	PowerFactor   float64   `json:"power_factor"`
	Demand15Min   float64   `json:"demand_15min"`
	TimePeriod    string    `json:"time_period,omitempty"`
}

// PUESample PUE记录
type PUESample struct {
	ID           int64     `json:"id"`
	RecordTime   time.Time `json:"record_time"`
	TotalPower   float64   `json:"total_power"`
	ITPower      float64   `json:"it_power"`
	CoolingPower float64   `json:"cooling_power"`
	PUE          float64   `json:"pue"`
}

// 建议优先级
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// 建议状态
const (
	SuggestionPending   = "pending"
	SuggestionAccepted  = "accepted"
	SuggestionCompleted = "completed"
	SuggestionDismissed = "dismissed"
)

// EnergySuggestion 节能建议（分析器输出）
type EnergySuggestion struct {
	ID                 int64           `json:"id"`
	SourcePlugin       string          `json:"source_plugin"` // 来源分析器ID
	Category           string          `json:"category"`
	Priority           string          `json:"priority"` // critical/high/medium/low
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Detail             string          `json:"detail,omitempty"` // Markdown明细
	EstimatedSaving    float64         `json:"estimated_saving"`      // kWh/年
	EstimatedCostSaving float64        `json:"estimated_cost_saving"` // 元/年
	Difficulty         int             `json:"difficulty"`      // 1-5
	PaybackMonths      float64         `json:"payback_months"`  // 0表示无需投资
	Confidence         float64         `json:"confidence"`      // 0-100
	RelatedDevices     json.RawMessage `json:"related_devices,omitempty"`
	Parameters         json.RawMessage `json:"parameters,omitempty"` // 再仿真参数，按插件各异
	Status             string          `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
}
