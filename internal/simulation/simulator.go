package simulation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/demand"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

// 仿真类型
const (
	ModeDemandAdjustment = "demand_adjustment"
	ModePeakShift        = "peak_shift"
	ModeDeviceRegulation = "device_regulation"
	ModeCombined         = "combined"
)

// DefaultWorkingDays 年工作日数缺省值
const DefaultWorkingDays = 300

// Request 仿真请求，各模式用到的字段不同
type Request struct {
	Type string `json:"type"` // demand_adjustment/peak_shift/device_regulation/combined

	// demand_adjustment
	MeterPointID   int64   `json:"meter_point_id,omitempty"`
	NewDeclared    float64 `json:"new_declared,omitempty"` // kW
	HistoryMonths  int     `json:"history_months,omitempty"`

	// peak_shift
	ShiftPower   float64 `json:"shift_power,omitempty"` // kW
	ShiftHours   float64 `json:"shift_hours,omitempty"` // 小时/日
	SourcePeriod string  `json:"source_period,omitempty"`
	TargetPeriod string  `json:"target_period,omitempty"`
	WorkingDays  int     `json:"working_days,omitempty"`
	DeviceIDs    []int64 `json:"device_ids,omitempty"` // 为空则自动挑选

	// device_regulation
	DeviceID       int64   `json:"device_id,omitempty"`
	RegulationType string  `json:"regulation_type,omitempty"`
	TargetValue    float64 `json:"target_value,omitempty"`

	// combined
	Components []*Request `json:"components,omitempty"`
}

// Result 仿真结果
type Result struct {
	Type            string                 `json:"type"`
	IsFeasible      bool                   `json:"is_feasible"`
	CurrentState    map[string]interface{} `json:"current_state"`
	SimulatedState  map[string]interface{} `json:"simulated_state"`
	DailySaving     float64                `json:"daily_saving,omitempty"`    // 元/日
	MonthlySaving   float64                `json:"monthly_saving,omitempty"`  // 元/月
	AnnualSaving    float64                `json:"annual_saving"`             // 元/年
	Confidence      float64                `json:"confidence"`                // 0-1
	ConfidenceBand  string                 `json:"confidence_band"`           // high/medium/low/very_low
	Warnings        []string               `json:"warnings,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
	Components      []*Result              `json:"components,omitempty"`
}

// Simulator 节能方案假设分析器
// 与生产路径共用电价快照与需量分析器，保证仿真口径一致
type Simulator struct {
	metersRepo     *repository.MetersRepository
	devicesRepo    *repository.DevicesRepository
	tariffSvc      *tariff.Service
	demandAnalyzer *demand.Analyzer
	logger         *zap.Logger
}

// NewSimulator 创建仿真器
func NewSimulator(
	metersRepo *repository.MetersRepository,
	devicesRepo *repository.DevicesRepository,
	tariffSvc *tariff.Service,
	demandAnalyzer *demand.Analyzer,
	logger *zap.Logger,
) *Simulator {
	return &Simulator{
		metersRepo:     metersRepo,
		devicesRepo:    devicesRepo,
		tariffSvc:      tariffSvc,
		demandAnalyzer: demandAnalyzer,
		logger:         logger,
	}
}

// Simulate 执行一次仿真
func (s *Simulator) Simulate(ctx context.Context, req *Request) (*Result, error) {
	switch req.Type {
	case ModeDemandAdjustment:
		return s.simulateDemand(ctx, req)
	case ModePeakShift:
		return s.simulatePeakShift(ctx, req)
	case ModeDeviceRegulation:
		return s.simulateRegulation(ctx, req)
	case ModeCombined:
		return s.simulateCombined(ctx, req)
	default:
		return nil, fmt.Errorf("unknown simulation type: %s", req.Type)
	}
}

// simulateDemand 需量调整仿真
func (s *Simulator) simulateDemand(ctx context.Context, req *Request) (*Result, error) {
	if req.MeterPointID == 0 || req.NewDeclared <= 0 {
		return nil, fmt.Errorf("meter_point_id and new_declared are required")
	}
	meter, err := s.metersRepo.GetMeterPoint(ctx, req.MeterPointID)
	if err != nil {
		return nil, fmt.Errorf("failed to load meter point: %w", err)
	}
	months := req.HistoryMonths
	if months <= 0 {
		months = 12
	}
	history, err := s.metersRepo.ListDemandHistory(ctx, req.MeterPointID, months)
	if err != nil {
		return nil, fmt.Errorf("failed to load demand history: %w", err)
	}
	if len(history) == 0 {
		return nil, repository.ErrNotFound
	}

	snap, err := s.tariffSvc.LoadSnapshot(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load tariff snapshot: %w", err)
	}
	demandPrice := snap.Config.DemandPrice
	overMult := snap.Config.OverDemandMultiplier

	maxDemands := make([]float64, 0, len(history))
	for _, h := range history {
		maxDemands = append(maxDemands, h.MaxDemand)
	}
	sort.Float64s(maxDemands)
	p95 := percentile95(maxDemands)

	// 可行性：新申报不得低于 P95 的 95%
	feasible := req.NewDeclared >= p95*0.95

	overCount := 0
	for _, d := range maxDemands {
		if d > req.NewDeclared {
			overCount++
		}
	}
	overRisk := float64(overCount) / float64(len(maxDemands))

	currentMonthly := meter.DeclaredDemand * demandPrice
	simMonthly := req.NewDeclared * demandPrice
	// 超需量部分按历史均值折算罚金
	var avgOverCost float64
	if overCount > 0 {
		var overSum float64
		for _, d := range maxDemands {
			if d > req.NewDeclared {
				overSum += (d - req.NewDeclared) * demandPrice * overMult
			}
		}
		avgOverCost = overSum / float64(len(maxDemands))
	}
	monthlySaving := currentMonthly - simMonthly - avgOverCost
	annualSaving := monthlySaving * 12

	base := 0.8
	if !feasible {
		base = 0.4
	}
	confidence := clamp(base-overRisk*0.3+math.Min(float64(len(maxDemands))/100, 0.2), 0.1, 1.0)

	result := &Result{
		Type:       ModeDemandAdjustment,
		IsFeasible: feasible,
		CurrentState: map[string]interface{}{
			"declared_demand": meter.DeclaredDemand,
			"monthly_cost":    round2(currentMonthly),
			"p95_demand":      round2(p95),
		},
		SimulatedState: map[string]interface{}{
			"declared_demand": req.NewDeclared,
			"monthly_cost":    round2(simMonthly),
			"over_risk":       round2(overRisk),
		},
		MonthlySaving:  round2(monthlySaving),
		AnnualSaving:   round2(annualSaving),
		Confidence:     confidence,
		ConfidenceBand: Band(confidence),
	}
	if !feasible {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("新申报 %.0f kW 低于P95需量的95%%（%.0f kW），超需量风险高", req.NewDeclared, p95*0.95))
	}
	if overRisk > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("历史 %d 个月中有 %d 个月最大需量超过新申报值", len(maxDemands), overCount))
	}
	if feasible && monthlySaving > 0 {
		result.Recommendations = append(result.Recommendations, "建议在下一个申报周期调整申报需量")
	}
	return result, nil
}

// simulatePeakShift 移峰仿真
func (s *Simulator) simulatePeakShift(ctx context.Context, req *Request) (*Result, error) {
	if req.ShiftPower <= 0 || req.ShiftHours <= 0 {
		return nil, fmt.Errorf("shift_power and shift_hours are required")
	}
	source := tariff.NormalizePeriod(req.SourcePeriod)
	target := tariff.NormalizePeriod(req.TargetPeriod)
	if source == "" {
		source = models.PeriodPeak
	}
	if target == "" {
		target = models.PeriodValley
	}
	workingDays := req.WorkingDays
	if workingDays <= 0 {
		workingDays = DefaultWorkingDays
	}

	snap, err := s.tariffSvc.LoadSnapshot(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load tariff snapshot: %w", err)
	}
	sourcePrice := snap.PriceFor(source)
	targetPrice := snap.PriceFor(target)

	result := &Result{
		Type: ModePeakShift,
		CurrentState: map[string]interface{}{
			"source_period": source,
			"source_price":  sourcePrice,
			"target_period": target,
			"target_price":  targetPrice,
		},
	}
	if sourcePrice <= targetPrice {
		result.IsFeasible = false
		result.Confidence = 0.1
		result.ConfidenceBand = Band(0.1)
		result.Warnings = append(result.Warnings, "源时段电价不高于目标时段，移峰无收益")
		return result, nil
	}

	dailySaving := req.ShiftPower * req.ShiftHours * (sourcePrice - targetPrice)
	annualSaving := tariff.CalculateShiftSaving(snap, req.ShiftPower, req.ShiftHours, source, target, workingDays)

	// 挑选可承担移峰功率的设备（按可移功率降序贪心）
	devices, shiftConfigs, err := s.loadShiftableDevices(ctx, req.DeviceIDs)
	if err != nil {
		return nil, err
	}
	type pick struct {
		device *models.PowerDevice
		power  float64
	}
	var picks []pick
	for _, d := range devices {
		cfg := shiftConfigs[d.ID]
		if cfg == nil || !cfg.IsShiftable || cfg.IsCritical {
			continue
		}
		picks = append(picks, pick{device: d, power: d.RatedPower * cfg.ShiftablePowerRatio})
	}
	sort.Slice(picks, func(i, j int) bool { return picks[i].power > picks[j].power })

	var totalShiftable float64
	for _, p := range picks {
		totalShiftable += p.power
	}

	var selected []map[string]interface{}
	var covered float64
	for _, p := range picks {
		if covered >= req.ShiftPower {
			break
		}
		covered += p.power
		selected = append(selected, map[string]interface{}{
			"device_id":   p.device.ID,
			"device_name": p.device.DeviceName,
			"shift_power": round2(p.power),
		})
	}

	confidence := 0.85
	if req.ShiftHours > 6 {
		confidence *= 0.9
		result.Warnings = append(result.Warnings, "日移峰时长超过6小时，对生产排程影响较大")
	}

	// 可行当且仅当请求功率不超过全站可移容量
	result.IsFeasible = req.ShiftPower <= totalShiftable
	if !result.IsFeasible {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("可移设备合计 %.0f kW，不足以覆盖请求的 %.0f kW", totalShiftable, req.ShiftPower))
		confidence = 0.3
	}
	result.SimulatedState = map[string]interface{}{
		"shift_power":      req.ShiftPower,
		"shift_hours":      req.ShiftHours,
		"working_days":     workingDays,
		"selected_devices": selected,
	}
	result.DailySaving = round2(dailySaving)
	result.AnnualSaving = round2(annualSaving)
	result.Confidence = confidence
	result.ConfidenceBand = Band(confidence)
	if len(selected) > 0 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("建议 %d 台设备参与移峰，移至%s时段运行", len(selected), target))
	}
	return result, nil
}

func (s *Simulator) loadShiftableDevices(ctx context.Context, ids []int64) ([]*models.PowerDevice, map[int64]*models.DeviceShiftConfig, error) {
	devices, err := s.devicesRepo.ListEnabledDevices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if len(ids) > 0 {
		want := make(map[int64]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		filtered := devices[:0]
		for _, d := range devices {
			if want[d.ID] {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}
	shiftConfigs, err := s.devicesRepo.GetShiftConfigs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load shift configs: %w", err)
	}
	return devices, shiftConfigs, nil
}

// simulateRegulation 设备调节仿真
func (s *Simulator) simulateRegulation(ctx context.Context, req *Request) (*Result, error) {
	if req.DeviceID == 0 || req.RegulationType == "" {
		return nil, fmt.Errorf("device_id and regulation_type are required")
	}
	reg, err := s.devicesRepo.GetRegulationConfig(ctx, req.DeviceID, req.RegulationType)
	if err != nil {
		return nil, fmt.Errorf("failed to load regulation config: %w", err)
	}

	result := &Result{
		Type: ModeDeviceRegulation,
		CurrentState: map[string]interface{}{
			"device_id":       req.DeviceID,
			"regulation_type": reg.RegulationType,
			"current_value":   reg.CurrentValue,
			"unit":            reg.Unit,
		},
	}

	if req.TargetValue < reg.MinValue || req.TargetValue > reg.MaxValue {
		result.IsFeasible = false
		result.Confidence = 0.2
		result.ConfidenceBand = Band(0.2)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("目标值 %.1f 超出调节范围 [%.1f, %.1f]", req.TargetValue, reg.MinValue, reg.MaxValue))
		return result, nil
	}

	powerDelta, fromCurve := regulationPowerDelta(reg, req.TargetValue)

	snap, err := s.tariffSvc.LoadSnapshot(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load tariff snapshot: %w", err)
	}
	avgPrice := snap.WeightedAvgPrice()

	// 按日8小时有效调节、50%在高价时段折算
	dailySaving := powerDelta * 8 * avgPrice * 0.5
	annualSaving := dailySaving * DefaultWorkingDays

	confidence := 0.75
	if !fromCurve {
		confidence = 0.6
		result.Warnings = append(result.Warnings, "设备未配置功率曲线，按线性功率系数估算")
	}

	result.IsFeasible = powerDelta > 0
	result.SimulatedState = map[string]interface{}{
		"target_value": req.TargetValue,
		"power_delta":  round2(powerDelta),
	}
	result.DailySaving = round2(dailySaving)
	result.AnnualSaving = round2(annualSaving)
	result.Confidence = confidence
	result.ConfidenceBand = Band(confidence)
	if powerDelta <= 0 {
		result.Warnings = append(result.Warnings, "目标值不降低功率，无节能收益")
	}
	return result, nil
}

// regulationPowerDelta 调节前后的功率差（kW，正数为省电）
// 优先用功率曲线插值，否则按线性功率系数估算
func regulationPowerDelta(reg *models.LoadRegulationConfig, target float64) (delta float64, fromCurve bool) {
	if len(reg.PowerCurve) >= 2 {
		cur := interpolateCurve(reg.PowerCurve, reg.CurrentValue)
		tgt := interpolateCurve(reg.PowerCurve, target)
		return cur - tgt, true
	}
	return reg.PowerFactor * (target - reg.CurrentValue) * reg.BasePower / 10, false
}

// interpolateCurve 功率曲线分段线性插值，越界取端点
func interpolateCurve(curve []models.PowerCurvePoint, value float64) float64 {
	pts := make([]models.PowerCurvePoint, len(curve))
	copy(pts, curve)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Value < pts[j].Value })

	if value <= pts[0].Value {
		return pts[0].Power
	}
	if value >= pts[len(pts)-1].Value {
		return pts[len(pts)-1].Power
	}
	for i := 1; i < len(pts); i++ {
		if value <= pts[i].Value {
			lo, hi := pts[i-1], pts[i]
			if hi.Value == lo.Value {
				return lo.Power
			}
			ratio := (value - lo.Value) / (hi.Value - lo.Value)
			return lo.Power + ratio*(hi.Power-lo.Power)
		}
	}
	return pts[len(pts)-1].Power
}

// simulateCombined 组合仿真：各子项收益求和，置信度取最小
func (s *Simulator) simulateCombined(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Components) == 0 {
		return nil, fmt.Errorf("combined simulation requires components")
	}

	result := &Result{
		Type:           ModeCombined,
		IsFeasible:     true,
		Confidence:     1.0,
		CurrentState:   map[string]interface{}{},
		SimulatedState: map[string]interface{}{},
	}
	for i, comp := range req.Components {
		if comp.Type == ModeCombined {
			return nil, fmt.Errorf("nested combined simulation is not supported")
		}
		sub, err := s.Simulate(ctx, comp)
		if err != nil {
			return nil, fmt.Errorf("component %d (%s) failed: %w", i, comp.Type, err)
		}
		result.Components = append(result.Components, sub)
		result.AnnualSaving += sub.AnnualSaving
		result.DailySaving += sub.DailySaving
		result.MonthlySaving += sub.MonthlySaving
		if sub.Confidence < result.Confidence {
			result.Confidence = sub.Confidence
		}
		if !sub.IsFeasible {
			result.IsFeasible = false
		}
		result.Warnings = append(result.Warnings, sub.Warnings...)
	}
	result.AnnualSaving = round2(result.AnnualSaving)
	result.DailySaving = round2(result.DailySaving)
	result.MonthlySaving = round2(result.MonthlySaving)
	result.ConfidenceBand = Band(result.Confidence)
	return result, nil
}

func percentile95(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
