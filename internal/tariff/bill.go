package tariff

import (
	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// BillInput 月度账单合成输入
type BillInput struct {
	EnergyByPeriod map[string]float64 // 各时段电量 kWh
	MaxDemandKW    float64            // 当月最大需量 kW
	AvgPowerFactor float64            // 平均功率因数
}

// Bill 月度账单合成结果
type Bill struct {
	EnergyCharge    float64 `json:"energy_charge"`     // 电度电费
	BasicCharge     float64 `json:"basic_charge"`      // 基本电费
	PFAdjustment    float64 `json:"pf_adjustment"`     // 功率因数调整（正罚负奖）
	RiderCharge     float64 `json:"rider_charge"`      // 输配/基金/附加等固定项
	OptimizableTotal float64 `json:"optimizable_total"` // 可优化部分 = 电度+基本+功因
	GrandTotal      float64 `json:"grand_total"`       // 总电费
	TotalEnergy     float64 `json:"total_energy"`      // 总电量 kWh
	OverDemandKW    float64 `json:"over_demand_kw"`    // 超申报需量 kW
}

// CalculateBill 账单合成。纯函数：同一快照与输入必得同一结果。
func CalculateBill(snap *Snapshot, input BillInput) *Bill {
	cfg := snap.Config
	bill := &Bill{}

	// 电度电费 = Σ 时段电量 × 时段电价
	for period, kwh := range input.EnergyByPeriod {
		bill.EnergyCharge += kwh * snap.PriceFor(period)
		bill.TotalEnergy += kwh
	}

	// 基本电费
	switch cfg.BillingMode {
	case models.BillingModeCapacity:
		bill.BasicCharge = cfg.TransformerCapacity * cfg.CapacityPrice
	default:
		declared := cfg.DeclaredDemand
		if input.MaxDemandKW <= declared {
			bill.BasicCharge = declared * cfg.DemandPrice
		} else {
			over := input.MaxDemandKW - declared
			bill.OverDemandKW = over
			bill.BasicCharge = declared*cfg.DemandPrice + over*cfg.DemandPrice*cfg.OverDemandMultiplier
		}
	}

	// 功率因数调整：命中 [min, max) 区间的规则，正为罚负为奖
	for _, rule := range cfg.PowerFactorRules {
		if input.AvgPowerFactor >= rule.Min && input.AvgPowerFactor < rule.Max {
			bill.PFAdjustment = rule.Rate / 100 * (bill.EnergyCharge + bill.BasicCharge)
			break
		}
	}

	// 固定附加费（不可优化）
	bill.RiderCharge = bill.TotalEnergy * (cfg.TransmissionFee + cfg.GovernmentFund + cfg.AuxiliaryFee + cfg.OtherFee)

	bill.OptimizableTotal = bill.EnergyCharge + bill.BasicCharge + bill.PFAdjustment
	bill.GrandTotal = bill.OptimizableTotal + bill.RiderCharge
	return bill
}

// CalculateShiftSaving 移峰节省 = 功率 × 时长 × 价差 × 工作日数
func CalculateShiftSaving(snap *Snapshot, powerKW, hours float64, sourcePeriod, targetPeriod string, workingDays int) float64 {
	diff := snap.PriceFor(sourcePeriod) - snap.PriceFor(targetPeriod)
	return powerKW * hours * diff * float64(workingDays)
}
