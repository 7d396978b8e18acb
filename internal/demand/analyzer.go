package demand

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// 建议类型
const (
	RecommendReduce   = "reduce"   // 调减申报需量
	RecommendIncrease = "increase" // 调增申报需量
	RecommendShave    = "shave"    // 削峰
	RecommendNone     = "none"
)

// Thresholds 需量分析阈值
type Thresholds struct {
	LowUtilization  float64 // 利用率下限，默认 0.80
	HighUtilization float64 // 利用率上限，默认 1.05
	OptimalTarget   float64 // 目标利用率，默认 0.90
	SafetyMargin    float64 // 安全裕度，默认 0.10
	MinAnnualSaving float64 // 机会成立的最小年节省，默认 5000
}

// DefaultThresholds 缺省阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowUtilization:  0.80,
		HighUtilization: 1.05,
		OptimalTarget:   0.90,
		SafetyMargin:    0.10,
		MinAnnualSaving: 5000,
	}
}

// Stats 需量历史统计量
type Stats struct {
	Months           int     `json:"months"`
	MaxDemand        float64 `json:"max_demand"`
	AvgDemand        float64 `json:"avg_demand"`
	P95Demand        float64 `json:"p95_demand"`
	StdDev           float64 `json:"std_dev"`
	OverDeclaredCount int    `json:"over_declared_count"`
	UtilizationRate  float64 `json:"utilization_rate"`
}

// Recommendation 需量调整建议
type Recommendation struct {
	Type            string  `json:"type"` // reduce/increase/shave/none
	DeclaredDemand  float64 `json:"declared_demand"`
	SuggestedDemand float64 `json:"suggested_demand,omitempty"`
	TargetReduction float64 `json:"target_reduction,omitempty"` // 削峰目标 kW
	AnnualSaving    float64 `json:"annual_saving"`              // 元/年，调增为负（避免的罚金另计）
	RiskLevel       string  `json:"risk_level"`                 // low/medium/high
	Confidence      float64 `json:"confidence"`                 // 0-1
	HasOpportunity  bool    `json:"has_opportunity"`
	Reason          string  `json:"reason"`
	Stats           *Stats  `json:"stats"`
}

// Analyzer 需量分析器：全系统需量语义的唯一权威来源
type Analyzer struct {
	metersRepo *repository.MetersRepository
	thresholds Thresholds
	logger     *zap.Logger
}

// NewAnalyzer 创建需量分析器
func NewAnalyzer(metersRepo *repository.MetersRepository, thresholds Thresholds, logger *zap.Logger) *Analyzer {
	return &Analyzer{metersRepo: metersRepo, thresholds: thresholds, logger: logger}
}

// Analyze 分析单个计量点最近 N 个月的需量并给出建议
func (a *Analyzer) Analyze(ctx context.Context, meterID int64, months int, demandPrice, overMultiplier float64) (*Recommendation, error) {
	meter, err := a.metersRepo.GetMeterPoint(ctx, meterID)
	if err != nil {
		return nil, err
	}
	history, err := a.metersRepo.ListDemandHistory(ctx, meterID, months)
	if err != nil {
		return nil, err
	}
	return a.Recommend(meter, history, demandPrice, overMultiplier)
}

// Recommend 由需量历史计算建议（纯计算，可独立测试）
func (a *Analyzer) Recommend(meter *models.MeterPoint, history []*models.DemandHistory, demandPrice, overMultiplier float64) (*Recommendation, error) {
	if len(history) < 3 {
		return nil, fmt.Errorf("at least 3 months of demand history required, got %d", len(history))
	}
	if meter.DeclaredDemand <= 0 {
		return nil, fmt.Errorf("meter %d has no declared demand", meter.ID)
	}
	if demandPrice <= 0 {
		demandPrice = 38
	}
	if overMultiplier <= 0 {
		overMultiplier = 2.0
	}

	stats := computeStats(meter.DeclaredDemand, history)
	th := a.thresholds
	step := stepFor(meter.DemandType)

	rec := &Recommendation{
		Type:           RecommendNone,
		DeclaredDemand: meter.DeclaredDemand,
		Stats:          stats,
	}

	util := stats.UtilizationRate
	switch {
	case util < th.LowUtilization:
		// 长期低利用率：按 P95 加裕度调减
		suggested := roundUpToStep(stats.P95Demand*(1+th.SafetyMargin), step)
		if suggested < meter.DeclaredDemand {
			rec.Type = RecommendReduce
			rec.SuggestedDemand = suggested
			rec.AnnualSaving = (meter.DeclaredDemand - suggested) * demandPrice * 12
			if util < 0.70 {
				rec.RiskLevel = "low"
				rec.Confidence = 0.90
			} else {
				rec.RiskLevel = "medium"
				rec.Confidence = 0.80
			}
			rec.Reason = fmt.Sprintf("需量利用率 %.0f%% 偏低，建议申报需量由 %.0f 调减至 %.0f",
				util*100, meter.DeclaredDemand, suggested)
		}

	case util > th.HighUtilization:
		// 频繁超限：按历史最大加 1.5 倍裕度调增，年节省记为负（增加的基本电费），
		// 另报告可避免的超需量罚金
		suggested := roundUpToStep(stats.MaxDemand*(1+1.5*th.SafetyMargin), step)
		over := stats.MaxDemand - meter.DeclaredDemand
		penaltyAvoided := over * demandPrice * overMultiplier * 12
		rec.Type = RecommendIncrease
		rec.SuggestedDemand = suggested
		rec.AnnualSaving = -penaltyAvoided
		rec.RiskLevel = "high"
		rec.Confidence = 0.95
		rec.Reason = fmt.Sprintf("最大需量 %.0f 已超申报 %.0f，建议调增至 %.0f，年可避免罚金约 %.0f 元",
			stats.MaxDemand, meter.DeclaredDemand, suggested, penaltyAvoided)

	case util <= 0.95 && stats.StdDev > 0.15*stats.AvgDemand:
		// 波动大：削峰到 P95
		target := stats.MaxDemand - stats.P95Demand
		if target > 0 {
			rec.Type = RecommendShave
			rec.TargetReduction = target
			rec.AnnualSaving = target * demandPrice * 12
			rec.RiskLevel = "medium"
			rec.Confidence = 0.75
			rec.Reason = fmt.Sprintf("需量波动明显（σ=%.0f），削峰 %.0f kW 可降低基本电费", stats.StdDev, target)
		}
	}

	rec.HasOpportunity = rec.Type != RecommendNone && math.Abs(rec.AnnualSaving) >= th.MinAnnualSaving
	return rec, nil
}

// computeStats 由月度最大需量序列计算统计量
func computeStats(declared float64, history []*models.DemandHistory) *Stats {
	maxDemands := make([]float64, 0, len(history))
	var sum float64
	var overCount int
	for _, h := range history {
		maxDemands = append(maxDemands, h.MaxDemand)
		sum += h.MaxDemand
		overCount += h.OverDeclaredTimes
	}

	n := len(maxDemands)
	avg := sum / float64(n)

	var variance float64
	for _, d := range maxDemands {
		variance += (d - avg) * (d - avg)
	}
	std := 0.0
	if n > 1 {
		std = math.Sqrt(variance / float64(n-1))
	}

	sorted := append([]float64(nil), maxDemands...)
	sort.Float64s(sorted)
	idx := int(float64(n-1) * 0.95)

	return &Stats{
		Months:           n,
		MaxDemand:        sorted[n-1],
		AvgDemand:        avg,
		P95Demand:        sorted[idx],
		StdDev:           std,
		OverDeclaredCount: overCount,
		UtilizationRate:  sorted[n-1] / declared,
	}
}

// stepFor 申报需量调整步长：kW 取 5，kVA 取 10
func stepFor(demandType string) float64 {
	if demandType == models.DemandTypeKVA {
		return 10
	}
	return 5
}

func roundUpToStep(v, step float64) float64 {
	return math.Ceil(v/step) * step
}
