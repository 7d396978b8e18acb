package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

// 追踪期默认电价（无电价配置时兜底）
var trackingFallbackPrices = map[string]float64{
	models.PeriodSharp:      1.20,
	models.PeriodPeak:       0.95,
	models.PeriodFlat:       0.65,
	models.PeriodValley:     0.35,
	models.PeriodDeepValley: 0.20,
}

// Tracker 执行效果追踪器。
// 计划完成后在追踪窗口结束时对比前后能耗，折算实际年节省并评定达成率。
type Tracker struct {
	executionRepo *repository.ExecutionRepository
	energyRepo    *repository.EnergyRepository
	tariffSvc     *tariff.Service
	logger        *zap.Logger
}

// NewTracker 创建效果追踪器
func NewTracker(
	executionRepo *repository.ExecutionRepository,
	energyRepo *repository.EnergyRepository,
	tariffSvc *tariff.Service,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		executionRepo: executionRepo,
		energyRepo:    energyRepo,
		tariffSvc:     tariffSvc,
		logger:        logger,
	}
}

// windowStat 窗口能耗汇总
type windowStat struct {
	Days        int     `json:"days"`
	TotalEnergy float64 `json:"total_energy"`
	DailyAvg    float64 `json:"daily_avg"`
	AvgCost     float64 `json:"avg_cost"`
}

// Track 对已完成的计划执行一次效果评估
func (t *Tracker) Track(ctx context.Context, planID int64, trackingDays int) (*models.ExecutionResult, error) {
	plan, err := t.executionRepo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != models.PlanStatusCompleted || plan.CompletedAt == nil {
		return nil, fmt.Errorf("%w: plan %d is not completed", repository.ErrValidation, planID)
	}
	if trackingDays <= 0 {
		trackingDays = 30
	}

	opp, err := t.executionRepo.GetOpportunity(ctx, plan.OpportunityID)
	if err != nil {
		return nil, err
	}

	completedAt := *plan.CompletedAt
	trackingEnd := completedAt.AddDate(0, 0, trackingDays)
	if trackingEnd.After(time.Now()) {
		trackingEnd = time.Now()
	}

	var actualAnnual float64
	var before, after *windowStat

	if isLoadShiftPlan(opp) {
		// 移峰类计划：电量总量不变、费用下降，从计划自身参数按实际工作日折算，
		// 不做前后电量对比
		actualAnnual, err = t.loadShiftActual(ctx, opp)
		if err != nil {
			return nil, err
		}
	} else {
		before, after, err = t.compareWindows(ctx, completedAt, trackingEnd)
		if err != nil {
			return nil, err
		}
		dailyCostDelta := before.AvgCost - after.AvgCost
		actualAnnual = dailyCostDelta * 365
	}

	expected := plan.ExpectedSaving
	achievement := 0.0
	if expected > 0 {
		achievement = actualAnnual / expected * 100
	}

	result := &models.ExecutionResult{
		PlanID:          planID,
		TrackingPeriod:  trackingDays,
		TrackingStart:   completedAt,
		TrackingEnd:     trackingEnd,
		ActualSaving:    math.Round(actualAnnual*100) / 100,
		AchievementRate: math.Round(achievement*100) / 100,
		Conclusion:      conclusionFor(achievement),
		Status:          "completed",
	}
	if before != nil {
		result.EnergyBefore, _ = json.Marshal(before)
		result.EnergyAfter, _ = json.Marshal(after)
	}

	if _, err := t.executionRepo.InsertResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to insert execution result: %w", err)
	}

	t.logger.Info("effect tracking completed",
		zap.Int64("plan_id", planID),
		zap.Float64("actual_saving", result.ActualSaving),
		zap.Float64("achievement_rate", result.AchievementRate))
	return result, nil
}

// isLoadShiftPlan 机会是否来自移峰类建议
func isLoadShiftPlan(opp *models.Opportunity) bool {
	if len(opp.AnalysisData) == 0 {
		return false
	}
	var params struct {
		SourcePeriod string  `json:"source_period"`
		ShiftPower   float64 `json:"shift_power"`
	}
	if err := json.Unmarshal(opp.AnalysisData, &params); err != nil {
		return false
	}
	return params.SourcePeriod != "" && params.ShiftPower > 0
}

// loadShiftActual 按移峰参数×实际电价×250个工作日折算实际年节省
func (t *Tracker) loadShiftActual(ctx context.Context, opp *models.Opportunity) (float64, error) {
	var params struct {
		ShiftPower   float64 `json:"shift_power"`
		ShiftHours   float64 `json:"shift_hours"`
		SourcePeriod string  `json:"source_period"`
		TargetPeriod string  `json:"target_period"`
	}
	if err := json.Unmarshal(opp.AnalysisData, &params); err != nil {
		return 0, fmt.Errorf("failed to parse shift parameters: %w", err)
	}
	if params.ShiftHours <= 0 {
		params.ShiftHours = 8
	}

	sourcePrice := t.periodPrice(ctx, params.SourcePeriod)
	targetPrice := t.periodPrice(ctx, params.TargetPeriod)
	dailySaving := params.ShiftPower * params.ShiftHours * (sourcePrice - targetPrice)

	// 移峰只在工作日发生，按年250个工作日折算
	return dailySaving * 250, nil
}

// periodPrice 时段电价，优先取生效电价，失败时用追踪期缺省价
func (t *Tracker) periodPrice(ctx context.Context, period string) float64 {
	period = tariff.NormalizePeriod(period)
	snap, err := t.tariffSvc.LoadSnapshot(ctx, time.Now())
	if err == nil {
		if p := snap.PriceFor(period); p > 0 {
			return p
		}
	}
	if p, ok := trackingFallbackPrices[period]; ok {
		return p
	}
	return trackingFallbackPrices[models.PeriodFlat]
}

// compareWindows 取计划完成前后等长窗口的日能耗做对比
func (t *Tracker) compareWindows(ctx context.Context, completedAt, trackingEnd time.Time) (*windowStat, *windowStat, error) {
	windowDays := int(trackingEnd.Sub(completedAt).Hours() / 24)
	if windowDays < 1 {
		windowDays = 1
	}
	beforeStart := completedAt.AddDate(0, 0, -windowDays)

	beforeRows, err := t.energyRepo.ListEnergyDailyRange(ctx, beforeStart, completedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pre-window energy: %w", err)
	}
	afterRows, err := t.energyRepo.ListEnergyDailyRange(ctx, completedAt, trackingEnd)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load post-window energy: %w", err)
	}
	if len(beforeRows) == 0 || len(afterRows) == 0 {
		return nil, nil, fmt.Errorf("%w: insufficient energy data for tracking window", repository.ErrValidation)
	}

	avgPrice := t.weightedAvgPrice(ctx)
	return summarizeWindow(beforeRows, avgPrice), summarizeWindow(afterRows, avgPrice), nil
}

// weightedAvgPrice 加权平均电价，无电价配置时回退 0.6 元/kWh
func (t *Tracker) weightedAvgPrice(ctx context.Context) float64 {
	snap, err := t.tariffSvc.LoadSnapshot(ctx, time.Now())
	if err != nil {
		return 0.6
	}
	return snap.WeightedAvgPrice()
}

func summarizeWindow(rows []*models.EnergyDaily, avgPrice float64) *windowStat {
	var total float64
	for _, r := range rows {
		total += r.TotalEnergy
	}
	days := len(rows)
	dailyAvg := total / float64(days)
	return &windowStat{
		Days:        days,
		TotalEnergy: math.Round(total*100) / 100,
		DailyAvg:    math.Round(dailyAvg*100) / 100,
		AvgCost:     math.Round(dailyAvg*avgPrice*100) / 100,
	}
}

// conclusionFor 达成率评级
func conclusionFor(achievement float64) string {
	switch {
	case achievement >= 100:
		return "超出预期"
	case achievement >= 80:
		return "达到预期"
	case achievement >= 50:
		return "部分达成"
	default:
		return "未达预期"
	}
}
