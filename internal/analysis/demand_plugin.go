package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/proecheng/dcim-platform-sub000/internal/demand"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

// DemandAnalyzerPlugin 需量分析插件：包装需量分析器，逐计量点生成建议
type DemandAnalyzerPlugin struct {
	cfg      *PluginConfig
	analyzer *demand.Analyzer
}

// NewDemandAnalyzerPlugin 创建需量分析插件
func NewDemandAnalyzerPlugin(analyzer *demand.Analyzer) *DemandAnalyzerPlugin {
	return &DemandAnalyzerPlugin{
		cfg: &PluginConfig{
			ID:             "demand_optimizer",
			Name:           "需量申报分析",
			Enabled:        true,
			ExecutionOrder: 20,
			MinDataDays:    0, // 依赖月度需量历史而非日能耗
		},
		analyzer: analyzer,
	}
}

// Config 分析器配置
func (p *DemandAnalyzerPlugin) Config() *PluginConfig { return p.cfg }

// Analyze 对每个按需量计费的计量点运行需量分析
func (p *DemandAnalyzerPlugin) Analyze(actx *Context) ([]*models.EnergySuggestion, error) {
	pricing := tariff.DefaultPricingConfig()
	if actx.Tariff != nil && actx.Tariff.Config != nil {
		pricing = actx.Tariff.Config
	}

	var suggestions []*models.EnergySuggestion
	for _, mp := range actx.MeterPoints {
		history := actx.DemandHistory[mp.ID]
		if len(history) < 3 || mp.DeclaredDemand <= 0 {
			continue
		}
		rec, err := p.analyzer.Recommend(mp, history, pricing.DemandPrice, pricing.OverDemandMultiplier)
		if err != nil || !rec.HasOpportunity {
			continue
		}
		if s := p.toSuggestion(mp, rec); s != nil {
			suggestions = append(suggestions, s)
		}
	}
	return suggestions, nil
}

func (p *DemandAnalyzerPlugin) toSuggestion(mp *models.MeterPoint, rec *demand.Recommendation) *models.EnergySuggestion {
	params, _ := json.Marshal(map[string]interface{}{
		"meter_point_id":   mp.ID,
		"type":             rec.Type,
		"declared_demand":  rec.DeclaredDemand,
		"suggested_demand": rec.SuggestedDemand,
		"target_reduction": rec.TargetReduction,
	})

	var title, desc string
	priority := models.PriorityMedium
	saving := rec.AnnualSaving
	switch rec.Type {
	case demand.RecommendReduce:
		title = fmt.Sprintf("计量点 %s 申报需量偏高，建议下调", mp.MeterName)
		desc = fmt.Sprintf("申报 %.0f kW，建议调整为 %.0f kW，年节省约 %.0f 元",
			rec.DeclaredDemand, rec.SuggestedDemand, rec.AnnualSaving)
	case demand.RecommendIncrease:
		title = fmt.Sprintf("计量点 %s 频繁超申报需量，建议上调", mp.MeterName)
		desc = fmt.Sprintf("申报 %.0f kW，建议调整为 %.0f kW，可避免超需量罚金",
			rec.DeclaredDemand, rec.SuggestedDemand)
		priority = models.PriorityHigh
		if saving < 0 {
			saving = -saving // 上调的收益是避免的罚金
		}
	case demand.RecommendShave:
		title = fmt.Sprintf("计量点 %s 需量尖峰明显，建议削峰", mp.MeterName)
		desc = fmt.Sprintf("目标削减 %.0f kW，削峰后可进一步下调申报需量", rec.TargetReduction)
	default:
		return nil
	}

	return &models.EnergySuggestion{
		Category:    "demand",
		Priority:    priority,
		Title:       title,
		Description: desc,
		Detail: fmt.Sprintf("- 最大需量: %.0f kW\n- P95需量: %.0f kW\n- 利用率: %.0f%%\n- 风险等级: %s\n- %s",
			rec.Stats.MaxDemand, rec.Stats.P95Demand, rec.Stats.UtilizationRate*100, rec.RiskLevel, rec.Reason),
		EstimatedCostSaving: saving,
		Difficulty:          1,
		Confidence:          rec.Confidence * 100,
		Parameters:          params,
	}
}
