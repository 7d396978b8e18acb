package tariff

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

// 缺省时段电价（无配置时的兜底，元/kWh）
var DefaultPeriodPrices = map[string]float64{
	models.PeriodSharp:      1.5,
	models.PeriodPeak:       1.2,
	models.PeriodFlat:       0.8,
	models.PeriodValley:     0.4,
	models.PeriodDeepValley: 0.2,
}

// NormalizePeriod 归一时段别名（normal→flat，中文别名→标准名）
func NormalizePeriod(period string) string {
	switch period {
	case "normal", "平", "平段":
		return models.PeriodFlat
	case "尖", "尖峰":
		return models.PeriodSharp
	case "峰", "高峰":
		return models.PeriodPeak
	case "谷", "低谷":
		return models.PeriodValley
	case "深谷":
		return models.PeriodDeepValley
	}
	return period
}

// Snapshot 某一日期生效的电价快照。
// 计算开始时捕获一次并贯穿始终，中途修改电价不影响计算结果。
type Snapshot struct {
	Date      time.Time
	Intervals []*models.TariffInterval
	Config    *models.PricingConfig
}

// Service 电价服务
type Service struct {
	pricingRepo *repository.PricingRepository
	logger      *zap.Logger
}

// NewService 创建电价服务
func NewService(pricingRepo *repository.PricingRepository, logger *zap.Logger) *Service {
	return &Service{pricingRepo: pricingRepo, logger: logger}
}

// LoadSnapshot 加载指定日期的电价快照；无综合配置时用缺省配置兜底
func (s *Service) LoadSnapshot(ctx context.Context, date time.Time) (*Snapshot, error) {
	intervals, err := s.pricingRepo.ListIntervals(ctx, date)
	if err != nil {
		return nil, err
	}

	cfg, err := s.pricingRepo.GetActiveConfig(ctx, date)
	if err != nil {
		s.logger.Warn("no active pricing config, using defaults", zap.Error(err))
		cfg = DefaultPricingConfig()
	}

	return &Snapshot{Date: date, Intervals: intervals, Config: cfg}, nil
}

// DefaultPricingConfig 缺省综合电价配置
func DefaultPricingConfig() *models.PricingConfig {
	return &models.PricingConfig{
		BillingMode:          models.BillingModeDemand,
		DemandPrice:          38,
		OverDemandMultiplier: 2.0,
		CapacityPrice:        28,
		PowerFactorBaseline:  0.90,
		TransmissionFee:      0.15,
		GovernmentFund:       0.05,
		AuxiliaryFee:         0.02,
		OtherFee:             0,
	}
}

// PeriodAt 判定时刻 t 所属时段；无命中时视为平段
func (snap *Snapshot) PeriodAt(t time.Time) string {
	minutes := t.Hour()*60 + t.Minute()
	for _, iv := range snap.Intervals {
		start, err1 := parseHHMM(iv.StartTime)
		end, err2 := parseHHMM(iv.EndTime)
		if err1 != nil || err2 != nil {
			continue
		}
		if end > start {
			if minutes >= start && minutes < end {
				return NormalizePeriod(iv.PeriodType)
			}
		} else {
			// 跨午夜时段，如 23:00-01:00
			if minutes >= start || minutes < end {
				return NormalizePeriod(iv.PeriodType)
			}
		}
	}
	return models.PeriodFlat
}

// PriceFor 查询时段电价；无配置时段回落到缺省电价表
func (snap *Snapshot) PriceFor(period string) float64 {
	period = NormalizePeriod(period)
	for _, iv := range snap.Intervals {
		if NormalizePeriod(iv.PeriodType) == period {
			return iv.Price
		}
	}
	if p, ok := DefaultPeriodPrices[period]; ok {
		return p
	}
	return DefaultPeriodPrices[models.PeriodFlat]
}

// PriceAt 时刻电价
func (snap *Snapshot) PriceAt(t time.Time) float64 {
	return snap.PriceFor(snap.PeriodAt(t))
}

// WeightedAvgPrice 按典型时段占比的加权平均电价
// （尖5% 峰25% 平40% 谷25% 深谷5%，效果追踪的兜底单价）
func (snap *Snapshot) WeightedAvgPrice() float64 {
	weights := map[string]float64{
		models.PeriodSharp:      0.05,
		models.PeriodPeak:       0.25,
		models.PeriodFlat:       0.40,
		models.PeriodValley:     0.25,
		models.PeriodDeepValley: 0.05,
	}
	var sum float64
	for period, w := range weights {
		sum += snap.PriceFor(period) * w
	}
	if sum <= 0 {
		return 0.6
	}
	return sum
}

func parseHHMM(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
